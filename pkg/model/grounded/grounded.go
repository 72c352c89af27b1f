// Package grounded implements a decision provider that is nothing but an
// element locator: it clicks on whatever the task describes, then stops.
package grounded

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/locator"
	"github.com/nstogner/desktopctl/pkg/model"
)

// ToolName is the tool the provider calls.
const ToolName = "computer"

// Provider turns the user's task into a single click on the located element.
type Provider struct {
	loc locator.Locator
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New returns a Provider backed by loc.
func New(loc locator.Locator) *Provider {
	return &Provider{loc: loc}
}

func (p *Provider) Name() string { return "grounded" }

func (p *Provider) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("grounded: request has no messages")
	}

	last := req.Messages[len(req.Messages)-1]
	for _, c := range last.Content {
		if c.Type == domain.ContentTypeToolResult && c.ToolResult != nil {
			return &model.StaticStream{Msg: done(c.ToolResult)}, nil
		}
	}

	query := taskText(req.Messages)
	if query == "" {
		return nil, errors.New("grounded: no task to locate")
	}
	if len(req.Screenshot) == 0 {
		return nil, &domain.LocateError{Query: query, Err: errors.New("no screenshot to locate on")}
	}

	w, h, err := domain.ImageSize(req.Screenshot)
	if err != nil {
		return nil, &domain.LocateError{Query: query, Err: err}
	}
	np, err := p.loc.Locate(ctx, req.Screenshot, query)
	if err != nil {
		return nil, err
	}
	px := np.ToScreen(w, h)
	slog.Debug("Grounded decision", "query", query, "normalized", np, "pixels", px, "screen", fmt.Sprintf("%dx%d", w, h))

	msg := domain.Message{
		Role: domain.RoleAssistant,
		Content: []domain.Content{
			domain.TextBlock(np.String()),
			domain.ToolUseBlock("call-"+uuid.New().String(), ToolName, map[string]any{
				"action":     string(domain.ActionLeftClick),
				"coordinate": []any{px.X, px.Y},
			}),
		},
	}
	return &model.StaticStream{Msg: msg}, nil
}

// taskText returns the text of the latest user message.
func taskText(msgs []domain.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != domain.RoleUser {
			continue
		}
		if t := msgs[i].Text(); t != "" {
			return t
		}
	}
	return ""
}

func done(tr *domain.ToolResultContent) domain.Message {
	text := "Clicked."
	if tr.IsError {
		text = "The click failed: " + tr.Content
	}
	return domain.NewTextMessage(domain.RoleAssistant, text)
}
