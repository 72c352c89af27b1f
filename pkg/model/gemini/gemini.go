// Package gemini implements model.Provider on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/model"
)

// DefaultModel is used when a request names no model.
const DefaultModel = "gemini-2.5-flash"

// Provider implements model.Provider using the Google Gemini API.
type Provider struct {
	client *genai.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a new Provider.
func New(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Provider, error) {
	httpClient := &http.Client{
		Transport: &loggingTransport{
			base:   http.DefaultTransport,
			apiKey: apiKey,
		},
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey), option.WithHTTPClient(httpClient)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string { return "gemini" }

// Close releases resources.
func (p *Provider) Close() error {
	return p.client.Close()
}

// List returns available models.
func (p *Provider) List(ctx context.Context) ([]string, error) {
	iter := p.client.ListModels(ctx)
	var names []string
	for {
		m, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		slog.Debug("Found Gemini model", "name", m.Name)
		names = append(names, m.Name)
	}
	return names, nil
}

// Stream sends the conversation to the model as a chat session.
func (p *Provider) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	name := req.Model
	if name == "" {
		name = DefaultModel
	}
	slog.Debug("Gemini.Stream", "model", name, "messageCount", len(req.Messages), "screenshotBytes", len(req.Screenshot))

	history, err := buildHistory(req)
	if err != nil {
		return nil, err
	}

	gm := p.client.GenerativeModel(name)
	gm.Tools = buildTools(req.Tools)
	if req.Instructions != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.Instructions)}}
	}

	cs := gm.StartChat()
	cs.History = history[:len(history)-1]
	last := history[len(history)-1]

	iter := cs.SendMessageStream(ctx, last.Parts...)
	return &geminiStream{iter: iter}, nil
}

// buildHistory converts the run history into Gemini contents. The screenshot
// is attached to the final user turn.
func buildHistory(req model.Request) ([]*genai.Content, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("gemini: request has no messages")
	}

	toolNames := make(map[string]string) // tool_use ID -> name
	var contents []*genai.Content
	for _, msg := range req.Messages {
		var parts []genai.Part
		for _, c := range msg.Content {
			switch c.Type {
			case domain.ContentTypeText:
				parts = append(parts, genai.Text(c.Text.Content))
			case domain.ContentTypeImage:
				parts = append(parts, genai.ImageData(imageFormat(c.Image.MediaType), c.Image.Data))
			case domain.ContentTypeToolUse:
				toolNames[c.ToolUse.ID] = c.ToolUse.Name
				parts = append(parts, genai.FunctionCall{
					Name: c.ToolUse.Name,
					Args: c.ToolUse.Input,
				})
			case domain.ContentTypeToolResult:
				tr := c.ToolResult
				parts = append(parts, genai.FunctionResponse{
					Name: toolNames[tr.ToolUseID],
					Response: map[string]any{
						"result":   tr.Content,
						"is_error": tr.IsError,
					},
				})
				if tr.Image != nil {
					parts = append(parts, genai.ImageData(imageFormat(tr.Image.MediaType), tr.Image.Data))
				}
			}
		}

		role := "user"
		if msg.Role == domain.RoleAssistant {
			role = "model"
		}
		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	if len(contents) == 0 {
		return nil, errors.New("gemini: request has no content")
	}
	last := contents[len(contents)-1]
	if last.Role != "user" {
		return nil, fmt.Errorf("gemini: last message must come from the user, got %q", last.Role)
	}
	if len(req.Screenshot) > 0 {
		last.Parts = append(last.Parts, genai.ImageData("png", req.Screenshot))
	}
	return contents, nil
}

func imageFormat(mediaType string) string {
	if f, ok := strings.CutPrefix(mediaType, "image/"); ok {
		return f
	}
	return "png"
}

func buildTools(specs []model.ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	var decls []*genai.FunctionDeclaration
	for _, s := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  toSchema(s.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toSchema converts a JSON schema object into a Gemini schema. Keywords
// Gemini does not understand are dropped.
func toSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	switch m["type"] {
	case "object":
		s.Type = genai.TypeObject
	case "array":
		s.Type = genai.TypeArray
	case "string":
		s.Type = genai.TypeString
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for k, v := range props {
			if pm, ok := v.(map[string]any); ok {
				s.Properties[k] = toSchema(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	s.Required = stringList(m["required"])
	s.Enum = stringList(m["enum"])
	return s
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		var out []string
		for _, e := range l {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// geminiStream wraps the Gemini streaming iterator.
type geminiStream struct {
	iter *genai.GenerateContentResponseIterator
}

func (s *geminiStream) FullMessage() (domain.Message, error) {
	var acc accumulator
	for {
		resp, err := s.iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return domain.Message{}, err
		}
		acc.add(resp)
	}
	return acc.message(), nil
}

func (s *geminiStream) Close() error {
	return nil
}

// accumulator folds streamed chunks into one assistant message.
type accumulator struct {
	text      strings.Builder
	toolCalls []domain.Content
}

func (a *accumulator) add(resp *genai.GenerateContentResponse) {
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				a.text.WriteString(string(p))
			case genai.FunctionCall:
				a.toolCalls = append(a.toolCalls, domain.ToolUseBlock("call-"+uuid.New().String(), p.Name, p.Args))
			}
		}
	}
}

func (a *accumulator) message() domain.Message {
	var content []domain.Content
	if a.text.Len() > 0 {
		content = append(content, domain.TextBlock(a.text.String()))
	}
	content = append(content, a.toolCalls...)
	return domain.Message{Role: domain.RoleAssistant, Content: content}
}
