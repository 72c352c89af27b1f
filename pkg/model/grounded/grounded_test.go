package grounded

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/locator"
	"github.com/nstogner/desktopctl/pkg/model"
)

func screenshot(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestProvider_ClickThenDone(t *testing.T) {
	p := New(locator.Fixed{"Notify Me button": {X: 0.5, Y: 0.5}})
	ctx := context.Background()
	history := []domain.Message{domain.NewTextMessage(domain.RoleUser, "Notify Me button")}

	stream, err := p.Stream(ctx, model.Request{Messages: history, Screenshot: screenshot(t, 1000, 800)})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	msg, _ := stream.FullMessage()
	uses := msg.ToolUses()
	if len(uses) != 1 {
		t.Fatalf("expected one tool use, got %+v", msg)
	}
	if uses[0].Input["action"] != "left_click" {
		t.Errorf("unexpected action %v", uses[0].Input["action"])
	}
	coord := uses[0].Input["coordinate"].([]any)
	if coord[0] != 500 || coord[1] != 400 {
		t.Errorf("expected (500, 400), got %v", coord)
	}

	history = append(history, msg, domain.Message{
		Role:    domain.RoleUser,
		Content: []domain.Content{domain.ToolResultBlock(uses[0].ID, domain.OK(""))},
	})
	stream, err = p.Stream(ctx, model.Request{Messages: history, Screenshot: screenshot(t, 1000, 800)})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	msg, _ = stream.FullMessage()
	if len(msg.ToolUses()) != 0 || msg.Text() == "" {
		t.Errorf("expected a plain text answer, got %+v", msg)
	}
}

func TestProvider_LocateErrorPropagates(t *testing.T) {
	p := New(locator.Fixed{})
	_, err := p.Stream(context.Background(), model.Request{
		Messages:   []domain.Message{domain.NewTextMessage(domain.RoleUser, "Missing")},
		Screenshot: screenshot(t, 10, 10),
	})
	var le *domain.LocateError
	if !errors.As(err, &le) {
		t.Fatalf("expected LocateError, got %v", err)
	}
}
