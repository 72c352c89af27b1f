package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nstogner/desktopctl/pkg/domain"
)

type fakeClient struct {
	cmds    []domain.ActionCommand
	results map[domain.ActionKind]domain.ActionResult
	err     error
}

func (f *fakeClient) Do(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error) {
	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return domain.ActionResult{}, f.err
	}
	return f.results[cmd.Action], nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(&WaitTool{}, &ComputerTool{Client: &fakeClient{}})

	names := []string{}
	for _, tool := range r.List() {
		names = append(names, tool.Name())
	}
	if strings.Join(names, ",") != "computer,wait" {
		t.Errorf("unexpected tool order %v", names)
	}
	specs := r.Specs()
	if len(specs) != 2 || specs[0].Name != "computer" || specs[0].InputSchema["type"] != "object" {
		t.Errorf("unexpected specs %+v", specs)
	}

	_, err := r.Run(context.Background(), "bash", nil)
	if !errors.Is(err, domain.ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "bash") {
		t.Errorf("expected tool name in error, got %v", err)
	}
}

func TestComputerTool_Run(t *testing.T) {
	fc := &fakeClient{results: map[domain.ActionKind]domain.ActionResult{
		domain.ActionScreenshot: {Image: []byte("after")},
	}}
	tool := &ComputerTool{Client: fc, ScreenshotAfter: true}

	res, err := tool.Run(context.Background(), map[string]any{
		"action":     "left_click",
		"coordinate": []any{float64(500), float64(400)},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(res.Image) != "after" {
		t.Errorf("expected screenshot to be attached, got %q", res.Image)
	}
	if len(fc.cmds) != 2 || fc.cmds[0].Action != domain.ActionLeftClick || fc.cmds[1].Action != domain.ActionScreenshot {
		t.Fatalf("unexpected commands %+v", fc.cmds)
	}
	if *fc.cmds[0].Coordinate != (domain.Point{X: 500, Y: 400}) {
		t.Errorf("unexpected coordinate %v", fc.cmds[0].Coordinate)
	}
}

func TestComputerTool_InvalidInputIsData(t *testing.T) {
	fc := &fakeClient{}
	tool := &ComputerTool{Client: fc, Resolution: domain.Resolution{Width: 100, Height: 100}}

	for _, input := range []map[string]any{
		{},
		{"action": "scroll"},
		{"action": "type"},
		{"action": "mouse_move", "coordinate": []any{1.5, 2}},
		{"action": "mouse_move", "coordinate": []any{1}},
		{"action": "mouse_move", "coordinate": []any{500, 500}},
		{"action": "key", "text": 7},
	} {
		res, err := tool.Run(context.Background(), input)
		if err != nil {
			t.Fatalf("Run(%v): unexpected error %v", input, err)
		}
		if !res.IsError() {
			t.Errorf("Run(%v): expected result error", input)
		}
	}
	if len(fc.cmds) != 0 {
		t.Errorf("invalid input must not reach the sandbox, sent %+v", fc.cmds)
	}
}

func TestComputerTool_NetworkErrorIsData(t *testing.T) {
	fc := &fakeClient{err: &domain.NetworkError{Op: "POST", URL: "http://127.0.0.1:5000/perform_action", Err: errors.New("connection refused")}}
	tool := &ComputerTool{Client: fc}

	res, err := tool.Run(context.Background(), map[string]any{"action": "screenshot"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasPrefix(res.Error, "sandbox unreachable:") {
		t.Errorf("unexpected result error %q", res.Error)
	}
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand(map[string]any{"action": "mouse_move", "coordinate": []any{json.Number("12"), 34}})
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}
	if *cmd.Coordinate != (domain.Point{X: 12, Y: 34}) {
		t.Errorf("unexpected coordinate %v", cmd.Coordinate)
	}

	cmd, err = DecodeCommand(map[string]any{"action": "type", "text": "nike.com", "coordinate": nil})
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}
	if cmd.Coordinate != nil || *cmd.Text != "nike.com" {
		t.Errorf("unexpected command %v", cmd)
	}
}

func TestWaitTool(t *testing.T) {
	tool := &WaitTool{}
	res, err := tool.Run(context.Background(), map[string]any{"seconds": 0.01})
	if err != nil || res.IsError() {
		t.Fatalf("unexpected %+v, %v", res, err)
	}

	res, _ = tool.Run(context.Background(), map[string]any{"seconds": "soon"})
	if !res.IsError() {
		t.Error("expected error for non-numeric seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := tool.Run(ctx, map[string]any{"seconds": float64(60)}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("wait did not honour cancellation")
	}
}
