package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/nstogner/desktopctl/pkg/domain"
)

// ToolNameWait is the name of the pause tool.
const ToolNameWait = "wait"

// MaxWait bounds a single wait call.
const MaxWait = 30 * time.Second

// WaitTool pauses the run, e.g. while a page loads.
type WaitTool struct{}

func (t *WaitTool) Name() string { return ToolNameWait }

func (t *WaitTool) Description() string {
	return "Wait for the given number of seconds (at most 30) before continuing, e.g. while a page loads."
}

func (t *WaitTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"seconds": map[string]any{"type": "number", "description": "How long to wait."},
		},
		"required": []string{"seconds"},
	}
}

func (t *WaitTool) Run(ctx context.Context, input map[string]any) (domain.ActionResult, error) {
	var secs float64
	switch v := input["seconds"].(type) {
	case float64:
		secs = v
	case int:
		secs = float64(v)
	default:
		return domain.Failed(fmt.Errorf("argument 'seconds' is required and must be a number")), nil
	}
	if secs < 0 {
		return domain.Failed(fmt.Errorf("argument 'seconds' must not be negative")), nil
	}

	d := time.Duration(secs * float64(time.Second))
	if d > MaxWait {
		d = MaxWait
	}
	if err := Sleep(ctx, d); err != nil {
		return domain.ActionResult{}, err
	}
	return domain.OK(fmt.Sprintf("waited %s", d)), nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
