package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/nstogner/desktopctl/pkg/domain"
)

// ToolNameComputer is the name models use to drive the desktop.
const ToolNameComputer = "computer"

// ActionClient issues commands to the sandbox.
type ActionClient interface {
	Do(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error)
}

// ComputerTool exposes the command protocol to a model.
type ComputerTool struct {
	Client ActionClient
	// Resolution bounds coordinates before they are sent. Zero skips the
	// bounds check.
	Resolution domain.Resolution
	// ScreenshotAfter attaches a fresh screenshot to results of actions
	// other than screenshot.
	ScreenshotAfter bool
}

func (t *ComputerTool) Name() string { return ToolNameComputer }

func (t *ComputerTool) Description() string {
	return "Control the desktop with the mouse and keyboard and take screenshots. " +
		"Coordinates are absolute pixels [x, y] on the screenshot. " +
		"Clicks without a coordinate act at the current cursor position."
}

func (t *ComputerTool) InputSchema() map[string]any {
	actions := make([]string, 0, len(domain.ActionKinds))
	for _, k := range domain.ActionKinds {
		actions = append(actions, string(k))
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        actions,
				"description": "The action to perform.",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "Text to type, or the key combination for key (e.g. Return, ctrl+l).",
			},
			"coordinate": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "integer"},
				"description": "[x, y] pixel position.",
			},
		},
		"required": []string{"action"},
	}
}

func (t *ComputerTool) Run(ctx context.Context, input map[string]any) (domain.ActionResult, error) {
	cmd, err := DecodeCommand(input)
	if err == nil {
		err = cmd.Validate(t.Resolution)
	}
	if err != nil {
		return domain.Failed(err), nil
	}

	res, err := t.Client.Do(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return domain.ActionResult{}, ctx.Err()
		}
		slog.Warn("Computer action failed", "action", cmd.String(), "error", err)
		return domain.Failed(err), nil
	}

	if t.ScreenshotAfter && cmd.Action != domain.ActionScreenshot && !res.IsError() && len(res.Image) == 0 {
		shot, err := t.Client.Do(ctx, domain.NewCommand(domain.ActionScreenshot))
		switch {
		case err != nil:
			slog.Warn("Screenshot after action failed", "error", err)
		case !shot.IsError():
			res.Image = shot.Image
		}
	}
	return res, nil
}

// DecodeCommand converts tool input into an ActionCommand. The coordinate may
// be given as any JSON-ish list of two integral numbers.
func DecodeCommand(input map[string]any) (domain.ActionCommand, error) {
	raw, ok := input["action"].(string)
	if !ok {
		return domain.ActionCommand{}, &domain.ValidationError{Field: "action", Reason: "is required and must be a string"}
	}
	kind, err := domain.ParseActionKind(raw)
	if err != nil {
		return domain.ActionCommand{}, err
	}
	cmd := domain.NewCommand(kind)

	if v, ok := input["text"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return domain.ActionCommand{}, &domain.ValidationError{Field: "text", Reason: "must be a string"}
		}
		cmd = cmd.WithText(s)
	}

	if v, ok := input["coordinate"]; ok && v != nil {
		p, err := decodePoint(v)
		if err != nil {
			return domain.ActionCommand{}, &domain.ValidationError{Field: "coordinate", Reason: err.Error()}
		}
		cmd = cmd.WithCoordinate(p)
	}
	return cmd, nil
}

func decodePoint(v any) (domain.Point, error) {
	var xs []any
	switch l := v.(type) {
	case []any:
		xs = l
	case []int:
		for _, n := range l {
			xs = append(xs, n)
		}
	case []float64:
		for _, n := range l {
			xs = append(xs, n)
		}
	case domain.Point:
		return l, nil
	default:
		return domain.Point{}, fmt.Errorf("must be a list [x, y], got %T", v)
	}
	if len(xs) != 2 {
		return domain.Point{}, fmt.Errorf("must have two elements, got %d", len(xs))
	}
	var out [2]int
	for i, x := range xs {
		n, err := toInt(x)
		if err != nil {
			return domain.Point{}, err
		}
		out[i] = n
	}
	return domain.Point{X: out[0], Y: out[1]}, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("must contain integers, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	}
	return 0, errors.New("must contain numbers")
}
