package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// ActionKind names a primitive desktop action understood by the sandbox.
type ActionKind string

const (
	ActionLeftClick      ActionKind = "left_click"
	ActionRightClick     ActionKind = "right_click"
	ActionMiddleClick    ActionKind = "middle_click"
	ActionDoubleClick    ActionKind = "double_click"
	ActionMouseMove      ActionKind = "mouse_move"
	ActionLeftClickDrag  ActionKind = "left_click_drag"
	ActionCursorPosition ActionKind = "cursor_position"
	ActionScreenshot     ActionKind = "screenshot"
	ActionType           ActionKind = "type"
	ActionKey            ActionKind = "key"
)

// ActionKinds lists every supported action in protocol order.
var ActionKinds = []ActionKind{
	ActionLeftClick,
	ActionRightClick,
	ActionMiddleClick,
	ActionDoubleClick,
	ActionMouseMove,
	ActionLeftClickDrag,
	ActionCursorPosition,
	ActionScreenshot,
	ActionType,
	ActionKey,
}

// ParseActionKind returns the ActionKind for s, or a ValidationError if s is
// not part of the protocol.
func ParseActionKind(s string) (ActionKind, error) {
	for _, k := range ActionKinds {
		if string(k) == s {
			return k, nil
		}
	}
	if s == "" {
		return "", &ValidationError{Field: "action", Reason: "is required"}
	}
	return "", &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", s)}
}

// Valid reports whether k is a known action.
func (k ActionKind) Valid() bool {
	_, err := ParseActionKind(string(k))
	return err == nil
}

// NeedsText reports whether the action requires a non-empty text field.
func (k ActionKind) NeedsText() bool {
	return k == ActionType || k == ActionKey
}

// NeedsCoordinate reports whether the action requires a coordinate.
func (k ActionKind) NeedsCoordinate() bool {
	return k == ActionMouseMove || k == ActionLeftClickDrag
}

// AcceptsCoordinate reports whether the action may carry a coordinate.
// Clicks without one act at the current cursor position.
func (k ActionKind) AcceptsCoordinate() bool {
	switch k {
	case ActionLeftClick, ActionRightClick, ActionMiddleClick, ActionDoubleClick,
		ActionMouseMove, ActionLeftClickDrag:
		return true
	}
	return false
}

// Point is an absolute pixel position on the sandbox display.
// It is encoded on the wire as a two-element integer array.
type Point struct {
	X int
	Y int
}

func (p Point) String() string { return fmt.Sprintf("(%d, %d)", p.X, p.Y) }

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(b []byte) error {
	var raw []float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("coordinate must be an array of two integers: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("coordinate must have exactly two elements, got %d", len(raw))
	}
	for _, v := range raw {
		if v != math.Trunc(v) {
			return fmt.Errorf("coordinate must contain integers, got %v", v)
		}
	}
	p.X, p.Y = int(raw[0]), int(raw[1])
	return nil
}

// Resolution is the size of the sandbox display in pixels. A zero value means
// the size is unknown and coordinates are only checked for sign.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether p lies on a display of this resolution.
func (r Resolution) Contains(p Point) bool {
	if p.X < 0 || p.Y < 0 {
		return false
	}
	if r.Width > 0 && p.X >= r.Width {
		return false
	}
	if r.Height > 0 && p.Y >= r.Height {
		return false
	}
	return true
}

// ActionCommand is the request body of the command protocol.
type ActionCommand struct {
	Action     ActionKind `json:"action"`
	Text       *string    `json:"text,omitempty"`
	Coordinate *Point     `json:"coordinate,omitempty"`
}

// NewCommand builds a command for kind with no arguments.
func NewCommand(kind ActionKind) ActionCommand {
	return ActionCommand{Action: kind}
}

// WithText returns a copy of c carrying text.
func (c ActionCommand) WithText(text string) ActionCommand {
	c.Text = &text
	return c
}

// WithCoordinate returns a copy of c carrying p.
func (c ActionCommand) WithCoordinate(p Point) ActionCommand {
	c.Coordinate = &p
	return c
}

func (c ActionCommand) String() string {
	s := string(c.Action)
	if c.Coordinate != nil {
		s += " at " + c.Coordinate.String()
	}
	if c.Text != nil {
		s += fmt.Sprintf(" %q", *c.Text)
	}
	return s
}

// Validate checks the structural invariants of c against the display
// resolution res.
func (c ActionCommand) Validate(res Resolution) error {
	if _, err := ParseActionKind(string(c.Action)); err != nil {
		return err
	}

	if c.Action.NeedsText() {
		if c.Text == nil || *c.Text == "" {
			return &ValidationError{Field: "text", Reason: fmt.Sprintf("is required for %s", c.Action)}
		}
	} else if c.Text != nil {
		return &ValidationError{Field: "text", Reason: fmt.Sprintf("is not accepted for %s", c.Action)}
	}

	switch {
	case c.Action.NeedsCoordinate() && c.Coordinate == nil:
		return &ValidationError{Field: "coordinate", Reason: fmt.Sprintf("is required for %s", c.Action)}
	case !c.Action.AcceptsCoordinate() && c.Coordinate != nil:
		return &ValidationError{Field: "coordinate", Reason: fmt.Sprintf("is not accepted for %s", c.Action)}
	}

	if c.Coordinate != nil && !res.Contains(*c.Coordinate) {
		return &ValidationError{
			Field:  "coordinate",
			Reason: fmt.Sprintf("%s is outside the %dx%d display", c.Coordinate, res.Width, res.Height),
		}
	}
	return nil
}
