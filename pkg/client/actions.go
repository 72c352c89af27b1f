package client

import (
	"context"

	"github.com/nstogner/desktopctl/pkg/domain"
)

func (c *Client) click(ctx context.Context, kind domain.ActionKind, at *domain.Point) (domain.ActionResult, error) {
	cmd := domain.NewCommand(kind)
	if at != nil {
		cmd = cmd.WithCoordinate(*at)
	}
	return c.Do(ctx, cmd)
}

// LeftClick clicks at the given point, or at the cursor when at is nil.
func (c *Client) LeftClick(ctx context.Context, at *domain.Point) (domain.ActionResult, error) {
	return c.click(ctx, domain.ActionLeftClick, at)
}

func (c *Client) RightClick(ctx context.Context, at *domain.Point) (domain.ActionResult, error) {
	return c.click(ctx, domain.ActionRightClick, at)
}

func (c *Client) MiddleClick(ctx context.Context, at *domain.Point) (domain.ActionResult, error) {
	return c.click(ctx, domain.ActionMiddleClick, at)
}

func (c *Client) DoubleClick(ctx context.Context, at *domain.Point) (domain.ActionResult, error) {
	return c.click(ctx, domain.ActionDoubleClick, at)
}

func (c *Client) MouseMove(ctx context.Context, to domain.Point) (domain.ActionResult, error) {
	return c.Do(ctx, domain.NewCommand(domain.ActionMouseMove).WithCoordinate(to))
}

// LeftClickDrag presses at the cursor and releases at to.
func (c *Client) LeftClickDrag(ctx context.Context, to domain.Point) (domain.ActionResult, error) {
	return c.Do(ctx, domain.NewCommand(domain.ActionLeftClickDrag).WithCoordinate(to))
}

func (c *Client) CursorPosition(ctx context.Context) (domain.ActionResult, error) {
	return c.Do(ctx, domain.NewCommand(domain.ActionCursorPosition))
}

func (c *Client) Screenshot(ctx context.Context) (domain.ActionResult, error) {
	return c.Do(ctx, domain.NewCommand(domain.ActionScreenshot))
}

func (c *Client) Type(ctx context.Context, text string) (domain.ActionResult, error) {
	return c.Do(ctx, domain.NewCommand(domain.ActionType).WithText(text))
}

// Key presses a key or chord in xdotool syntax, e.g. "Return" or "ctrl+l".
func (c *Client) Key(ctx context.Context, keys string) (domain.ActionResult, error) {
	return c.Do(ctx, domain.NewCommand(domain.ActionKey).WithText(keys))
}
