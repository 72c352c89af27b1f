package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nstogner/desktopctl/pkg/client"
	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/locator"
	"github.com/nstogner/desktopctl/pkg/tools"
)

// Screenshot captures the display.
func Screenshot(ctx context.Context, c tools.ActionClient) ([]byte, error) {
	res, err := c.Do(ctx, domain.NewCommand(domain.ActionScreenshot))
	if err != nil {
		return nil, err
	}
	if err := client.AsError(res, domain.ActionScreenshot); err != nil {
		return nil, err
	}
	if len(res.Image) == 0 {
		return nil, &domain.ActionExecutionError{Action: domain.ActionScreenshot, Message: "no image returned"}
	}
	return res.Image, nil
}

// Resolve locates query on a fresh screenshot and converts the answer to
// pixels using that same screenshot's dimensions. It returns the screenshot
// it located on.
func Resolve(ctx context.Context, c tools.ActionClient, loc locator.Locator, query string) (domain.Point, []byte, error) {
	if loc == nil {
		return domain.Point{}, nil, &domain.LocateError{Query: query, Err: errors.New("no locator configured")}
	}
	shot, err := Screenshot(ctx, c)
	if err != nil {
		return domain.Point{}, nil, err
	}
	w, h, err := domain.ImageSize(shot)
	if err != nil {
		return domain.Point{}, shot, &domain.LocateError{Query: query, Err: fmt.Errorf("reading screenshot size: %w", err)}
	}

	np, err := loc.Locate(ctx, shot, query)
	if err != nil {
		var le *domain.LocateError
		if errors.As(err, &le) && le.Query == "" {
			le.Query = query
		}
		return domain.Point{}, shot, err
	}

	p := np.ToScreen(w, h)
	slog.Debug("Resolved element", "query", query, "normalized", np, "point", p, "width", w, "height", h)
	return p, shot, nil
}
