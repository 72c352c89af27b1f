// Package locator turns natural-language element descriptions into
// screenshot-relative coordinates.
package locator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/nstogner/desktopctl/pkg/domain"
)

// SystemPrompt instructs a vision model to answer with a relative point.
const SystemPrompt = "Based on the screenshot of the page, I give a text description and you give its corresponding location. " +
	"The coordinate represents a clickable location [x, y] for an element, which is a relative coordinate on the screenshot, scaled from 0 to 1."

// Locator finds the element described by query on a PNG screenshot.
// Failures are *domain.LocateError.
type Locator interface {
	Locate(ctx context.Context, image []byte, query string) (domain.NormalizedPoint, error)
}

// Func adapts a function to the Locator interface.
type Func func(ctx context.Context, image []byte, query string) (domain.NormalizedPoint, error)

func (f Func) Locate(ctx context.Context, image []byte, query string) (domain.NormalizedPoint, error) {
	return f(ctx, image, query)
}

var pointPattern = regexp.MustCompile(`^[\[(]\s*([-+0-9.eE]+)\s*,\s*([-+0-9.eE]+)\s*[\])]$`)

// ParsePoint parses model output of the form "[x, y]" or "(x, y)", optionally
// wrapped in a code fence, into a point with both components in [0,1].
func ParsePoint(raw string) (domain.NormalizedPoint, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	m := pointPattern.FindStringSubmatch(s)
	if m == nil {
		return domain.NormalizedPoint{}, &domain.LocateError{Raw: raw, Err: errors.New("expected a point [x, y]")}
	}
	x, errX := strconv.ParseFloat(m[1], 64)
	y, errY := strconv.ParseFloat(m[2], 64)
	if errX != nil || errY != nil {
		return domain.NormalizedPoint{}, &domain.LocateError{Raw: raw, Err: errors.New("point components must be numbers")}
	}
	p := domain.NormalizedPoint{X: x, Y: y}
	if !p.Valid() {
		return domain.NormalizedPoint{}, &domain.LocateError{Raw: raw, Err: fmt.Errorf("point %s is outside [0,1]", p)}
	}
	return p, nil
}

// WithRetry retries l up to attempts times on LocateError. Other errors are
// returned immediately. attempts below one means one.
func WithRetry(l Locator, attempts int) Locator {
	if attempts <= 1 {
		return l
	}
	return Func(func(ctx context.Context, image []byte, query string) (domain.NormalizedPoint, error) {
		var err error
		for i := 1; i <= attempts; i++ {
			var p domain.NormalizedPoint
			p, err = l.Locate(ctx, image, query)
			if err == nil {
				return p, nil
			}
			var le *domain.LocateError
			if !errors.As(err, &le) || ctx.Err() != nil {
				return domain.NormalizedPoint{}, err
			}
			slog.Warn("Locate failed, retrying", "query", query, "attempt", i, "error", err)
		}
		return domain.NormalizedPoint{}, err
	})
}

// Fixed is a Locator that always answers with the same points per query.
// Unknown queries fail with a LocateError.
type Fixed map[string]domain.NormalizedPoint

func (f Fixed) Locate(ctx context.Context, image []byte, query string) (domain.NormalizedPoint, error) {
	p, ok := f[query]
	if !ok {
		return domain.NormalizedPoint{}, &domain.LocateError{Query: query, Err: errors.New("no such element")}
	}
	return p, nil
}
