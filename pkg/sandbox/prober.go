package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nstogner/desktopctl/pkg/logging"
)

// Prober polls an HTTP endpoint until it answers 200.
type Prober struct {
	URL string
	// Interval between attempts. Defaults to one second.
	Interval time.Duration
	// MaxAttempts bounds the wait. Zero means 120.
	MaxAttempts int
	Client      *http.Client
}

// Wait probes until success, attempts run out, or ctx is done. It returns the
// number of probes made.
func (p *Prober) Wait(ctx context.Context) (int, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	max := p.MaxAttempts
	if max <= 0 {
		max = 120
	}
	hc := p.Client
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}

	attempts := 0
	probe := func() error {
		attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := hc.Do(req)
		if err != nil {
			slog.Log(ctx, logging.LevelTrace, "Readiness probe failed", "url", p.URL, "attempt", attempts, "error", err)
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			slog.Log(ctx, logging.LevelTrace, "Readiness probe not ready", "url", p.URL, "attempt", attempts, "status", resp.StatusCode)
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(max-1)), ctx)
	if err := backoff.Retry(probe, b); err != nil {
		return attempts, fmt.Errorf("after %d probes of %s: %w", attempts, p.URL, err)
	}
	slog.Debug("Readiness probe succeeded", "url", p.URL, "attempts", attempts)
	return attempts, nil
}
