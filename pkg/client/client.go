// Package client talks to a sandbox's command server.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/nstogner/desktopctl/pkg/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client performs actions against a command server. Each call is one
// synchronous round trip.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// New returns a client for the command server at baseURL, e.g.
// http://127.0.0.1:5000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the command server address.
func (c *Client) BaseURL() string { return c.baseURL }

// Do sends cmd and returns the server's result. An action that ran but failed
// is reported in ActionResult.Error with a nil error.
func (c *Client) Do(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error) {
	url := c.baseURL + "/perform_action"

	body, err := json.Marshal(cmd)
	if err != nil {
		return domain.ActionResult{}, fmt.Errorf("encoding command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.ActionResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("Sending action", "action", cmd.String(), "url", url)
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ActionResult{}, &domain.NetworkError{Op: "POST", URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ActionResult{}, &domain.NetworkError{Op: "POST", URL: url, Err: fmt.Errorf("reading response: %w", err)}
	}

	var res domain.ActionResult
	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.Unmarshal(data, &res); err != nil {
			return domain.ActionResult{}, &domain.NetworkError{Op: "POST", URL: url, Err: fmt.Errorf("decoding response: %w", err)}
		}
		return res, nil
	case http.StatusBadRequest:
		msg := strings.TrimSpace(string(data))
		if err := json.Unmarshal(data, &res); err == nil && res.Error != "" {
			msg = res.Error
		}
		return domain.ActionResult{}, &domain.ValidationError{Reason: "rejected by server: " + msg}
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		// A proxy answered for a sandbox it could not reach.
		return domain.ActionResult{}, &domain.NetworkError{
			Op:  "POST",
			URL: url,
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(data), 200)),
		}
	default:
		if resp.StatusCode >= http.StatusInternalServerError {
			// The server answered but faulted while handling the command.
			return domain.ActionResult{}, &domain.ActionExecutionError{
				Action:  cmd.Action,
				Message: fmt.Sprintf("server error %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(data)), 200)),
			}
		}
		return domain.ActionResult{}, &domain.NetworkError{
			Op:  "POST",
			URL: url,
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(data), 200)),
		}
	}
}

// Health checks that the command server is answering.
func (c *Client) Health(ctx context.Context) error {
	url := c.baseURL + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: "GET", URL: url, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &domain.NetworkError{Op: "GET", URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return nil
}

// AsError converts a failed result into an ActionExecutionError. It returns
// nil for successful results.
func AsError(res domain.ActionResult, kind domain.ActionKind) error {
	if !res.IsError() {
		return nil
	}
	return &domain.ActionExecutionError{Action: kind, Message: res.Error}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
