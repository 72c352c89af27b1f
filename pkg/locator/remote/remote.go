// Package remote calls a locator running as a separate HTTP service.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/locator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type locateRequest struct {
	Image []byte `json:"image"`
	Query string `json:"query"`
}

type locateResponse struct {
	X   *float64 `json:"x"`
	Y   *float64 `json:"y"`
	Raw string   `json:"raw"`
}

// Locator posts screenshots to <baseURL>/locate.
type Locator struct {
	url  string
	http *http.Client
}

// Verify interface compliance.
var _ locator.Locator = (*Locator)(nil)

// New returns a Locator for the service at baseURL.
func New(baseURL string, hc *http.Client) *Locator {
	if hc == nil {
		hc = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Locator{url: strings.TrimRight(baseURL, "/") + "/locate", http: hc}
}

func (l *Locator) Locate(ctx context.Context, image []byte, query string) (domain.NormalizedPoint, error) {
	body, err := json.Marshal(locateRequest{Image: image, Query: query})
	if err != nil {
		return domain.NormalizedPoint{}, fmt.Errorf("encoding locate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return domain.NormalizedPoint{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return domain.NormalizedPoint{}, &domain.NetworkError{Op: "POST", URL: l.url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NormalizedPoint{}, &domain.NetworkError{Op: "POST", URL: l.url, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return domain.NormalizedPoint{}, &domain.LocateError{
			Query: query,
			Raw:   strings.TrimSpace(string(data)),
			Err:   fmt.Errorf("locator service returned status %d", resp.StatusCode),
		}
	}

	var out locateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.NormalizedPoint{}, &domain.LocateError{Query: query, Raw: string(data), Err: err}
	}

	var p domain.NormalizedPoint
	switch {
	case out.X != nil && out.Y != nil:
		p = domain.NormalizedPoint{X: *out.X, Y: *out.Y}
		if !p.Valid() {
			return domain.NormalizedPoint{}, &domain.LocateError{Query: query, Raw: string(data), Err: fmt.Errorf("point %s is outside [0,1]", p)}
		}
	case out.Raw != "":
		p, err = locator.ParsePoint(out.Raw)
		if err != nil {
			var le *domain.LocateError
			if errors.As(err, &le) {
				le.Query = query
			}
			return domain.NormalizedPoint{}, err
		}
	default:
		return domain.NormalizedPoint{}, &domain.LocateError{Query: query, Raw: string(data), Err: errors.New("response has neither x/y nor raw")}
	}
	return p, nil
}
