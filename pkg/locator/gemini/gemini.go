// Package gemini implements a vision locator on the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/genai"

	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/locator"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// Config configures a Locator.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

// Locator asks a Gemini vision model where an element is.
type Locator struct {
	client *genai.Client
	model  string
}

// Verify interface compliance.
var _ locator.Locator = (*Locator)(nil)

// New creates a new Gemini locator.
func New(ctx context.Context, cfg Config) (*Locator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini locator: API key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Locator{client: client, model: model}, nil
}

func (l *Locator) Locate(ctx context.Context, image []byte, query string) (domain.NormalizedPoint, error) {
	slog.Debug("Gemini.Locate", "model", l.model, "query", query, "imageBytes", len(image))

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, "image/png"),
			genai.NewPartFromText(query),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(locator.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
	}

	resp, err := l.client.Models.GenerateContent(ctx, l.model, contents, config)
	if err != nil {
		return domain.NormalizedPoint{}, &domain.LocateError{Query: query, Err: fmt.Errorf("generating content: %w", err)}
	}

	raw := resp.Text()
	p, err := locator.ParsePoint(raw)
	if err != nil {
		var le *domain.LocateError
		if errors.As(err, &le) {
			le.Query = query
		}
		return domain.NormalizedPoint{}, err
	}
	slog.Debug("Gemini.Locate result", "query", query, "point", p)
	return p, nil
}
