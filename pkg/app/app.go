// Package app builds the runtime components of the desktopctl binaries from
// configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/nstogner/desktopctl/pkg/client"
	"github.com/nstogner/desktopctl/pkg/config"
	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/locator"
	geminiloc "github.com/nstogner/desktopctl/pkg/locator/gemini"
	"github.com/nstogner/desktopctl/pkg/locator/remote"
	"github.com/nstogner/desktopctl/pkg/model"
	"github.com/nstogner/desktopctl/pkg/model/gemini"
	"github.com/nstogner/desktopctl/pkg/model/grounded"
	"github.com/nstogner/desktopctl/pkg/runner"
	"github.com/nstogner/desktopctl/pkg/sandbox/docker"
	"github.com/nstogner/desktopctl/pkg/tools"
)

// SandboxManager returns a docker-backed sandbox manager.
func SandboxManager(cfg *config.Config) (*docker.Manager, error) {
	return docker.New(docker.Config{
		Image:             cfg.Sandbox.Image,
		Host:              cfg.Sandbox.Host,
		ReadinessPath:     cfg.Sandbox.ReadinessPath,
		ReadinessInterval: cfg.Sandbox.ReadinessInterval,
		ReadinessAttempts: cfg.Sandbox.ReadinessAttempts,
	})
}

// Client returns a command client for url, or the configured URL when url is
// empty.
func Client(cfg *config.Config, url string) *client.Client {
	if url == "" {
		url = cfg.Client.URL
	}
	return client.New(url, client.WithTimeout(cfg.Client.Timeout))
}

// ActionClient returns the client runs issue actions through: c itself for
// the http transport, or a websocket stream to c's server for ws. The closer
// releases the stream.
func ActionClient(ctx context.Context, cfg *config.Config, c *client.Client) (tools.ActionClient, io.Closer, error) {
	switch cfg.Client.Transport {
	case "", "http":
		return c, nopCloser{}, nil
	case "ws":
		s, err := client.DialStream(ctx, c.BaseURL(), cfg.Client.Timeout)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unknown client transport %q", cfg.Client.Transport)
}

// Locator returns the configured element locator.
func Locator(ctx context.Context, cfg *config.Config) (locator.Locator, error) {
	var loc locator.Locator
	switch cfg.Locator.Backend {
	case "gemini":
		l, err := geminiloc.New(ctx, geminiloc.Config{
			APIKey:  config.GeminiAPIKey(),
			Model:   cfg.Locator.Model,
			BaseURL: cfg.Locator.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		loc = l
	case "remote":
		loc = remote.New(cfg.Locator.Endpoint, &http.Client{Timeout: cfg.Client.Timeout})
	default:
		return nil, fmt.Errorf("unknown locator backend %q", cfg.Locator.Backend)
	}
	return locator.WithRetry(loc, cfg.Locator.MaxAttempts), nil
}

// Provider returns the configured decision provider. The closer releases
// the provider's client, if it has one.
func Provider(ctx context.Context, cfg *config.Config, loc locator.Locator) (model.Provider, io.Closer, error) {
	switch cfg.Model.Provider {
	case "grounded":
		if loc == nil {
			return nil, nil, fmt.Errorf("grounded provider requires a locator")
		}
		return grounded.New(loc), nopCloser{}, nil
	case "gemini":
		p, err := gemini.New(ctx, config.GeminiAPIKey())
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	}
	return nil, nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
}

// Tools returns the registry offered to models.
func Tools(cfg *config.Config, c tools.ActionClient) *tools.Registry {
	return tools.NewRegistry(
		&tools.ComputerTool{
			Client:          c,
			Resolution:      domain.Resolution{Width: cfg.Server.Width, Height: cfg.Server.Height},
			ScreenshotAfter: cfg.Runner.ScreenshotAfter,
		},
		&tools.WaitTool{},
	)
}

// Runner returns a runner bound to c.
func Runner(cfg *config.Config, c tools.ActionClient, loc locator.Locator, obs runner.Observer) *runner.Runner {
	return runner.New(c, loc, runner.Options{MaxSteps: cfg.Runner.MaxSteps, Observer: obs})
}

// ModelRun assembles a model-driven run for task.
func ModelRun(cfg *config.Config, p model.Provider, reg *tools.Registry, history []domain.Message, task string) runner.ModelRun {
	return runner.ModelRun{
		Provider:     p,
		Tools:        reg,
		Model:        cfg.Model.Name,
		Instructions: cfg.Model.Instructions,
		History:      history,
		Task:         task,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
