package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nstogner/desktopctl/pkg/app"
	"github.com/nstogner/desktopctl/pkg/client"
	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/sandbox"
	"github.com/nstogner/desktopctl/pkg/tools"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sandbox container and wait until it is ready",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		mgr, err := app.SandboxManager(cfg)
		if err != nil {
			return err
		}
		defer mgr.Close()

		if h, ok, err := mgr.Adopt(ctx); err != nil {
			return err
		} else if ok {
			return &domain.ContainerLifecycleError{Op: "start", Err: fmt.Errorf("%w: %s", domain.ErrAlreadyRunning, h)}
		}

		printf(cmd, "Starting sandbox from image %s...\n", cfg.Sandbox.Image)
		start := time.Now()
		h, err := mgr.Start(ctx)
		if err != nil {
			return err
		}
		printf(cmd, "Sandbox %s ready in %s\n", h, time.Since(start).Round(time.Millisecond))
		printf(cmd, "  commands: %s\n", h.CommandURL)
		printf(cmd, "  desktop:  http://%s:%d/vnc.html\n", cfg.Sandbox.Host, sandbox.PortBridge)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop and remove the sandbox container",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		mgr, err := app.SandboxManager(cfg)
		if err != nil {
			return err
		}
		defer mgr.Close()

		if _, _, err := mgr.Adopt(ctx); err != nil {
			return err
		}
		res, err := mgr.Stop(ctx)
		if err != nil {
			return err
		}
		printf(cmd, "%s\n", res.Message)
		return nil
	},
}

var commandURL string

func init() {
	rootCmd.AddCommand(startCmd, stopCmd)
}

// session is a connection to a sandbox for the duration of one command.
type session struct {
	// actions carries commands over the configured transport.
	actions tools.ActionClient
	// release closes actions and stops the sandbox if this command started it.
	release func()
}

// newSession opens the configured transport to c. stop runs after the
// transport is closed.
func newSession(ctx context.Context, c *client.Client, stop func()) (*session, error) {
	actions, closer, err := app.ActionClient(ctx, cfg, c)
	if err != nil {
		stop()
		return nil, err
	}
	return &session{actions: actions, release: func() {
		if err := closer.Close(); err != nil {
			slog.Debug("Closing action transport", "error", err)
		}
		stop()
	}}, nil
}

// connect returns a client for --url when set. Otherwise it uses the running
// sandbox, starting one when none is running.
func connect(ctx context.Context) (*session, error) {
	if commandURL != "" {
		c := app.Client(cfg, commandURL)
		if err := c.Health(ctx); err != nil {
			return nil, err
		}
		return newSession(ctx, c, func() {})
	}

	mgr, err := app.SandboxManager(cfg)
	if err != nil {
		return nil, err
	}
	h, ok, err := mgr.Adopt(ctx)
	if err != nil {
		mgr.Close()
		return nil, err
	}
	if ok {
		slog.Info("Using running sandbox", "sandbox", h.String())
		mgr.Close()
		return newSession(ctx, app.Client(cfg, h.CommandURL), func() {})
	}

	slog.Info("No sandbox running, starting one", "image", cfg.Sandbox.Image)
	h, err = mgr.Start(ctx)
	if err != nil {
		mgr.Close()
		return nil, err
	}
	release := func() {
		defer mgr.Close()
		// The run context may already be cancelled.
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := mgr.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Failed to stop sandbox", "error", err)
		}
	}
	return newSession(ctx, app.Client(cfg, h.CommandURL), release)
}

func addURLFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&commandURL, "url", "", "command server URL; skips sandbox management")
}
