// Command sandboxd runs inside the sandbox image and serves the command
// protocol on top of xdotool.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/nstogner/desktopctl/pkg/config"
	"github.com/nstogner/desktopctl/pkg/executor/xdotool"
	"github.com/nstogner/desktopctl/pkg/logging"
	"github.com/nstogner/desktopctl/pkg/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:          "sandboxd",
		Short:        "Serve desktop actions over HTTP and websocket",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./desktopctl.yaml)")
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().Int("width", 0, "display width in pixels")
	cmd.Flags().Int("height", 0, "display height in pixels")
	cmd.Flags().String("display", "", "X display to drive")
	cmd.Flags().Duration("screenshot-delay", 0, "capture a screenshot this long after each action; 0 disables")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		v := config.NewViper(cfgFile)
		for key, flag := range map[string]string{
			"server.addr":             "addr",
			"server.width":            "width",
			"server.height":           "height",
			"server.display":          "display",
			"server.screenshot_delay": "screenshot-delay",
		} {
			if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return err
			}
		}
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if cfgFile != "" || !errors.As(err, &nf) {
				return fmt.Errorf("reading config file: %w", err)
			}
		}
		cfg, err := config.FromViper(v)
		if err != nil {
			return err
		}
		closer, err := logging.Setup(cfg.Log)
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return serve(ctx, cfg.Server)
	}
	return cmd
}

func serve(ctx context.Context, cfg config.ServerConfig) error {
	exec := xdotool.New(xdotool.Config{
		Width:           cfg.Width,
		Height:          cfg.Height,
		Display:         cfg.Display,
		ScreenshotDelay: cfg.ScreenshotDelay,
	})
	if res, err := exec.DetectResolution(ctx); err != nil {
		slog.Warn("Using configured display size", "width", cfg.Width, "height", cfg.Height, "error", err)
	} else {
		slog.Info("Detected display size", "width", res.Width, "height", res.Height)
	}
	srv := server.New(exec)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down command server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
