// Package xdotool implements executor.Executor on an X11 display using the
// xdotool and scrot binaries available inside the sandbox image.
package xdotool

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/desktopctl/pkg/domain"
)

const (
	typingChunkSize = 50
	typingDelayMS   = 12
)

// CommandRunner runs an external program and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec, pointing them at Display.
type ExecRunner struct {
	Display string
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	if r.Display != "" {
		cmd.Env = append(cmd.Env, "DISPLAY="+r.Display)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return out, nil
}

// Config configures an Executor.
type Config struct {
	Width   int
	Height  int
	Display string
	// ScreenshotDir holds temporary captures.
	ScreenshotDir string
	// ScreenshotDelay is how long to wait after a mutating action before
	// capturing a confirmation screenshot. Zero disables the capture.
	ScreenshotDelay time.Duration
	// Runner overrides how programs are run. Defaults to ExecRunner.
	Runner CommandRunner
}

type handler func(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error)

// Executor drives the desktop through xdotool.
type Executor struct {
	cfg      Config
	run      CommandRunner
	handlers map[domain.ActionKind]handler
}

// New returns an Executor for cfg.
func New(cfg Config) *Executor {
	if cfg.Width == 0 {
		cfg.Width = 1024
	}
	if cfg.Height == 0 {
		cfg.Height = 768
	}
	if cfg.ScreenshotDir == "" {
		cfg.ScreenshotDir = os.TempDir()
	}
	run := cfg.Runner
	if run == nil {
		run = ExecRunner{Display: cfg.Display}
	}

	e := &Executor{cfg: cfg, run: run}
	e.handlers = map[domain.ActionKind]handler{
		domain.ActionLeftClick:      e.click("1", 1),
		domain.ActionRightClick:     e.click("3", 1),
		domain.ActionMiddleClick:    e.click("2", 1),
		domain.ActionDoubleClick:    e.click("1", 2),
		domain.ActionMouseMove:      e.mouseMove,
		domain.ActionLeftClickDrag:  e.drag,
		domain.ActionCursorPosition: e.cursorPosition,
		domain.ActionScreenshot:     e.screenshot,
		domain.ActionType:           e.typeText,
		domain.ActionKey:            e.key,
	}
	return e
}

func (e *Executor) Resolution() domain.Resolution {
	return domain.Resolution{Width: e.cfg.Width, Height: e.cfg.Height}
}

// DetectResolution replaces the configured size with the geometry reported by
// the X display. Call it before serving; Resolution is not synchronized.
func (e *Executor) DetectResolution(ctx context.Context) (domain.Resolution, error) {
	out, err := e.xdotool(ctx, "getdisplaygeometry")
	if err != nil {
		return e.Resolution(), fmt.Errorf("querying display geometry: %w", err)
	}
	var w, h int
	if _, err := fmt.Sscanf(out, "%d %d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return e.Resolution(), fmt.Errorf("unexpected getdisplaygeometry output %q", out)
	}
	e.cfg.Width, e.cfg.Height = w, h
	return e.Resolution(), nil
}

// Execute performs cmd. The command must already be validated.
func (e *Executor) Execute(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error) {
	h, ok := e.handlers[cmd.Action]
	if !ok {
		return domain.ActionResult{}, &domain.ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", cmd.Action)}
	}
	slog.Debug("Executing action", "action", cmd.String())
	return h(ctx, cmd)
}

func (e *Executor) xdotool(ctx context.Context, args ...string) (string, error) {
	out, err := e.run.Run(ctx, "xdotool", args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// finish wraps the output of a mutating action, attaching a confirmation
// screenshot when configured.
func (e *Executor) finish(ctx context.Context, output string) (domain.ActionResult, error) {
	res := domain.OK(output)
	if e.cfg.ScreenshotDelay <= 0 {
		return res, nil
	}
	select {
	case <-ctx.Done():
		return res, ctx.Err()
	case <-time.After(e.cfg.ScreenshotDelay):
	}
	img, err := e.capture(ctx)
	if err != nil {
		slog.Warn("Confirmation screenshot failed", "error", err)
		return res, nil
	}
	res.Image = img
	return res, nil
}

func (e *Executor) click(button string, repeat int) handler {
	return func(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error) {
		var args []string
		if cmd.Coordinate != nil {
			args = append(args, "mousemove", "--sync", strconv.Itoa(cmd.Coordinate.X), strconv.Itoa(cmd.Coordinate.Y))
		}
		args = append(args, "click")
		if repeat > 1 {
			args = append(args, "--repeat", strconv.Itoa(repeat), "--delay", "10")
		}
		args = append(args, button)
		out, err := e.xdotool(ctx, args...)
		if err != nil {
			return domain.ActionResult{}, err
		}
		return e.finish(ctx, out)
	}
}

func (e *Executor) mouseMove(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error) {
	out, err := e.xdotool(ctx, "mousemove", "--sync", strconv.Itoa(cmd.Coordinate.X), strconv.Itoa(cmd.Coordinate.Y))
	if err != nil {
		return domain.ActionResult{}, err
	}
	return e.finish(ctx, out)
}

func (e *Executor) drag(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error) {
	out, err := e.xdotool(ctx,
		"mousedown", "1",
		"mousemove", "--sync", strconv.Itoa(cmd.Coordinate.X), strconv.Itoa(cmd.Coordinate.Y),
		"mouseup", "1")
	if err != nil {
		return domain.ActionResult{}, err
	}
	return e.finish(ctx, out)
}

func (e *Executor) cursorPosition(ctx context.Context, _ domain.ActionCommand) (domain.ActionResult, error) {
	out, err := e.xdotool(ctx, "getmouselocation", "--shell")
	if err != nil {
		return domain.ActionResult{}, err
	}
	p, err := parseMouseLocation(out)
	if err != nil {
		return domain.ActionResult{}, err
	}
	return domain.OK(fmt.Sprintf("X=%d,Y=%d", p.X, p.Y)), nil
}

// parseMouseLocation reads the X and Y lines of `getmouselocation --shell`.
func parseMouseLocation(out string) (domain.Point, error) {
	var p domain.Point
	var haveX, haveY bool
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		switch k {
		case "X":
			p.X, haveX = n, true
		case "Y":
			p.Y, haveY = n, true
		}
	}
	if !haveX || !haveY {
		return p, fmt.Errorf("unexpected getmouselocation output %q", out)
	}
	return p, nil
}

func (e *Executor) typeText(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error) {
	var outputs []string
	for _, chunk := range chunks(*cmd.Text, typingChunkSize) {
		out, err := e.xdotool(ctx, "type", "--delay", strconv.Itoa(typingDelayMS), "--", chunk)
		if err != nil {
			return domain.ActionResult{}, err
		}
		if out != "" {
			outputs = append(outputs, out)
		}
	}
	return e.finish(ctx, strings.Join(outputs, "\n"))
}

func (e *Executor) key(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error) {
	out, err := e.xdotool(ctx, "key", "--", *cmd.Text)
	if err != nil {
		return domain.ActionResult{}, err
	}
	return e.finish(ctx, out)
}

func (e *Executor) screenshot(ctx context.Context, _ domain.ActionCommand) (domain.ActionResult, error) {
	img, err := e.capture(ctx)
	if err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{Image: img}, nil
}

// capture grabs the root window with scrot, falling back to ImageMagick.
func (e *Executor) capture(ctx context.Context) ([]byte, error) {
	path := filepath.Join(e.cfg.ScreenshotDir, "screenshot_"+uuid.NewString()+".png")
	defer os.Remove(path)

	if _, err := e.run.Run(ctx, "scrot", "-p", path); err != nil {
		slog.Debug("scrot failed, falling back to import", "error", err)
		if _, err := e.run.Run(ctx, "import", "-window", "root", path); err != nil {
			return nil, fmt.Errorf("capturing screenshot: %w", err)
		}
	}
	img, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading screenshot: %w", err)
	}
	return img, nil
}

// chunks splits s into pieces of at most n runes.
func chunks(s string, n int) []string {
	r := []rune(s)
	var out []string
	for len(r) > n {
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}
