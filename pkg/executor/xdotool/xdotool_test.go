package xdotool

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/nstogner/desktopctl/pkg/domain"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls   []call
	outputs map[string]string
	fail    map[string]bool
	image   []byte
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.fail[name] {
		return nil, errors.New(name + " exploded")
	}
	if name == "scrot" || name == "import" {
		path := args[len(args)-1]
		if err := os.WriteFile(path, f.image, 0o644); err != nil {
			return nil, err
		}
	}
	return []byte(f.outputs[name]), nil
}

func newTestExecutor(t *testing.T, r *fakeRunner) *Executor {
	t.Helper()
	return New(Config{Width: 1024, Height: 768, ScreenshotDir: t.TempDir(), Runner: r})
}

func TestExecutor_ClickAtCoordinate(t *testing.T) {
	r := &fakeRunner{}
	e := newTestExecutor(t, r)

	cmd := domain.NewCommand(domain.ActionLeftClick).WithCoordinate(domain.Point{X: 500, Y: 400})
	if _, err := e.Execute(context.Background(), cmd); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(r.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(r.calls))
	}
	got := strings.Join(r.calls[0].args, " ")
	if got != "mousemove --sync 500 400 click 1" {
		t.Errorf("unexpected args %q", got)
	}
}

func TestExecutor_DoubleClickAtCursor(t *testing.T) {
	r := &fakeRunner{}
	e := newTestExecutor(t, r)

	if _, err := e.Execute(context.Background(), domain.NewCommand(domain.ActionDoubleClick)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := strings.Join(r.calls[0].args, " ")
	if got != "click --repeat 2 --delay 10 1" {
		t.Errorf("unexpected args %q", got)
	}
}

func TestExecutor_TypeChunks(t *testing.T) {
	r := &fakeRunner{}
	e := newTestExecutor(t, r)

	text := strings.Repeat("a", 120)
	if _, err := e.Execute(context.Background(), domain.NewCommand(domain.ActionType).WithText(text)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(r.calls) != 3 {
		t.Fatalf("expected 3 type calls, got %d", len(r.calls))
	}
	var typed string
	for _, c := range r.calls {
		if c.args[0] != "type" {
			t.Fatalf("unexpected subcommand %q", c.args[0])
		}
		typed += c.args[len(c.args)-1]
	}
	if typed != text {
		t.Errorf("typed text mismatch")
	}
}

func TestExecutor_CursorPosition(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{"xdotool": "X=512\nY=300\nSCREEN=0\nWINDOW=123\n"}}
	e := newTestExecutor(t, r)

	res, err := e.Execute(context.Background(), domain.NewCommand(domain.ActionCursorPosition))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Output != "X=512,Y=300" {
		t.Errorf("unexpected output %q", res.Output)
	}
}

func TestExecutor_DetectResolution(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{"xdotool": "1920 1080\n"}}
	e := newTestExecutor(t, r)

	res, err := e.DetectResolution(context.Background())
	if err != nil {
		t.Fatalf("DetectResolution: %v", err)
	}
	want := domain.Resolution{Width: 1920, Height: 1080}
	if res != want || e.Resolution() != want {
		t.Errorf("expected %v, got %v", want, e.Resolution())
	}
	if got := strings.Join(r.calls[0].args, " "); got != "getdisplaygeometry" {
		t.Errorf("unexpected args %q", got)
	}

	// A click beyond the configured 1024x768 is now on the display.
	cmd := domain.NewCommand(domain.ActionLeftClick).WithCoordinate(domain.Point{X: 1900, Y: 1000})
	if err := cmd.Validate(e.Resolution()); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestExecutor_DetectResolutionKeepsConfigOnFailure(t *testing.T) {
	for name, r := range map[string]*fakeRunner{
		"command fails": {fail: map[string]bool{"xdotool": true}},
		"garbage":       {outputs: map[string]string{"xdotool": "Error: no display"}},
	} {
		t.Run(name, func(t *testing.T) {
			e := newTestExecutor(t, r)
			if _, err := e.DetectResolution(context.Background()); err == nil {
				t.Fatal("expected error")
			}
			if e.Resolution() != (domain.Resolution{Width: 1024, Height: 768}) {
				t.Errorf("configured resolution changed to %v", e.Resolution())
			}
		})
	}
}

func TestParseMouseLocation_Invalid(t *testing.T) {
	if _, err := parseMouseLocation("SCREEN=0"); err == nil {
		t.Error("expected error for missing coordinates")
	}
}

func TestExecutor_ScreenshotFallback(t *testing.T) {
	r := &fakeRunner{fail: map[string]bool{"scrot": true}, image: []byte("png-bytes")}
	e := newTestExecutor(t, r)

	res, err := e.Execute(context.Background(), domain.NewCommand(domain.ActionScreenshot))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(res.Image) != "png-bytes" {
		t.Errorf("unexpected image %q", res.Image)
	}
	if len(r.calls) != 2 || r.calls[1].name != "import" {
		t.Errorf("expected scrot then import, got %+v", r.calls)
	}
	if _, err := os.Stat(r.calls[1].args[len(r.calls[1].args)-1]); !os.IsNotExist(err) {
		t.Errorf("expected temporary capture to be removed")
	}
}

func TestExecutor_Failure(t *testing.T) {
	r := &fakeRunner{fail: map[string]bool{"xdotool": true}}
	e := newTestExecutor(t, r)

	_, err := e.Execute(context.Background(), domain.NewCommand(domain.ActionKey).WithText("Return"))
	if err == nil {
		t.Fatal("expected error")
	}
}
