package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/executor"
	"github.com/nstogner/desktopctl/pkg/server"
)

func newSandbox(t *testing.T, rec *executor.Recorder) *Client {
	t.Helper()
	ts := httptest.NewServer(server.New(rec).Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL, WithTimeout(5*time.Second))
}

func TestClient_Actions(t *testing.T) {
	rec := &executor.Recorder{
		Res: domain.Resolution{Width: 1024, Height: 768},
		Results: map[domain.ActionKind]domain.ActionResult{
			domain.ActionScreenshot:     {Image: []byte{0x89, 'P', 'N', 'G'}},
			domain.ActionCursorPosition: domain.OK("X=500,Y=400"),
		},
	}
	c := newSandbox(t, rec)
	ctx := context.Background()

	if _, err := c.MouseMove(ctx, domain.Point{X: 500, Y: 400}); err != nil {
		t.Fatalf("MouseMove: %v", err)
	}
	if _, err := c.LeftClick(ctx, nil); err != nil {
		t.Fatalf("LeftClick: %v", err)
	}
	if _, err := c.DoubleClick(ctx, &domain.Point{X: 1, Y: 2}); err != nil {
		t.Fatalf("DoubleClick: %v", err)
	}
	if _, err := c.Type(ctx, "nike.com"); err != nil {
		t.Fatalf("Type: %v", err)
	}
	if _, err := c.Key(ctx, "Return"); err != nil {
		t.Fatalf("Key: %v", err)
	}
	res, err := c.CursorPosition(ctx)
	if err != nil {
		t.Fatalf("CursorPosition: %v", err)
	}
	if res.Output != "X=500,Y=400" {
		t.Errorf("unexpected cursor output %q", res.Output)
	}
	res, err = c.Screenshot(ctx)
	if err != nil {
		t.Fatalf("Screenshot: %v", err)
	}
	if string(res.Image) != "\x89PNG" {
		t.Errorf("unexpected image %q", res.Image)
	}

	cmds := rec.Commands()
	want := []domain.ActionKind{
		domain.ActionMouseMove, domain.ActionLeftClick, domain.ActionDoubleClick,
		domain.ActionType, domain.ActionKey, domain.ActionCursorPosition, domain.ActionScreenshot,
	}
	if len(cmds) != len(want) {
		t.Fatalf("expected %d commands, got %d", len(want), len(cmds))
	}
	for i, k := range want {
		if cmds[i].Action != k {
			t.Errorf("command %d: expected %s, got %s", i, k, cmds[i].Action)
		}
	}
	if cmds[1].Coordinate != nil {
		t.Errorf("click at cursor should not carry a coordinate")
	}
	if *cmds[3].Text != "nike.com" {
		t.Errorf("unexpected typed text %q", *cmds[3].Text)
	}
}

func TestClient_ExecutionFailureIsData(t *testing.T) {
	rec := &executor.Recorder{
		Res:    domain.Resolution{Width: 1024, Height: 768},
		Errors: map[domain.ActionKind]error{domain.ActionLeftClick: errors.New("no display")},
	}
	c := newSandbox(t, rec)

	res, err := c.LeftClick(context.Background(), &domain.Point{X: 10, Y: 10})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !res.IsError() {
		t.Fatal("expected result error")
	}

	var ae *domain.ActionExecutionError
	if !errors.As(AsError(res, domain.ActionLeftClick), &ae) {
		t.Fatalf("expected ActionExecutionError")
	}
	if AsError(domain.OK("fine"), domain.ActionLeftClick) != nil {
		t.Error("expected nil for successful result")
	}
}

func TestClient_ValidationError(t *testing.T) {
	rec := &executor.Recorder{Res: domain.Resolution{Width: 1024, Height: 768}}
	c := newSandbox(t, rec)

	_, err := c.Do(context.Background(), domain.NewCommand(domain.ActionType))
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(rec.Commands()) != 0 {
		t.Error("executor should not be invoked")
	}
}

func TestClient_NetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := New(url, WithTimeout(time.Second))
	_, err := c.Screenshot(context.Background())
	var ne *domain.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if err := c.Health(context.Background()); !errors.As(err, &ne) {
		t.Fatalf("expected NetworkError from Health, got %v", err)
	}
}

func TestClient_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := New(ts.URL).Screenshot(context.Background())
	var ne *domain.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestClient_ServerFault(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := New(ts.URL).LeftClick(context.Background(), &domain.Point{X: 1, Y: 1})
	var ae *domain.ActionExecutionError
	if !errors.As(err, &ae) {
		t.Fatalf("expected ActionExecutionError, got %v", err)
	}
	if ae.Action != domain.ActionLeftClick {
		t.Errorf("unexpected action %s", ae.Action)
	}
	var ne *domain.NetworkError
	if errors.As(err, &ne) {
		t.Error("a server that answered must not be reported as unreachable")
	}
}

func TestStream(t *testing.T) {
	rec := &executor.Recorder{
		Res:     domain.Resolution{Width: 1024, Height: 768},
		Results: map[domain.ActionKind]domain.ActionResult{domain.ActionCursorPosition: domain.OK("X=3,Y=4")},
	}
	c := newSandbox(t, rec)
	ctx := context.Background()

	s, err := DialStream(ctx, c.BaseURL(), 5*time.Second)
	if err != nil {
		t.Fatalf("DialStream: %v", err)
	}
	defer s.Close()

	res, err := s.Do(ctx, domain.NewCommand(domain.ActionCursorPosition))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if res.Output != "X=3,Y=4" {
		t.Errorf("unexpected output %q", res.Output)
	}
	if _, err := s.Do(ctx, domain.NewCommand(domain.ActionMouseMove).WithCoordinate(domain.Point{X: 5, Y: 5})); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if n := len(rec.Commands()); n != 2 {
		t.Errorf("expected 2 commands, got %d", n)
	}
}

func TestStream_ErrorsMatchHTTP(t *testing.T) {
	rec := &executor.Recorder{
		Res:    domain.Resolution{Width: 1024, Height: 768},
		Errors: map[domain.ActionKind]error{domain.ActionLeftClick: errors.New("no display")},
	}
	c := newSandbox(t, rec)
	ctx := context.Background()

	s, err := DialStream(ctx, c.BaseURL(), 5*time.Second)
	if err != nil {
		t.Fatalf("DialStream: %v", err)
	}
	defer s.Close()

	// Rejected before execution.
	_, err = s.Do(ctx, domain.NewCommand(domain.ActionType))
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(rec.Commands()) != 0 {
		t.Error("executor should not be invoked")
	}

	// Executed and failed: data, not an error.
	res, err := s.Do(ctx, domain.NewCommand(domain.ActionLeftClick))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !res.IsError() {
		t.Error("expected result error")
	}
}

func TestStream_Cancelled(t *testing.T) {
	c := newSandbox(t, &executor.Recorder{Res: domain.Resolution{Width: 1024, Height: 768}})
	s, err := DialStream(context.Background(), c.BaseURL(), 0)
	if err != nil {
		t.Fatalf("DialStream: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Do(ctx, domain.NewCommand(domain.ActionScreenshot)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStream_DialFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := DialStream(context.Background(), url, time.Second)
	var ne *domain.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}
