package domain

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"
)

func TestNormalizedPoint_ToPixels(t *testing.T) {
	tests := []struct {
		p    NormalizedPoint
		w, h int
		want Point
	}{
		{NormalizedPoint{0.5, 0.5}, 1000, 800, Point{500, 400}},
		{NormalizedPoint{0, 0}, 1000, 800, Point{0, 0}},
		{NormalizedPoint{1, 1}, 1000, 800, Point{1000, 800}},
		{NormalizedPoint{0, 1}, 1280, 720, Point{0, 720}},
		{NormalizedPoint{1, 0}, 1280, 720, Point{1280, 0}},
		{NormalizedPoint{0.3333, 0.6667}, 1024, 768, Point{341, 512}},
		{NormalizedPoint{0.25, 0.5}, 2, 3, Point{1, 2}},
	}
	for _, tt := range tests {
		if got := tt.p.ToPixels(tt.w, tt.h); got != tt.want {
			t.Errorf("%v.ToPixels(%d, %d) = %v, want %v", tt.p, tt.w, tt.h, got, tt.want)
		}
	}
}

func TestNormalizedPoint_ToScreen(t *testing.T) {
	res := Resolution{Width: 1000, Height: 800}
	tests := []struct {
		p    NormalizedPoint
		want Point
	}{
		{NormalizedPoint{0.5, 0.5}, Point{500, 400}},
		{NormalizedPoint{0, 0}, Point{0, 0}},
		{NormalizedPoint{1, 1}, Point{999, 799}},
		{NormalizedPoint{1, 0}, Point{999, 0}},
		{NormalizedPoint{0.9996, 0.5}, Point{999, 400}},
	}
	for _, tt := range tests {
		got := tt.p.ToScreen(res.Width, res.Height)
		if got != tt.want {
			t.Errorf("%v.ToScreen(1000, 800) = %v, want %v", tt.p, got, tt.want)
		}
		if !res.Contains(got) {
			t.Errorf("%v is not on the display", got)
		}
	}
}

func TestNormalizedPoint_Valid(t *testing.T) {
	for _, p := range []NormalizedPoint{{0, 0}, {1, 1}, {0.5, 0.25}} {
		if !p.Valid() {
			t.Errorf("expected %v to be valid", p)
		}
	}
	for _, p := range []NormalizedPoint{{-0.1, 0}, {0, 1.01}, {2, 2}} {
		if p.Valid() {
			t.Errorf("expected %v to be invalid", p)
		}
	}
}

func TestImageSize(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1000, 800))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	w, h, err := ImageSize(buf.Bytes())
	if err != nil {
		t.Fatalf("ImageSize: %v", err)
	}
	if w != 1000 || h != 800 {
		t.Errorf("got %dx%d, want 1000x800", w, h)
	}

	if _, _, err := ImageSize(nil); err == nil {
		t.Error("expected error for empty image")
	}
	if _, _, err := ImageSize([]byte("not an image")); err == nil {
		t.Error("expected error for garbage")
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(&LocateError{Query: "x"}) {
		t.Error("LocateError should be fatal")
	}
	if !IsFatal(&ContainerLifecycleError{Op: "start", Err: ErrAlreadyRunning}) {
		t.Error("ContainerLifecycleError should be fatal")
	}
	if IsFatal(&NetworkError{Op: "POST", URL: "http://x", Err: errors.New("refused")}) {
		t.Error("NetworkError should not be fatal")
	}
	if IsFatal(&ActionExecutionError{Action: ActionLeftClick, Message: "x"}) {
		t.Error("ActionExecutionError should not be fatal")
	}
}
