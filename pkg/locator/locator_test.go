package locator

import (
	"context"
	"errors"
	"testing"

	"github.com/nstogner/desktopctl/pkg/domain"
)

func TestParsePoint(t *testing.T) {
	good := map[string]domain.NormalizedPoint{
		"[0.5, 0.5]":                 {X: 0.5, Y: 0.5},
		"(0.12,0.9)":                 {X: 0.12, Y: 0.9},
		"  [0, 1]\n":                 {X: 0, Y: 1},
		"```json\n[0.31, 0.07]\n```": {X: 0.31, Y: 0.07},
		"[1.0, 0.0]":                 {X: 1, Y: 0},
	}
	for in, want := range good {
		got, err := ParsePoint(in)
		if err != nil {
			t.Errorf("ParsePoint(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParsePoint(%q) = %v, want %v", in, got, want)
		}
	}

	for _, in := range []string{"", "the button is top left", "[0.5]", "[0.5, 0.5, 0.5]", "[1.2, 0.3]", "[-0.1, 0.3]", "[a, b]"} {
		_, err := ParsePoint(in)
		var le *domain.LocateError
		if !errors.As(err, &le) {
			t.Errorf("ParsePoint(%q): expected LocateError, got %v", in, err)
		}
	}
}

func TestWithRetry(t *testing.T) {
	calls := 0
	flaky := Func(func(ctx context.Context, image []byte, query string) (domain.NormalizedPoint, error) {
		calls++
		if calls < 3 {
			return domain.NormalizedPoint{}, &domain.LocateError{Query: query, Raw: "nope"}
		}
		return domain.NormalizedPoint{X: 0.2, Y: 0.4}, nil
	})

	p, err := WithRetry(flaky, 3).Locate(context.Background(), nil, "Men")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if p != (domain.NormalizedPoint{X: 0.2, Y: 0.4}) || calls != 3 {
		t.Errorf("unexpected point %v after %d calls", p, calls)
	}

	calls = 0
	if _, err := WithRetry(flaky, 1).Locate(context.Background(), nil, "Men"); err == nil {
		t.Error("a single attempt should surface the first failure")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestWithRetry_NonLocateErrorNotRetried(t *testing.T) {
	calls := 0
	broken := Func(func(ctx context.Context, image []byte, query string) (domain.NormalizedPoint, error) {
		calls++
		return domain.NormalizedPoint{}, errors.New("quota exceeded")
	})
	if _, err := WithRetry(broken, 5).Locate(context.Background(), nil, "x"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestFixed(t *testing.T) {
	l := Fixed{"Men": {X: 0.1, Y: 0.2}}
	if p, err := l.Locate(context.Background(), nil, "Men"); err != nil || p.X != 0.1 {
		t.Errorf("unexpected %v, %v", p, err)
	}
	_, err := l.Locate(context.Background(), nil, "Women")
	var le *domain.LocateError
	if !errors.As(err, &le) || le.Query != "Women" {
		t.Errorf("expected LocateError for unknown query, got %v", err)
	}
}
