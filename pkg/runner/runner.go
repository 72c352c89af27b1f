// Package runner drives a desktop sandbox, either through a fixed script of
// locate-and-act steps or by letting a model decide each action.
package runner

import (
	"github.com/nstogner/desktopctl/pkg/locator"
	"github.com/nstogner/desktopctl/pkg/tools"
)

// DefaultMaxSteps bounds model-driven runs when Options.MaxSteps is zero.
const DefaultMaxSteps = 25

// Options tunes a Runner.
type Options struct {
	// MaxSteps bounds the tool steps of a model-driven run.
	MaxSteps int
	Observer Observer
}

// Runner executes runs against one sandbox. A Runner holds no per-run state;
// history is passed in and returned explicitly.
type Runner struct {
	client  tools.ActionClient
	locator locator.Locator
	opts    Options
}

// New returns a Runner issuing actions through client. loc may be nil for
// runs that never locate elements.
func New(client tools.ActionClient, loc locator.Locator, opts Options) *Runner {
	return &Runner{client: client, locator: loc, opts: opts}
}

func (r *Runner) maxSteps() int {
	if r.opts.MaxSteps > 0 {
		return r.opts.MaxSteps
	}
	return DefaultMaxSteps
}
