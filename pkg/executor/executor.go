// Package executor defines the boundary between the command protocol and the
// code that actually drives the desktop.
package executor

import (
	"context"
	"sync"

	"github.com/nstogner/desktopctl/pkg/domain"
)

// Executor performs primitive desktop actions. Execute returns an error for
// faults; callers turn those into ActionResult.Error.
type Executor interface {
	Execute(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error)
	Resolution() domain.Resolution
}

// Func adapts a function to the Executor interface.
type Func struct {
	Res domain.Resolution
	Fn  func(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error)
}

func (f Func) Execute(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error) {
	return f.Fn(ctx, cmd)
}

func (f Func) Resolution() domain.Resolution { return f.Res }

// Recorder is an in-memory Executor that records every command it receives.
// Results are looked up by action kind; kinds without a configured result
// succeed with empty output.
type Recorder struct {
	Res     domain.Resolution
	Results map[domain.ActionKind]domain.ActionResult
	Errors  map[domain.ActionKind]error

	mu       sync.Mutex
	commands []domain.ActionCommand
}

func (r *Recorder) Execute(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()

	if err, ok := r.Errors[cmd.Action]; ok {
		return domain.ActionResult{}, err
	}
	return r.Results[cmd.Action], nil
}

func (r *Recorder) Resolution() domain.Resolution { return r.Res }

// Commands returns a copy of the commands received so far.
func (r *Recorder) Commands() []domain.ActionCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ActionCommand, len(r.commands))
	copy(out, r.commands)
	return out
}
