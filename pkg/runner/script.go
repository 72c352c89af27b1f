package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/desktopctl/pkg/client"
	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/locator"
	"github.com/nstogner/desktopctl/pkg/tools"
)

// Env is what a step may use while it runs.
type Env struct {
	RunID   string
	Client  tools.ActionClient
	Locator locator.Locator
}

// Outcome records what one step did.
type Outcome struct {
	Index int
	Name  string
	// Command is the command the step issued, if any.
	Command *domain.ActionCommand
	// Point is where a locate step resolved its query.
	Point    *domain.Point
	Result   domain.ActionResult
	Duration time.Duration
}

// Step is one unit of a scripted run.
type Step interface {
	Name() string
	Run(ctx context.Context, env *Env) (Outcome, error)
}

// Script is an ordered list of steps.
type Script struct {
	Name  string
	Steps []Step
}

// Report summarizes a scripted run.
type Report struct {
	RunID    string
	Outcomes []Outcome
}

// StepError reports the step that aborted a scripted run.
type StepError struct {
	Index int
	Name  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// RunScript runs the steps of s in order. The first failing step aborts the
// run; the outcomes of the steps that completed are returned with the error.
func (r *Runner) RunScript(ctx context.Context, s Script) (Report, error) {
	rep := Report{RunID: uuid.NewString()}
	env := &Env{RunID: rep.RunID, Client: r.client, Locator: r.locator}
	log := slog.With("run", rep.RunID, "script", s.Name)
	log.Info("Starting script", "steps", len(s.Steps))

	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			r.emit(Event{RunID: rep.RunID, Step: i, Type: EventFailed, Name: step.Name(), Err: err})
			return rep, err
		}

		r.emit(Event{RunID: rep.RunID, Step: i, Type: EventStepStarted, Name: step.Name()})
		start := time.Now()
		out, err := step.Run(ctx, env)
		out.Index = i
		out.Name = step.Name()
		out.Duration = time.Since(start)
		if err != nil {
			serr := &StepError{Index: i, Name: step.Name(), Err: err}
			log.Error("Step failed", "step", i, "name", step.Name(), "error", err)
			r.emit(Event{RunID: rep.RunID, Step: i, Type: EventFailed, Name: step.Name(), Err: serr})
			return rep, serr
		}

		rep.Outcomes = append(rep.Outcomes, out)
		log.Debug("Step finished", "step", i, "name", step.Name(), "duration", out.Duration)
		res := out.Result
		r.emit(Event{RunID: rep.RunID, Step: i, Type: EventStepFinished, Name: step.Name(), Result: &res})
	}

	log.Info("Script finished")
	r.emit(Event{RunID: rep.RunID, Step: len(s.Steps), Type: EventDone})
	return rep, nil
}

// do issues cmd and turns a result error into an ActionExecutionError.
func do(ctx context.Context, env *Env, cmd domain.ActionCommand) (Outcome, error) {
	out := Outcome{Command: &cmd}
	res, err := env.Client.Do(ctx, cmd)
	if err != nil {
		return out, err
	}
	out.Result = res
	return out, client.AsError(res, cmd.Action)
}

type stepFunc struct {
	name string
	fn   func(ctx context.Context, env *Env) (Outcome, error)
}

func (s stepFunc) Name() string { return s.name }

func (s stepFunc) Run(ctx context.Context, env *Env) (Outcome, error) { return s.fn(ctx, env) }

// NewStep builds a Step from a function.
func NewStep(name string, fn func(ctx context.Context, env *Env) (Outcome, error)) Step {
	return stepFunc{name: name, fn: fn}
}

// Act issues cmd as is.
func Act(cmd domain.ActionCommand) Step {
	return NewStep(cmd.String(), func(ctx context.Context, env *Env) (Outcome, error) {
		return do(ctx, env, cmd)
	})
}

// Click left-clicks at the current cursor position.
func Click() Step {
	return Act(domain.NewCommand(domain.ActionLeftClick))
}

// Type types text.
func Type(text string) Step {
	return Act(domain.NewCommand(domain.ActionType).WithText(text))
}

// Key presses a key or chord such as "Return" or "ctrl+l".
func Key(text string) Step {
	return Act(domain.NewCommand(domain.ActionKey).WithText(text))
}

// Move moves the pointer to p.
func Move(p domain.Point) Step {
	return Act(domain.NewCommand(domain.ActionMouseMove).WithCoordinate(p))
}

// Wait pauses the script for d.
func Wait(d time.Duration) Step {
	return NewStep("wait "+d.String(), func(ctx context.Context, env *Env) (Outcome, error) {
		if err := tools.Sleep(ctx, d); err != nil {
			return Outcome{}, err
		}
		return Outcome{Result: domain.OK("waited " + d.String())}, nil
	})
}

// Locate finds query on a fresh screenshot and performs kind at the resolved
// point. kind must accept a coordinate.
func Locate(query string, kind domain.ActionKind) Step {
	return NewStep(fmt.Sprintf("%s %q", kind, query), func(ctx context.Context, env *Env) (Outcome, error) {
		if !kind.AcceptsCoordinate() {
			return Outcome{}, &domain.ValidationError{Field: "action", Reason: fmt.Sprintf("%s does not take a coordinate", kind)}
		}
		p, _, err := Resolve(ctx, env.Client, env.Locator, query)
		if err != nil {
			return Outcome{}, err
		}
		out, err := do(ctx, env, domain.NewCommand(kind).WithCoordinate(p))
		out.Point = &p
		return out, err
	})
}
