package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/model"
	"github.com/nstogner/desktopctl/pkg/tools"
)

// State is a state of the model-driven loop.
type State int

const (
	AwaitDecision State = iota
	ExecuteTool
	AppendResult
	Done
)

func (s State) String() string {
	switch s {
	case AwaitDecision:
		return "await_decision"
	case ExecuteTool:
		return "execute_tool"
	case AppendResult:
		return "append_result"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ModelRun describes a model-driven run.
type ModelRun struct {
	Provider     model.Provider
	Tools        *tools.Registry
	Model        string
	Instructions string
	// History continues an earlier conversation. It is not modified.
	History []domain.Message
	// Task is appended to History as a user message when set.
	Task string
}

// Result is the outcome of a model-driven run.
type Result struct {
	RunID   string
	History []domain.Message
	// Steps is the number of tool calls executed.
	Steps int
}

// RunModel lets the provider drive the sandbox until it answers without a
// tool call. The accumulated history is returned on every path, including
// errors.
func (r *Runner) RunModel(ctx context.Context, run ModelRun) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	res.History = append(res.History, run.History...)
	if run.Task != "" {
		res.History = append(res.History, domain.NewTextMessage(domain.RoleUser, run.Task))
	}
	if len(res.History) == 0 {
		return res, errors.New("nothing to do: empty history and no task")
	}
	if run.Provider == nil || run.Tools == nil {
		return res, errors.New("model run requires a provider and tools")
	}

	log := slog.With("run", res.RunID, "provider", run.Provider.Name())
	fail := func(state State, err error) (Result, error) {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		log.Error("Run failed", "state", state, "steps", res.Steps, "error", err)
		r.emit(Event{RunID: res.RunID, Step: res.Steps, Type: EventFailed, State: state, Err: err})
		return res, err
	}

	var (
		state   = AwaitDecision
		pending domain.ToolUseContent
		outcome domain.ActionResult
	)
	for {
		if err := ctx.Err(); err != nil {
			return fail(state, err)
		}

		switch state {
		case AwaitDecision:
			if res.Steps >= r.maxSteps() {
				return fail(state, domain.ErrStepsExhausted)
			}
			msg, err := r.decide(ctx, run, res.History)
			if err != nil {
				return fail(state, err)
			}
			m := msg
			r.emit(Event{RunID: res.RunID, Step: res.Steps, Type: EventDecision, State: state, Message: &m})

			uses := msg.ToolUses()
			if len(uses) == 0 {
				if len(msg.Content) > 0 {
					res.History = append(res.History, msg)
				}
				state = Done
				continue
			}
			if len(uses) > 1 {
				log.Warn("Model requested several tools, running the first", "count", len(uses))
			}
			pending = uses[0]
			res.History = append(res.History, firstToolOnly(msg))
			state = ExecuteTool

		case ExecuteTool:
			res.Steps++
			log.Debug("Running tool", "step", res.Steps, "tool", pending.Name, "input", pending.Input)
			out, err := run.Tools.Run(ctx, pending.Name, pending.Input)
			if err != nil {
				if domain.IsFatal(err) || ctx.Err() != nil {
					return fail(state, err)
				}
				log.Warn("Tool failed", "tool", pending.Name, "error", err)
				out = domain.Failed(err)
			}
			outcome = out
			state = AppendResult

		case AppendResult:
			res.History = append(res.History, domain.Message{
				Role:    domain.RoleUser,
				Content: []domain.Content{domain.ToolResultBlock(pending.ID, outcome)},
			})
			o := outcome
			r.emit(Event{RunID: res.RunID, Step: res.Steps, Type: EventToolResult, State: state, Result: &o})
			state = AwaitDecision

		case Done:
			log.Info("Run finished", "steps", res.Steps)
			r.emit(Event{RunID: res.RunID, Step: res.Steps, Type: EventDone, State: state})
			return res, nil
		}
	}
}

// decide captures the display and asks the provider for the next message.
func (r *Runner) decide(ctx context.Context, run ModelRun, history []domain.Message) (domain.Message, error) {
	shot, err := Screenshot(ctx, r.client)
	if err != nil {
		var ae *domain.ActionExecutionError
		if !errors.As(err, &ae) {
			return domain.Message{}, fmt.Errorf("capturing screenshot: %w", err)
		}
		// The sandbox answered but could not capture; decide blind.
		slog.Warn("Screenshot failed, deciding without one", "error", err)
		shot = nil
	}

	stream, err := run.Provider.Stream(ctx, model.Request{
		Model:        run.Model,
		Instructions: run.Instructions,
		Messages:     history,
		Screenshot:   shot,
		Tools:        run.Tools.Specs(),
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("requesting decision: %w", err)
	}
	defer stream.Close()

	msg, err := stream.FullMessage()
	if err != nil {
		return domain.Message{}, fmt.Errorf("reading decision: %w", err)
	}
	if msg.Role == "" {
		msg.Role = domain.RoleAssistant
	}
	return msg, nil
}

// firstToolOnly drops every tool_use block after the first.
func firstToolOnly(msg domain.Message) domain.Message {
	out := domain.Message{Role: msg.Role}
	seen := false
	for _, c := range msg.Content {
		if c.Type == domain.ContentTypeToolUse {
			if seen {
				continue
			}
			seen = true
		}
		out.Content = append(out.Content, c)
	}
	return out
}
