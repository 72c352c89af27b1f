package runner

import (
	"time"

	"github.com/nstogner/desktopctl/pkg/domain"
)

// EventType identifies what happened in a run.
type EventType string

const (
	EventStepStarted  EventType = "step_started"
	EventStepFinished EventType = "step_finished"
	EventDecision     EventType = "decision"
	EventToolResult   EventType = "tool_result"
	EventDone         EventType = "done"
	EventFailed       EventType = "failed"
)

// Event reports progress of a run. Events are delivered synchronously from
// the loop goroutine, so observers must not block or call back into the
// runner.
type Event struct {
	RunID   string
	Step    int
	Type    EventType
	State   State
	Name    string
	Message *domain.Message
	Result  *domain.ActionResult
	Err     error
	Time    time.Time
}

// Observer receives run events.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// ChanObserver forwards events to a channel without blocking the run; events
// are dropped when the channel is full.
type ChanObserver chan<- Event

func (c ChanObserver) OnEvent(e Event) {
	select {
	case c <- e:
	default:
	}
}

func (r *Runner) emit(e Event) {
	if r.opts.Observer == nil {
		return
	}
	e.Time = time.Now()
	r.opts.Observer.OnEvent(e)
}
