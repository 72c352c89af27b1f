package cmd

import (
	"log/slog"

	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/runner"
	"github.com/nstogner/desktopctl/pkg/store"
	"github.com/nstogner/desktopctl/pkg/store/jsonl"
)

// recorder writes a run transcript. Recording failures are logged and never
// fail the run.
type recorder struct {
	run store.Run
}

func newRecorder(h store.Header) *recorder {
	if cfg.Store.Dir == "" {
		return &recorder{}
	}
	mgr, err := jsonl.NewManager(cfg.Store.Dir)
	if err != nil {
		slog.Warn("Run recording disabled", "error", err)
		return &recorder{}
	}
	run, err := mgr.NewRun(h)
	if err != nil {
		slog.Warn("Run recording disabled", "error", err)
		return &recorder{}
	}
	if err := run.SetStatus(store.StatusRunning, nil); err != nil {
		slog.Warn("Recording run status", "error", err)
	}
	return &recorder{run: run}
}

// loadRecorder reopens a recorded run to continue it.
func loadRecorder(id string) (*recorder, error) {
	mgr, err := jsonl.NewManager(cfg.Store.Dir)
	if err != nil {
		return nil, err
	}
	run, err := mgr.LoadRun(id)
	if err != nil {
		return nil, err
	}
	return &recorder{run: run}, nil
}

func (r *recorder) history() []domain.Message {
	if r.run == nil {
		return nil
	}
	return r.run.Messages()
}

func (r *recorder) messages(msgs ...domain.Message) {
	if r.run == nil || len(msgs) == 0 {
		return
	}
	if err := r.run.AppendMessages(msgs...); err != nil {
		slog.Warn("Recording messages", "error", err)
	}
}

func (r *recorder) step(o runner.Outcome) {
	if r.run == nil {
		return
	}
	s := store.StepEntry{
		Index:      o.Index,
		Name:       o.Name,
		Command:    o.Command,
		Point:      o.Point,
		Output:     o.Result.Output,
		Error:      o.Result.Error,
		DurationMS: o.Duration.Milliseconds(),
	}
	if err := r.run.AppendStep(s); err != nil {
		slog.Warn("Recording step", "error", err)
	}
}

func (r *recorder) finish(err error) {
	if r.run == nil {
		return
	}
	status := store.StatusCompleted
	if err != nil {
		status = store.StatusFailed
	}
	if serr := r.run.SetStatus(status, err); serr != nil {
		slog.Warn("Recording run status", "error", serr)
	}
}

func (r *recorder) id() string {
	if r.run == nil {
		return ""
	}
	return r.run.ID()
}

func (r *recorder) close() {
	if r.run != nil {
		r.run.Close()
	}
}
