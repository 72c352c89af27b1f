// Package store persists run transcripts so that model-driven conversations
// can be inspected and continued.
package store

import "github.com/nstogner/desktopctl/pkg/domain"

// Manager creates and finds runs.
type Manager interface {
	// NewRun starts a new run log described by h. h.ID is generated when
	// empty.
	NewRun(h Header) (Run, error)

	// LoadRun opens an existing run for reading and appending.
	LoadRun(id string) (Run, error)

	// ListRuns returns all runs, most recently modified first.
	ListRuns() ([]RunInfo, error)
}

// Run is an append-only run log.
type Run interface {
	ID() string
	Header() Header

	// AppendMessages records conversation turns. Image payloads are not
	// persisted.
	AppendMessages(msgs ...domain.Message) error

	AppendStep(s StepEntry) error

	// SetStatus records the run status. err may be nil.
	SetStatus(status string, err error) error

	// Status is the last recorded status.
	Status() string

	// Messages returns the recorded conversation in order.
	Messages() []domain.Message

	Entries() []Entry

	Close() error
}
