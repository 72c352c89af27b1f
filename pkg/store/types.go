package store

import (
	"time"

	"github.com/nstogner/desktopctl/pkg/domain"
)

// EntryType tags each line of a run log.
type EntryType string

const (
	TypeRun     EntryType = "run"
	TypeMessage EntryType = "message"
	TypeStep    EntryType = "step"
	TypeStatus  EntryType = "status"
)

// Run modes.
const (
	ModeModel  = "model"
	ModeScript = "script"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Header is the first line of a run log.
type Header struct {
	Type      EntryType `json:"type"` // Always "run"
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Task      string    `json:"task,omitempty"`
	Script    string    `json:"script,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Sandbox   string    `json:"sandbox,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}

// Entry is a tagged union of everything recorded after the header.
type Entry struct {
	Type      EntryType `json:"type"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Only one of these will be non-nil
	Message *domain.Message `json:"message,omitempty"`
	Step    *StepEntry      `json:"step,omitempty"`
	Status  *StatusEntry    `json:"status,omitempty"`
}

// StepEntry records one scripted step.
type StepEntry struct {
	Index      int                   `json:"index"`
	Name       string                `json:"name"`
	Command    *domain.ActionCommand `json:"command,omitempty"`
	Point      *domain.Point         `json:"point,omitempty"`
	Output     string                `json:"output,omitempty"`
	Error      string                `json:"error,omitempty"`
	DurationMS int64                 `json:"duration_ms"`
}

// StatusEntry records a change of run status.
type StatusEntry struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// RunInfo summarizes a stored run.
type RunInfo struct {
	ID           string
	Path         string
	Mode         string
	Task         string
	Status       string
	Created      time.Time
	Modified     time.Time
	MessageCount int
}
