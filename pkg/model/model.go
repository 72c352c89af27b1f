// Package model defines the decision collaborator consulted by model-driven
// runs.
package model

import (
	"context"

	"github.com/nstogner/desktopctl/pkg/domain"
)

// ToolSpec describes a tool the model may call.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is everything a provider sees for one decision.
type Request struct {
	Model        string
	Instructions string
	Messages     []domain.Message
	// Screenshot is the current state of the display, captured just before
	// the decision. It is not part of the history.
	Screenshot []byte
	Tools      []ToolSpec
}

// Provider represents a service that decides the next step of a run.
type Provider interface {
	Name() string

	// Stream sends the request to the model and returns its response stream.
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream abstracts the stream of responses from the model.
type Stream interface {
	// FullMessage blocks until the full message is available.
	FullMessage() (domain.Message, error)
	Close() error
}

// StaticStream is a Stream over an already complete message.
type StaticStream struct {
	Msg domain.Message
}

func (s *StaticStream) FullMessage() (domain.Message, error) { return s.Msg, nil }
func (s *StaticStream) Close() error                         { return nil }
