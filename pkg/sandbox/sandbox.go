// Package sandbox manages the lifecycle of the desktop sandbox container.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

// Port is a fixed container port published on the same host port.
type Port struct {
	Name      string
	Container int
	Host      int
}

// Well-known ports of the sandbox image.
const (
	PortDisplay  = 5900 // VNC display server
	PortChatUI   = 8501
	PortBridge   = 6080 // noVNC remote-desktop bridge, also the readiness target
	PortWebUI    = 8080
	PortCommands = 5000 // command protocol
)

// DefaultPorts is the port map every sandbox is started with. It is fixed,
// not negotiated.
var DefaultPorts = []Port{
	{Name: "display", Container: PortDisplay, Host: PortDisplay},
	{Name: "chat-ui", Container: PortChatUI, Host: PortChatUI},
	{Name: "bridge", Container: PortBridge, Host: PortBridge},
	{Name: "web-ui", Container: PortWebUI, Host: PortWebUI},
	{Name: "commands", Container: PortCommands, Host: PortCommands},
}

// Handle identifies the running sandbox container.
type Handle struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CommandURL string    `json:"command_url"`
	StartedAt  time.Time `json:"started_at"`
}

func (h Handle) String() string {
	id := h.ID
	if len(id) > 12 {
		id = id[:12]
	}
	return fmt.Sprintf("%s (%s)", h.Name, id)
}

// StopResult describes what Stop did.
type StopResult struct {
	Stopped bool   `json:"stopped"`
	Handle  Handle `json:"handle,omitempty"`
	Message string `json:"message"`
}

// Manager starts and stops at most one sandbox container.
type Manager interface {
	// Start launches the sandbox and returns once it is reachable. Starting
	// while a container is tracked fails with domain.ErrAlreadyRunning.
	Start(ctx context.Context) (Handle, error)

	// Stop terminates the tracked container. With nothing tracked it reports
	// "nothing to stop" and returns a nil error.
	Stop(ctx context.Context) (StopResult, error)

	// Current returns the tracked container, if any.
	Current() (Handle, bool)

	// Close releases any resources held by the manager (e.g. docker client).
	Close() error
}

// StartOutcome is the result of an asynchronous start.
type StartOutcome struct {
	Handle Handle
	Err    error
}

// StartAsync runs m.Start in the background. The channel receives exactly one
// outcome and is then closed. Cancel ctx to abandon the readiness wait.
func StartAsync(ctx context.Context, m Manager) <-chan StartOutcome {
	ch := make(chan StartOutcome, 1)
	go func() {
		defer close(ch)
		h, err := m.Start(ctx)
		ch <- StartOutcome{Handle: h, Err: err}
	}()
	return ch
}
