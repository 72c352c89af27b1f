package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nstogner/desktopctl/pkg/domain"
)

// Stream is a persistent websocket channel to a command server. Commands are
// answered in order; Do is safe for concurrent use but calls are serialized.
// Errors have the same meaning as for Client.Do.
type Stream struct {
	url     string
	timeout time.Duration
	conn    *websocket.Conn
	mu      sync.Mutex
}

// DialStream opens the /ws channel of the command server at baseURL. A
// positive timeout bounds each round trip, like WithTimeout does for Client.
func DialStream(ctx context.Context, baseURL string, timeout time.Duration) (*Stream, error) {
	url := strings.TrimRight(baseURL, "/") + "/ws"
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &domain.NetworkError{Op: "DIAL", URL: url, Err: err}
	}
	return &Stream{url: url, timeout: timeout, conn: conn}, nil
}

// Do sends one command frame and waits for its result frame.
func (s *Stream) Do(ctx context.Context, cmd domain.ActionCommand) (domain.ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.ActionResult{}, err
	}
	var deadline time.Time
	if s.timeout > 0 {
		deadline = time.Now().Add(s.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	_ = s.conn.SetReadDeadline(deadline)
	// Unblock a pending read when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = s.conn.SetReadDeadline(time.Now()) })
	defer stop()

	data, err := json.Marshal(cmd)
	if err != nil {
		return domain.ActionResult{}, fmt.Errorf("encoding command: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return domain.ActionResult{}, s.failure(ctx, "WRITE", err)
	}
	_, data, err = s.conn.ReadMessage()
	if err != nil {
		return domain.ActionResult{}, s.failure(ctx, "READ", err)
	}

	var frame domain.ResultFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return domain.ActionResult{}, &domain.NetworkError{Op: "READ", URL: s.url, Err: fmt.Errorf("decoding result: %w", err)}
	}
	switch frame.Kind {
	case domain.FrameResult:
		return frame.Result, nil
	case domain.FrameRejected:
		return domain.ActionResult{}, &domain.ValidationError{Reason: "rejected by server: " + frame.Result.Error}
	default:
		return domain.ActionResult{}, &domain.NetworkError{Op: "READ", URL: s.url, Err: fmt.Errorf("unknown frame kind %q", frame.Kind)}
	}
}

// failure reports a broken round trip. The connection cannot be reused after
// one, since a late result frame would answer the next command.
func (s *Stream) failure(ctx context.Context, op string, err error) error {
	_ = s.conn.Close()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &domain.NetworkError{Op: op, URL: s.url, Err: err}
}

// Close sends a close frame and releases the connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
