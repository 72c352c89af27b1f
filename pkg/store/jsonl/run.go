package jsonl

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Run implements store.Run on a JSONL file.
type Run struct {
	mu         sync.RWMutex
	header     store.Header
	filePath   string
	entries    []store.Entry
	status     string
	fileHandle *os.File
}

var _ store.Run = (*Run)(nil)

func (r *Run) ID() string           { return r.header.ID }
func (r *Run) Path() string         { return r.filePath }
func (r *Run) Header() store.Header { return r.header }

func (r *Run) Status() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// append persists e and keeps it in memory.
func (r *Run) append(e store.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if err := writeLine(r.fileHandle, e); err != nil {
		return err
	}
	r.entries = append(r.entries, e)
	if e.Status != nil {
		r.status = e.Status.Status
	}
	return nil
}

func (r *Run) AppendMessages(msgs ...domain.Message) error {
	for _, m := range msgs {
		m := withoutImages(m)
		if err := r.append(store.Entry{Type: store.TypeMessage, Message: &m}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Run) AppendStep(s store.StepEntry) error {
	return r.append(store.Entry{Type: store.TypeStep, Step: &s})
}

func (r *Run) SetStatus(status string, err error) error {
	se := &store.StatusEntry{Status: status}
	if err != nil {
		se.Error = err.Error()
	}
	return r.append(store.Entry{Type: store.TypeStatus, Status: se})
}

func (r *Run) Messages() []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Message
	for _, e := range r.entries {
		if e.Message != nil {
			out = append(out, *e.Message)
		}
	}
	return out
}

func (r *Run) Entries() []store.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]store.Entry(nil), r.entries...)
}

func (r *Run) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fileHandle == nil {
		return nil
	}
	err := r.fileHandle.Close()
	r.fileHandle = nil
	return err
}

func writeLine(f *os.File, v any) error {
	if f == nil {
		return fmt.Errorf("run log is closed")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing entry: %w", err)
	}
	return nil
}

// withoutImages drops screenshot bytes, which would dominate the log.
func withoutImages(m domain.Message) domain.Message {
	out := domain.Message{Role: m.Role}
	for _, c := range m.Content {
		switch {
		case c.Type == domain.ContentTypeImage:
			continue
		case c.ToolResult != nil && c.ToolResult.Image != nil:
			tr := *c.ToolResult
			tr.Image = nil
			c.ToolResult = &tr
		}
		out.Content = append(out.Content, c)
	}
	return out
}
