// Package jsonl stores run logs as one JSONL file per run.
package jsonl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/desktopctl/pkg/store"
)

// Manager implements store.Manager in a directory.
type Manager struct {
	rootDir string
	mu      sync.Mutex
}

var _ store.Manager = (*Manager)(nil)

// NewManager returns a Manager rooted at rootDir, creating it if needed.
func NewManager(rootDir string) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}
	return &Manager{rootDir: rootDir}, nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.rootDir, id+".jsonl")
}

func (m *Manager) NewRun(h store.Header) (store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h.Type = store.TypeRun
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}

	p := m.path(h.ID)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating run log: %w", err)
	}
	if err := writeLine(f, h); err != nil {
		f.Close()
		return nil, err
	}
	slog.Debug("Created run log", "id", h.ID, "path", p)
	return &Run{header: h, filePath: p, fileHandle: f}, nil
}

func (m *Manager) LoadRun(id string) (store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.path(id)
	f, err := os.OpenFile(p, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	r := &Run{filePath: p, fileHandle: f}
	if err := load(f, r); err != nil {
		f.Close()
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	return r, nil
}

func (m *Manager) ListRuns() ([]store.RunInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dirEntries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return nil, fmt.Errorf("reading run directory: %w", err)
	}

	var infos []store.RunInfo
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".jsonl") {
			continue
		}
		p := filepath.Join(m.rootDir, de.Name())
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		r := &Run{filePath: p}
		err = load(f, r)
		f.Close()
		if err != nil {
			slog.Warn("Skipping unreadable run log", "path", p, "error", err)
			continue
		}

		info := store.RunInfo{
			ID:       r.header.ID,
			Path:     p,
			Mode:     r.header.Mode,
			Task:     r.header.Task,
			Status:   r.status,
			Created:  r.header.CreatedAt,
			Modified: r.header.CreatedAt,
		}
		for _, e := range r.entries {
			if e.Message != nil {
				info.MessageCount++
			}
			if e.Timestamp.After(info.Modified) {
				info.Modified = e.Timestamp
			}
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Modified.After(infos[j].Modified)
	})
	return infos, nil
}

func load(f *os.File, r *Run) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	scanner := bufio.NewScanner(f)
	// Tool results can carry long outputs.
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return errors.New("empty run log")
	}
	if err := json.Unmarshal(scanner.Bytes(), &r.header); err != nil {
		return fmt.Errorf("unmarshaling header: %w", err)
	}
	if r.header.Type != store.TypeRun {
		return fmt.Errorf("unexpected header type %q", r.header.Type)
	}

	for scanner.Scan() {
		var e store.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			// A torn final line from a crash is skipped.
			continue
		}
		r.entries = append(r.entries, e)
		if e.Status != nil {
			r.status = e.Status.Status
		}
	}
	return scanner.Err()
}
