// Package server exposes an executor over the command protocol.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/executor"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

// Server serves the command protocol for a single executor.
type Server struct {
	exec executor.Executor

	srvMu sync.Mutex
	srv   *http.Server
	done  bool

	// The desktop has one cursor; actions are never interleaved.
	mu sync.Mutex
}

// New creates a new Server.
func New(exec executor.Executor) *Server {
	return &Server{exec: exec}
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware)
	router.Use(RecoveryMiddleware)

	router.HandleFunc("/perform_action", s.handlePerformAction).Methods(http.MethodPost)
	router.HandleFunc("/ws", s.handleActionStream).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srvMu.Lock()
	if s.done {
		s.srvMu.Unlock()
		return http.ErrServerClosed
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.srv = srv
	s.srvMu.Unlock()

	slog.Info("Starting command server", "addr", addr, "resolution", s.exec.Resolution())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server. A later Start returns
// http.ErrServerClosed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.srvMu.Lock()
	s.done = true
	srv := s.srv
	s.srvMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// decodeCommand parses and validates a command against the executor's display.
func (s *Server) decodeCommand(data []byte) (domain.ActionCommand, error) {
	var cmd domain.ActionCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, &domain.ValidationError{Reason: fmt.Sprintf("malformed body: %v", err)}
	}
	if err := cmd.Validate(s.exec.Resolution()); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// perform runs cmd on the executor. Executor faults, including panics, are
// reported in the result rather than returned.
func (s *Server) perform(ctx context.Context, cmd domain.ActionCommand) (res domain.ActionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Executor panicked", "action", cmd.Action, "panic", r)
			res = domain.Failed(&domain.ActionExecutionError{Action: cmd.Action, Message: fmt.Sprintf("panic: %v", r)})
		}
	}()

	out, err := s.exec.Execute(ctx, cmd)
	if err != nil {
		slog.Warn("Action failed", "action", cmd.String(), "error", err, "elapsed", time.Since(start))
		return domain.Failed(&domain.ActionExecutionError{Action: cmd.Action, Message: err.Error()})
	}
	slog.Debug("Action performed", "action", cmd.String(), "elapsed", time.Since(start))
	return out
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	slog.Warn("Rejected request", "status", status, "error", err)
	s.jsonResponse(w, status, domain.ActionResult{Error: err.Error()})
}
