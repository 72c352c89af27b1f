package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/nstogner/desktopctl/pkg/domain"
)

func (s *Server) handlePerformAction(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, &domain.ValidationError{Reason: fmt.Sprintf("reading body: %v", err)})
		return
	}

	cmd, err := s.decodeCommand(data)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, s.perform(r.Context(), cmd))
}
