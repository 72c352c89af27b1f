package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nstogner/desktopctl/pkg/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Single trusted client on the sandbox network.
	},
}

// handleActionStream serves the command protocol over a websocket: one
// ActionCommand frame in, one ResultFrame out.
func (s *Server) handleActionStream(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Error("WebSocket read error", "error", err)
			}
			return
		}

		frame := domain.ResultFrame{Kind: domain.FrameResult}
		if cmd, err := s.decodeCommand(data); err != nil {
			slog.Warn("Rejected streamed command", "error", err)
			frame = domain.ResultFrame{Kind: domain.FrameRejected, Result: domain.Failed(err)}
		} else {
			frame.Result = s.perform(r.Context(), cmd)
		}

		out, err := json.Marshal(frame)
		if err != nil {
			slog.Error("Failed to encode result", "error", err)
			return
		}
		if err := ws.WriteMessage(websocket.TextMessage, out); err != nil {
			slog.Error("WebSocket write error", "error", err)
			return
		}
	}
}
