package control

import (
	"net/http"
	"reflect"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/openwork/workshell/internal/supervisor"
)

// statusPushInterval is how often the stream re-checks worker state.
const statusPushInterval = 1 * time.Second

// statusFrame is one WebSocket message on /ws.
type statusFrame struct {
	Type   string            `json:"type"`
	Status supervisor.Status `json:"status"`
}

// handleWS upgrades to a WebSocket and pushes a status frame whenever
// worker state changes, plus one immediately on connect. The UI drives
// its process indicators from this stream instead of polling the REST
// endpoint.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowOrigins,
	})
	if err != nil {
		return
	}
	s.cfg.Logger.Info("ws: client connected")
	defer func() {
		s.cfg.Logger.Info("ws: client disconnecting")
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	ctx := r.Context()

	// Discard inbound frames so pings and client closes are processed.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	last := s.cfg.Orchestrator.Status()
	if err := wsjson.Write(ctx, conn, statusFrame{Type: "status", Status: last}); err != nil {
		return
	}

	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := s.cfg.Orchestrator.Status()
			if reflect.DeepEqual(current, last) {
				continue
			}
			last = current
			if err := wsjson.Write(ctx, conn, statusFrame{Type: "status", Status: current}); err != nil {
				return
			}
		}
	}
}
