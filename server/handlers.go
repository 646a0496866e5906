package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teranos/trellis/graph"
	"github.com/teranos/trellis/logger"
	"github.com/teranos/trellis/storage"
	"github.com/teranos/trellis/version"
)

// HandleWebSocket upgrades the connection and starts the session pumps
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.getState() != ServerStateRunning {
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Warnw("WebSocket upgrade failed",
			logger.FieldRemote, r.RemoteAddr,
			logger.FieldError, err,
		)
		return
	}

	client := newClient(s, conn, uuid.NewString())
	if !s.hub.register(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many clients"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	// queued before the pumps start, so it is always the first frame
	info := version.Get()
	client.sendJSON(ConnectionEstablished{
		Type:      MsgConnectionEstablished,
		SessionID: client.id,
		Version:   info.Short(),
		Protocol:  info.Protocol,
	})

	go client.writePump()
	go client.readPump()
}

// HandleHealth reports the server state and load
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	sessions, rooms := s.hub.counts()
	status := http.StatusOK
	if s.getState() != ServerStateRunning {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"status":   s.getState().String(),
		"version":  version.Get().Short(),
		"protocol": version.Protocol,
		"sessions": sessions,
		"rooms":    rooms,
	})
}

// HandleGraph returns a user's current graph. Live graphs are read through
// their room; others come straight from storage.
func (s *Server) HandleGraph(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	parts := extractPathParts(r.URL.Path, "/api/graphs/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "Expected /api/graphs/{userId}/{graphId}")
		return
	}
	userID, graphID := parts[0], parts[1]

	ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
	defer cancel()

	blob, live, err := s.hub.inspect(ctx, userID, graphID)
	if err == nil && !live {
		var g *graph.Graph
		g, err = storage.LoadGraph(ctx, s.store, storage.Key(userID, graphID))
		if err == nil {
			blob, err = graph.Encode(g)
		}
	}
	if err != nil {
		s.logger.Warnw("Failed to read graph",
			logger.FieldUserID, userID,
			logger.FieldGraphID, graphID,
			logger.FieldError, err,
		)
		writeErrorFor(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(blob)
}
