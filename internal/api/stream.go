package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait  = 5 * time.Second
	streamPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	// The API serves a local UI on arbitrary origins.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// stateStreamHandler pushes the engine state as JSON after every transition.
func (s *Server) stateStreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Server.stateStreamHandler: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	states, unsubscribe := s.engine.Subscribe()
	defer unsubscribe()

	// Drain client frames so close and ping control messages are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	slog.Debug("Server.stateStreamHandler: client connected", "remote", r.RemoteAddr)
	for {
		select {
		case state, ok := <-states:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "engine closed"), time.Now().Add(streamWriteWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(state); err != nil {
				slog.Debug("Server.stateStreamHandler: write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-closed:
			slog.Debug("Server.stateStreamHandler: client disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}
