package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the gateway in front of this service enforces origins
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewSessionStreamHandler returns GET /sessions/{id}/stream: a websocket that
// pushes the session status view at the given cadence until the session turns
// terminal or the client goes away. Polling /status remains the primary API;
// this is the additive push channel.
func NewSessionStreamHandler(svc SessionOrchestrator, interval time.Duration, logger *zap.Logger) http.HandlerFunc {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if _, err := svc.Status(r.Context(), sessionID); err != nil {
			writeServiceError(w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		// drain client frames so pongs and close messages are processed
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		pinger := time.NewTicker(streamPingInterval)
		defer pinger.Stop()

		write := func(view interface{}) error {
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			return conn.WriteJSON(view)
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case <-pinger.C:
				conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-ticker.C:
				view, err := svc.Status(r.Context(), sessionID)
				if err != nil {
					logger.Warn("session stream read failed", zap.String("session_id", sessionID), zap.Error(err))
					return
				}
				if err := write(view); err != nil {
					return
				}
				if view.Session.IsTerminal() {
					conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
					_ = conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(view.Session.Status)))
					return
				}
			}
		}
	}
}
