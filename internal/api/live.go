package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pinpincloud/internal/events"
	"github.com/pinpincloud/internal/logging"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = 30 * time.Second
)

// liveMessage is one frame of a live feed
type liveMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// openLive upgrades the request and returns a context cancelled when the
// client goes away. The caller must call the returned cancel and close conn.
func (s *Server) openLive(w http.ResponseWriter, r *http.Request) (*websocket.Conn, context.Context, context.CancelFunc, bool) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		logging.FromContext(r.Context()).WithError(err).Warn("WebSocket upgrade failed")
		return nil, nil, nil, false
	}

	conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	return conn, ctx, cancel, true
}

func writeLive(conn *websocket.Conn, msg liveMessage) error {
	conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	return conn.WriteJSON(msg)
}

func closeLive(conn *websocket.Conn, code int, reason string) {
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(liveWriteWait))
}

// handleLiveMaintenance handles GET /api/live/maintenance: the current record, then every change
func (s *Server) handleLiveMaintenance(w http.ResponseWriter, r *http.Request) {
	conn, ctx, cancel, ok := s.openLive(w, r)
	if !ok {
		return
	}
	defer conn.Close()
	defer cancel()

	logger := logging.FromContext(ctx)
	sub, err := s.deps.Maintenance.Subscribe(ctx)
	if err != nil {
		logger.WithError(err).Warn("Maintenance subscription failed")
		closeLive(conn, websocket.CloseInternalServerErr, "subscription failed")
		return
	}
	defer sub.Close()

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case record, ok := <-sub.Updates():
			if !ok {
				closeLive(conn, websocket.CloseNormalClosure, "")
				return
			}
			if err := writeLive(conn, liveMessage{Type: "maintenance", Data: record}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		}
	}
}

// handleLiveFiles handles GET /api/live/files: file events of the caller
func (s *Server) handleLiveFiles(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	conn, ctx, cancel, ok := s.openLive(w, r)
	if !ok {
		return
	}
	defer conn.Close()
	defer cancel()

	logger := logging.FromContext(ctx)
	sub, err := s.deps.Events.Subscribe(ctx, events.FilesTopic(principal.UserID))
	if err != nil {
		logger.WithError(err).Warn("File event subscription failed")
		closeLive(conn, websocket.CloseInternalServerErr, "subscription failed")
		return
	}
	defer sub.Close()

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				closeLive(conn, websocket.CloseNormalClosure, "")
				return
			}
			if err := writeLive(conn, liveMessage{Type: event.Type, Data: event.Payload}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		}
	}
}
