package transport

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Takeiteasyeh/chatd/internal/chatcore"
	"github.com/Takeiteasyeh/chatd/internal/proto"
)

const writeTimeout = 5 * time.Second

// wsSink adapts a *websocket.Conn to chatcore.Sink. Gorilla's Conn forbids
// concurrent writers, so wsSink serializes with its own mutex in addition
// to the one chatcore.Client already holds around Send — belt and braces
// against a future caller that bypasses Client.Send.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *wsSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// handleWebSocket upgrades one request and serves it until disconnect
// (spec.md §4.7).
func (s *Server) handleWebSocket(c echo.Context) error {
	remoteAddr := c.RealIP()

	if s.dispatcher.Registry.Bans.Exists(remoteAddr) {
		s.dispatcher.Registry.Stats.BannedConnects.Add(1)
		slog.Info("ws rejected banned ip", "remote", remoteAddr)
		return c.NoContent(403)
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.dispatcher.Registry.Stats.InvalidConnects.Add(1)
		slog.Warn("ws upgrade failed", "remote", remoteAddr, "err", err)
		return nil
	}
	s.serveConn(conn, remoteAddr)
	return nil
}

func (s *Server) serveConn(conn *websocket.Conn, remoteAddr string) {
	defer conn.Close()
	conn.SetReadLimit(1 << 20)

	client := chatcore.NewClient(remoteAddr, &wsSink{conn: conn})
	s.dispatcher.Registry.Register(client)
	slog.Info("ws connected", "client_id", client.ID(), "remote", remoteAddr)

	defer s.dispatcher.Teardown(client, "connection closed")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws unexpected close", "client_id", client.ID(), "err", err)
			}
			return
		}

		client.UpdateLastActionTime()
		client.UpdateLastPingTime()

		var env proto.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Debug("ws decode error", "client_id", client.ID(), "err", err)
			return
		}
		env.Source = client.ID().String()
		s.dispatcher.Registry.Enqueue(client, env)
	}
}
