// Package transport wires the WebSocket/TLS connection lifecycle (spec.md
// §1, §4.7) onto an Echo application, grounded on internal/ws/handler.go's
// Register(e *echo.Echo) shape and bken/server/server.go's TLS wiring.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Takeiteasyeh/chatd/internal/dispatch"
)

// Server owns the HTTP(S) listener the WebSocket endpoint and health check
// are mounted on.
type Server struct {
	addr       string
	tlsConfig  *tls.Config
	dispatcher *dispatch.Dispatcher
	upgrader   websocket.Upgrader
	echo       *echo.Echo
}

// New creates a transport server bound to addr and tlsConfig, serving
// dispatcher's registry.
func New(addr string, tlsConfig *tls.Config, dispatcher *dispatch.Dispatcher) *Server {
	s := &Server{
		addr:       addr,
		tlsConfig:  tlsConfig,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.GET("/ws", s.handleWebSocket)
	e.GET("/healthz", s.handleHealthz)
	s.echo = e
	return s
}

// Run starts the HTTPS + WebSocket server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.echo,
		TLSConfig:         s.tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("transport shutdown", "err", err)
		}
	}()

	slog.Info("transport listening", "addr", s.addr)
	err := httpSrv.ListenAndServeTLS("", "")
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// handleHealthz reports registry counters, the way internal/httpapi
// reported store-backed stats.
func (s *Server) handleHealthz(c echo.Context) error {
	reg := s.dispatcher.Registry
	return c.JSON(http.StatusOK, map[string]any{
		"clients":                 reg.ClientCount(),
		"channels":                reg.ChannelCount(),
		"connections_since_start": reg.Stats.ConnectionsSinceStart.Load(),
		"invalid_connects":        reg.Stats.InvalidConnects.Load(),
		"banned_connects":         reg.Stats.BannedConnects.Load(),
		"guest_count":             reg.Stats.GuestCount.Load(),
	})
}
