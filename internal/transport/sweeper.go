package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Takeiteasyeh/chatd/internal/chatcore"
	"github.com/Takeiteasyeh/chatd/internal/proto"
)

// Liveness timing constants (spec.md §4.7).
const (
	pingCheckIdle = 60 * time.Second
	pingTimeout   = 180 * time.Second
	sweepInterval = 50 * time.Second
)

// RunSweeper runs the background liveness sweep every sweepInterval until
// ctx is canceled, adapted from metrics.go's RunMetrics ticker-loop shape.
func (s *Server) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Server) sweep() {
	now := time.Now()
	for _, c := range s.dispatcher.Registry.AllClients() {
		if c.Status() != chatcore.StatusConnected {
			continue
		}
		if now.Sub(c.LastAction()) < pingCheckIdle {
			continue
		}
		if now.Sub(c.LastPing()) >= pingTimeout {
			s.timeoutClient(c)
			continue
		}
		env := proto.Envelope{Type: proto.TypePing, Timestamp: now.Unix()}
		frame, err := env.Encode()
		if err == nil {
			_ = c.Send(frame)
		}
		c.UpdateLastActionTime()
	}
}

// timeoutClient implements spec.md §4.7's ping-timeout branch: a text
// notice, then the same teardown every disconnect path uses (channel
// removal with Quit broadcasts, registry removal, sink close), leaving the
// client in Zombie status.
func (s *Server) timeoutClient(c *chatcore.Client) {
	_ = c.Send([]byte("Disconnect (Ping Timeout)"))
	slog.Info("ping timeout", "client_id", c.ID())
	s.dispatcher.Teardown(c, fmt.Sprintf("ping timeout: %d seconds", int(pingTimeout.Seconds())))
	c.SetStatus(chatcore.StatusZombie)
}
