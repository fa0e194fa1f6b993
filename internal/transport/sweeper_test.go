package transport

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Takeiteasyeh/chatd/internal/auth"
	"github.com/Takeiteasyeh/chatd/internal/chatcore"
	"github.com/Takeiteasyeh/chatd/internal/dispatch"
	"github.com/Takeiteasyeh/chatd/internal/options"
)

type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeSink) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// noFinder is an auth.Finder with no users; the sweeper tests never
// authenticate, so none of its methods are exercised.
type noFinder struct{}

func (noFinder) ByUsernamePassword(string, string) (auth.Record, error) {
	return auth.Record{}, auth.ErrNotFound
}
func (noFinder) ByUsername(string) (auth.Record, error) { return auth.Record{}, auth.ErrNotFound }
func (noFinder) Add(string, string, options.Client) error { return nil }
func (noFinder) HasAny() (bool, error)                    { return false, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bans.json")
	bl, err := chatcore.LoadBanList(path)
	if err != nil {
		t.Fatalf("LoadBanList: %v", err)
	}
	reg := chatcore.NewRegistry(bl, t.TempDir())
	d := dispatch.New(reg, noFinder{}, dispatch.Config{})
	return New("127.0.0.1:0", nil, d)
}

func TestSweepSendsPingAfterIdle(t *testing.T) {
	s := newTestServer(t)
	sink := &fakeSink{}
	c := chatcore.NewClient("127.0.0.1", sink)
	c.SetStatus(chatcore.StatusConnected)
	c.SetName("Idle-Guy")
	s.dispatcher.Registry.Register(c)

	c.SetLastAction(time.Now().Add(-pingCheckIdle - time.Second))
	c.SetLastPing(time.Now().Add(-10 * time.Second))

	s.sweep()

	if sink.count() != 1 {
		t.Fatalf("expected exactly one Ping frame, got %d", sink.count())
	}
	if sink.closed {
		t.Fatalf("a client within PING_TIMEOUT should not be disconnected")
	}
}

func TestSweepTimesOutStaleClient(t *testing.T) {
	s := newTestServer(t)
	sink := &fakeSink{}
	c := chatcore.NewClient("127.0.0.1", sink)
	c.SetStatus(chatcore.StatusConnected)
	c.SetName("Stale-Guy")
	s.dispatcher.Registry.Register(c)

	past := time.Now().Add(-pingTimeout - time.Second)
	c.SetLastAction(past)
	c.SetLastPing(past)

	s.sweep()

	if c.Status() != chatcore.StatusZombie {
		t.Fatalf("expected the timed-out client to be marked Zombie, got %v", c.Status())
	}
	if !sink.closed {
		t.Fatalf("expected the timed-out client's sink to be closed")
	}
	if _, ok := s.dispatcher.Registry.GetClient(c.ID()); ok {
		t.Fatalf("expected the timed-out client removed from the registry")
	}
}

func TestSweepSkipsNonConnectedClients(t *testing.T) {
	s := newTestServer(t)
	sink := &fakeSink{}
	c := chatcore.NewClient("127.0.0.1", sink)
	// left in StatusPendingAuth
	s.dispatcher.Registry.Register(c)

	past := time.Now().Add(-pingTimeout - time.Second)
	c.SetLastAction(past)
	c.SetLastPing(past)

	s.sweep()

	if sink.count() != 0 || sink.closed {
		t.Fatalf("a pending-auth client must be left untouched by the sweeper")
	}
}
