package dispatch

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Takeiteasyeh/chatd/internal/auth"
	"github.com/Takeiteasyeh/chatd/internal/chatcore"
	"github.com/Takeiteasyeh/chatd/internal/options"
	"github.com/Takeiteasyeh/chatd/internal/proto"
)

// fakeSink records every frame sent to it, decoded as an Envelope for
// assertions, in delivery order.
type fakeSink struct {
	mu     sync.Mutex
	frames []proto.Envelope
	closed bool
}

func (f *fakeSink) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var env proto.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	f.frames = append(f.frames, env)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) envelopes() []proto.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]proto.Envelope, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeSink) byType(t proto.MessageType) []proto.Envelope {
	var out []proto.Envelope
	for _, e := range f.envelopes() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeFinder is an in-memory auth.Finder for AuthAgent tests.
type fakeFinder struct {
	users map[string]auth.Record
	pass  map[string]string
}

func newFakeFinder() *fakeFinder {
	return &fakeFinder{users: make(map[string]auth.Record), pass: make(map[string]string)}
}

func (f *fakeFinder) add(username, password string, permissions options.Client) {
	f.users[username] = auth.Record{Username: username, PasswordHash: password, Permissions: permissions}
	f.pass[username] = password
}

func (f *fakeFinder) ByUsernamePassword(username, pass string) (auth.Record, error) {
	rec, ok := f.users[username]
	if !ok || f.pass[username] != pass {
		return auth.Record{}, auth.ErrNotFound
	}
	return rec, nil
}

func (f *fakeFinder) ByUsername(username string) (auth.Record, error) {
	rec, ok := f.users[username]
	if !ok {
		return auth.Record{}, auth.ErrNotFound
	}
	return rec, nil
}

func (f *fakeFinder) Add(username, pass string, permissions options.Client) error {
	if _, ok := f.users[username]; ok {
		return auth.ErrAlreadyExists
	}
	f.add(username, pass, permissions)
	return nil
}

func (f *fakeFinder) HasAny() (bool, error) { return len(f.users) > 0, nil }

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeFinder) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bans.json")
	bl, err := chatcore.LoadBanList(path)
	if err != nil {
		t.Fatalf("LoadBanList: %v", err)
	}
	reg := chatcore.NewRegistry(bl, t.TempDir())
	reg.CreateDefaultChannels([]string{"Global Lobby", "Guest Lobby", "Staff Lobby"}, 0)

	finder := newFakeFinder()
	finder.add("agent-1", "secret", options.ClientJoinChannels.Union(options.ClientCreateChannels).Union(options.ClientPartChannels))

	cfg := Config{
		AllowGuests:         true,
		AllowClients:        true,
		DefaultGuestOptions: options.ClientJoinChannels,
		UseGlobalLobby:      true,
		UseStaffLobby:       true,
		UseGuestLobby:       true,
		MaxTopicLength:      20,
		GlobalLobbyName:     "Global Lobby",
		StaffLobbyName:      "Staff Lobby",
		GuestLobbyName:      "Guest Lobby",
	}
	return New(reg, finder, cfg), finder
}

func newPendingClient(ip string) (*chatcore.Client, *fakeSink) {
	sink := &fakeSink{}
	return chatcore.NewClient(ip, sink), sink
}

func connectGuest(t *testing.T, d *Dispatcher, ip, requestedName string) (*chatcore.Client, *fakeSink) {
	t.Helper()
	c, sink := newPendingClient(ip)
	d.Registry.Register(c)
	d.handleAuthGuest(c, proto.Envelope{Type: proto.TypeAuthGuest, Username: requestedName})
	return c, sink
}

func connectAgent(t *testing.T, d *Dispatcher, ip, username, password string) (*chatcore.Client, *fakeSink) {
	t.Helper()
	c, sink := newPendingClient(ip)
	d.Registry.Register(c)
	d.handleAuthAgent(c, proto.Envelope{Type: proto.TypeAuthAgent, Username: username, Password: password})
	return c, sink
}

// connectAgentAs authenticates with the given account but requests a
// distinct display nickname, so a test can bring up several sessions of
// the same agent account without a name collision.
func connectAgentAs(t *testing.T, d *Dispatcher, ip, username, password, nick string) (*chatcore.Client, *fakeSink) {
	t.Helper()
	c, sink := newPendingClient(ip)
	d.Registry.Register(c)
	d.handleAuthAgent(c, proto.Envelope{Type: proto.TypeAuthAgent, Username: username, Password: password, Message: nick})
	return c, sink
}
