package chatcore

import (
	"path/filepath"
	"testing"

	"github.com/Takeiteasyeh/chatd/internal/options"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bans.json")
	bl, err := LoadBanList(path)
	if err != nil {
		t.Fatalf("LoadBanList: %v", err)
	}
	return NewRegistry(bl, t.TempDir())
}

func TestRegistryRegisterThenClaimName(t *testing.T) {
	r := newTestRegistry(t)
	c := NewClient("127.0.0.1", &fakeSink{})

	r.Register(c)
	if _, ok := r.GetClient(c.ID()); !ok {
		t.Fatalf("expected client registered by id immediately")
	}
	if _, ok := r.ClientIDByName("Guest-1"); ok {
		t.Fatalf("a pending-auth client must not be visible by name yet")
	}

	if !r.ClaimName(c, "Guest-1") {
		t.Fatalf("ClaimName should succeed for a free name")
	}
	if id, ok := r.ClientIDByName("Guest-1"); !ok || id != c.ID() {
		t.Fatalf("expected an exact-case name lookup to resolve after ClaimName")
	}
	if _, ok := r.ClientIDByName("guest-1"); ok {
		t.Fatalf("client name lookup must be case-sensitive")
	}
}

func TestRegistryClaimNameRejectsCollision(t *testing.T) {
	r := newTestRegistry(t)
	a := NewClient("127.0.0.1", &fakeSink{})
	b := NewClient("127.0.0.2", &fakeSink{})
	c := NewClient("127.0.0.3", &fakeSink{})
	r.Register(a)
	r.Register(b)
	r.Register(c)

	if !r.ClaimName(a, "Alice") {
		t.Fatalf("first claim should succeed")
	}
	if r.ClaimName(b, "Alice") {
		t.Fatalf("second claim of the exact same name should fail")
	}
	if !r.ClaimName(c, "alice") {
		t.Fatalf("a differently-cased name is a distinct identity and should be claimable")
	}
}

func TestRegistryRemoveClient(t *testing.T) {
	r := newTestRegistry(t)
	c := NewClient("127.0.0.1", &fakeSink{})
	r.Register(c)
	r.ClaimName(c, "Alice")

	r.RemoveClient(c.ID())
	if _, ok := r.GetClient(c.ID()); ok {
		t.Fatalf("expected client removed from id index")
	}
	if _, ok := r.ClientIDByName("Alice"); ok {
		t.Fatalf("expected client removed from name index")
	}
}

func TestRegistryClientsByIP(t *testing.T) {
	r := newTestRegistry(t)
	a := NewClient("10.0.0.5", &fakeSink{})
	b := NewClient("10.0.0.5", &fakeSink{})
	c := NewClient("10.0.0.6", &fakeSink{})
	r.Register(a)
	r.Register(b)
	r.Register(c)

	got := r.ClientsByIP("10.0.0.5")
	if len(got) != 2 {
		t.Fatalf("ClientsByIP = %d results, want 2", len(got))
	}
}

func TestRegistryCreateDefaultChannelsPersistAndCanNotLeave(t *testing.T) {
	r := newTestRegistry(t)
	r.CreateDefaultChannels([]string{"Global Lobby", ""}, 0)

	ch, ok := r.ChannelByName("Global Lobby")
	if !ok {
		t.Fatalf("expected the default lobby to be created")
	}
	if !ch.HasOption(options.ChannelPersist) || !ch.HasOption(options.ChannelCanNotLeave) {
		t.Fatalf("default lobbies must be Persist and CanNotLeave, got %v", ch.Options())
	}
	if r.ChannelCount() != 1 {
		t.Fatalf("an empty lobby name should be skipped, ChannelCount = %d", r.ChannelCount())
	}

	r.CreateDefaultChannels([]string{"Global Lobby"}, 0)
	if r.ChannelCount() != 1 {
		t.Fatalf("re-creating an existing default lobby should be a no-op, ChannelCount = %d", r.ChannelCount())
	}
}

func TestRegistrySendToWallops(t *testing.T) {
	r := newTestRegistry(t)
	agentSink, adminGuestSink, pendingAgentSink := &fakeSink{}, &fakeSink{}, &fakeSink{}

	// A plain connected Agent with no options set must still receive wallops:
	// it's the type that matters, not the Admin bit.
	agent := NewClient("127.0.0.1", agentSink)
	agent.SetType(TypeAgent)
	agent.SetStatus(StatusConnected)
	r.Register(agent)

	// A connected Guest with the Admin option set must NOT receive wallops.
	adminGuest := NewClient("127.0.0.2", adminGuestSink)
	adminGuest.SetType(TypeGuest)
	adminGuest.SetOptions(options.ClientAdmin)
	adminGuest.SetStatus(StatusConnected)
	r.Register(adminGuest)

	// An Agent that hasn't finished authenticating yet must not receive
	// wallops either.
	pendingAgent := NewClient("127.0.0.3", pendingAgentSink)
	pendingAgent.SetType(TypeAgent)
	r.Register(pendingAgent)

	r.SendToWallops([]byte("wallop"))
	if len(agentSink.frames) != 1 {
		t.Fatalf("expected the connected agent to receive the wallop")
	}
	if len(adminGuestSink.frames) != 0 {
		t.Fatalf("expected the admin guest to not receive the wallop")
	}
	if len(pendingAgentSink.frames) != 0 {
		t.Fatalf("expected the not-yet-connected agent to not receive the wallop")
	}

	r.SendToWall([]byte("wall"))
	if len(agentSink.frames) != 2 || len(adminGuestSink.frames) != 1 || len(pendingAgentSink.frames) != 0 {
		t.Fatalf("expected SendToWall to reach every connected client regardless of type, and skip the pending one")
	}
}
