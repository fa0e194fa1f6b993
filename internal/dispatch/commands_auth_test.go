package dispatch

import (
	"testing"

	"github.com/Takeiteasyeh/chatd/internal/options"
	"github.com/Takeiteasyeh/chatd/internal/proto"
)

// TestAuthAgentAppliesStoredPermissions verifies each agent receives exactly
// its own account's permissions (spec.md §4.8), not a value shared across
// every agent.
func TestAuthAgentAppliesStoredPermissions(t *testing.T) {
	d, finder := newTestDispatcher(t)
	finder.add("mod-1", "modpass", options.ClientJoinChannels.Union(options.ClientCanInvite))

	agent, _ := connectAgent(t, d, "10.0.0.50", "agent-1", "secret")
	if !agent.Options().Has(options.ClientCreateChannels) {
		t.Fatalf("agent-1 should carry its stored CreateChannels permission, got %v", agent.Options().Names())
	}
	if agent.Options().Has(options.ClientCanInvite) {
		t.Fatalf("agent-1 should not carry a permission only mod-1 was granted, got %v", agent.Options().Names())
	}

	mod, _ := connectAgent(t, d, "10.0.0.51", "mod-1", "modpass")
	if !mod.Options().Has(options.ClientCanInvite) {
		t.Fatalf("mod-1 should carry its own stored CanInvite permission, got %v", mod.Options().Names())
	}
	if mod.Options().Has(options.ClientCreateChannels) {
		t.Fatalf("mod-1 should not inherit a permission it was never granted, got %v", mod.Options().Names())
	}
}

// TestAuthAgentRejectsInvalidCredentials is unaffected by the permissions
// model but guards the error path handleAuthAgent shares with it.
func TestAuthAgentRejectsInvalidCredentials(t *testing.T) {
	d, _ := newTestDispatcher(t)
	c, sink := newPendingClient("10.0.0.52")
	d.Registry.Register(c)
	d.handleAuthAgent(c, proto.Envelope{Type: proto.TypeAuthAgent, Username: "agent-1", Password: "wrong"})

	problems := sink.byType(proto.TypeProblem)
	if len(problems) != 1 || problems[0].Problem != proto.InvalidAuth {
		t.Fatalf("expected an InvalidAuth problem, got %+v", problems)
	}
}
