package dispatch

import (
	"crypto/rand"

	"github.com/Takeiteasyeh/chatd/internal/chatcore"
	"github.com/Takeiteasyeh/chatd/internal/proto"
)

// handleAuthGuest implements spec.md §4.6 AuthGuest.
func (d *Dispatcher) handleAuthGuest(c *chatcore.Client, env proto.Envelope) {
	if !d.Config.AllowGuests {
		d.sendProblem(c, proto.NotAvailable, "guests are not allowed")
		d.Teardown(c, "guests disabled")
		return
	}

	var proposed string
	if env.Username != "" {
		proposed = "Guest-" + env.Username
	} else {
		digits, err := randomDigits(6)
		if err != nil {
			d.sendProblem(c, proto.NotAvailable, "could not generate a name")
			d.Teardown(c, "name generation failed")
			return
		}
		proposed = "Guest-" + digits
	}

	if !chatcore.NameRegexp.MatchString(proposed) {
		d.sendProblem(c, proto.NameInvalid, proposed)
		return
	}

	c.SetType(chatcore.TypeGuest)
	c.SetOptions(d.Config.DefaultGuestOptions)
	if !d.Registry.ClaimName(c, proposed) {
		d.sendProblem(c, proto.NameInUse, proposed)
		return
	}
	c.SetName(proposed)
	c.SetStatus(chatcore.StatusConnected)

	d.send(c, proto.Envelope{Type: proto.TypeAuthOk, Source: c.ID().String(), Message: proposed})
	if d.Registry.MotdGuests != "" {
		d.send(c, proto.Envelope{Type: proto.TypeMotd, Message: d.Registry.MotdGuests})
	}

	lobbies := make([]string, 0, 2)
	if d.Config.UseGlobalLobby {
		lobbies = append(lobbies, d.Config.GlobalLobbyName)
	}
	if d.Config.UseGuestLobby {
		lobbies = append(lobbies, d.Config.GuestLobbyName)
	}
	d.autoJoinLobbies(c, lobbies)
}

// handleAuthAgent implements spec.md §4.6 AuthAgent.
func (d *Dispatcher) handleAuthAgent(c *chatcore.Client, env proto.Envelope) {
	rec, err := d.Auth.ByUsernamePassword(env.Username, env.Password)
	if err != nil {
		d.sendProblem(c, proto.InvalidAuth, "invalid credentials")
		d.Teardown(c, "invalid auth")
		return
	}

	name := env.Message
	if name == "" {
		name = rec.Username
	}
	if !chatcore.NameRegexp.MatchString(name) {
		d.sendProblem(c, proto.NameInvalid, name)
		d.Teardown(c, "invalid nickname")
		return
	}

	c.SetType(chatcore.TypeAgent)
	c.SetOptions(rec.Permissions)
	if !d.Registry.ClaimName(c, name) {
		d.sendProblem(c, proto.NameInUse, name)
		d.Teardown(c, "name in use")
		return
	}
	c.SetName(name)
	c.SetStatus(chatcore.StatusConnected)

	d.send(c, proto.Envelope{Type: proto.TypeAuthOk, Source: c.ID().String(), Message: name})
	if d.Registry.MotdAgents != "" {
		d.send(c, proto.Envelope{Type: proto.TypeMotd, Message: d.Registry.MotdAgents})
	}

	lobbies := make([]string, 0, 2)
	if d.Config.UseGlobalLobby {
		lobbies = append(lobbies, d.Config.GlobalLobbyName)
	}
	if d.Config.UseStaffLobby {
		lobbies = append(lobbies, d.Config.StaffLobbyName)
	}
	d.autoJoinLobbies(c, lobbies)
}

// autoJoinLobbies implements spec.md §4.6.1: join each named, already-
// existing lobby in order, announcing per the normal join sequence.
// A configured lobby that was never created (e.g. disabled at startup) is
// silently skipped.
func (d *Dispatcher) autoJoinLobbies(c *chatcore.Client, names []string) {
	for _, name := range names {
		ch, ok := d.Registry.ChannelByName(name)
		if !ok {
			continue
		}
		d.announceJoin(ch, c, "JOIN CHANNEL")
	}
}

func randomDigits(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = '0' + b%10
	}
	return string(out), nil
}
