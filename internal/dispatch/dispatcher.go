// Package dispatch implements the command dispatcher (spec.md §4.6): it
// drains internal/chatcore.Registry's inbound queue, validates each
// envelope's per-command preconditions, mutates chatcore state, and emits
// outbound frames. Lock order discipline follows spec.md §5: registry ->
// channel -> client -> sink; handlers snapshot under a read lock, release,
// then re-acquire a write lock rather than holding several locks at once.
package dispatch

import (
	"context"
	"fmt"
	"html"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Takeiteasyeh/chatd/internal/auth"
	"github.com/Takeiteasyeh/chatd/internal/chatcore"
	"github.com/Takeiteasyeh/chatd/internal/options"
	"github.com/Takeiteasyeh/chatd/internal/proto"
)

// Config is the subset of the server's on-disk configuration the
// dispatcher consults (spec.md §6). main.go builds one of these from
// chatd.conf.
type Config struct {
	AllowGuests          bool
	AllowClients         bool // reserved, see DESIGN.md "Open Question decisions"
	DefaultGuestOptions  options.Client
	UseGlobalLobby       bool
	UseStaffLobby        bool
	UseGuestLobby        bool
	MaxTopicLength       int
	GlobalLobbyName      string
	StaffLobbyName       string
	GuestLobbyName       string
}

// Dispatcher owns the Registry and Auth finder and runs the command loop.
type Dispatcher struct {
	Registry *chatcore.Registry
	Auth     auth.Finder
	Config   Config

	seq atomic.Uint64
}

// New creates a dispatcher bound to reg and finder.
func New(reg *chatcore.Registry, finder auth.Finder, cfg Config) *Dispatcher {
	return &Dispatcher{Registry: reg, Auth: finder, Config: cfg}
}

// Run drains Registry.Inbound until ctx is canceled. Commands run
// serialized through this single consumer, so no two commands from
// different connections interleave mid-mutation (spec.md §5).
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-d.Registry.Inbound:
			d.dispatch(in.Client, in.Envelope)
		}
	}
}

// dispatch is the single entry point for one envelope. The envelope's
// source has already been overwritten with the true client id by
// internal/transport before it reached the queue (spec.md §4.6).
func (d *Dispatcher) dispatch(c *chatcore.Client, env proto.Envelope) {
	if c.Status() == chatcore.StatusPendingAuth {
		switch env.Type {
		case proto.TypeAuthGuest:
			d.handleAuthGuest(c, env)
		case proto.TypeAuthAgent:
			d.handleAuthAgent(c, env)
		case proto.TypeAuthDevice:
			d.handleReserved(c, env)
		default:
			d.teardownProtocolError(c, "frame sent before authentication")
		}
		return
	}

	switch env.Type {
	case proto.TypeJoin:
		d.handleJoin(c, env)
	case proto.TypePart:
		d.handlePart(c, env)
	case proto.TypeKick:
		d.handleKick(c, env)
	case proto.TypeSetChannelModes:
		d.handleSetChannelModes(c, env)
	case proto.TypeTopic:
		d.handleTopic(c, env)
	case proto.TypeChannels:
		d.handleChannels(c, env)
	case proto.TypeTyping:
		d.handleTyping(c, env)
	case proto.TypeMessage:
		d.handleMessage(c, env)
	case proto.TypePong:
		// liveness already updated at envelope entry (internal/transport).
	case proto.TypeKill:
		d.handleKill(c, env)
	case proto.TypeKline:
		d.handleKline(c, env)
	case proto.TypeWhois, proto.TypeUsers, proto.TypePrivate, proto.TypeFile,
		proto.TypeWall, proto.TypeWalladmin, proto.TypeAuthDevice:
		d.handleReserved(c, env)
	default:
		d.teardownProtocolError(c, fmt.Sprintf("unknown frame type %q", env.Type))
	}
}

// nextID hands out an increasing id for server-originated frames.
func (d *Dispatcher) nextID() uint64 { return d.seq.Add(1) }

// send marshals and delivers one frame to c, logging (not propagating) any
// transport error per spec.md §7 ("broadcasts never fail the calling command").
func (d *Dispatcher) send(c *chatcore.Client, env proto.Envelope) {
	env.ID = d.nextID()
	frame, err := env.Encode()
	if err != nil {
		log.Printf("[dispatch] encode %s for %s: %v", env.Type, c.ID(), err)
		return
	}
	if err := c.Send(frame); err != nil {
		log.Printf("[dispatch] send %s to %s: %v", env.Type, c.ID(), err)
	}
}

func (d *Dispatcher) sendProblem(c *chatcore.Client, code proto.ProblemCode, message string) {
	d.send(c, proto.Envelope{Type: proto.TypeProblem, Problem: code, Message: message})
}

// handleReserved answers a reserved, unimplemented tag with NotAvailable
// without tearing the connection down (spec.md §9 open question: these
// tags are parsed but never wired to a handler).
func (d *Dispatcher) handleReserved(c *chatcore.Client, env proto.Envelope) {
	d.sendProblem(c, proto.NotAvailable, string(env.Type)+" is not implemented")
}

// teardownProtocolError marks c Closing and runs full teardown — used for
// malformed pre-auth traffic and unknown tags (spec.md §4.6, §7 "Protocol"
// errors are fatal to the session).
func (d *Dispatcher) teardownProtocolError(c *chatcore.Client, reason string) {
	log.Printf("[dispatch] protocol error from %s: %s", c.ID(), reason)
	d.Teardown(c, "protocol error")
}

// Teardown removes c from every channel it belongs to, broadcasting a Quit
// to the rest of each channel's membership per visibility rules, destroys
// any channel that becomes empty and is not Persist, removes c from the
// registry, and closes its sink. Idempotent: calling it twice on an
// already-removed client is a no-op (spec.md §7).
func (d *Dispatcher) Teardown(c *chatcore.Client, reason string) {
	c.SetStatus(chatcore.StatusClosing)
	for chID := range c.ChannelViews() {
		ch, ok := d.Registry.GetChannel(chID)
		if !ok {
			continue
		}
		d.leaveChannel(ch, c, reason)
	}
	c.ClearChannelViews()
	d.Registry.RemoveClient(c.ID())
	c.CloseSink()
}

// leaveChannel removes c from ch, broadcasts Quit, destroys ch if it is now
// empty and not Persist, and logs a QUIT line (plus DESTROY when ch is
// dropped) to the channel log. Part, Kill and teardown all go through here,
// so a voluntary Part is broadcast and logged as a Quit; no PART line is
// written.
func (d *Dispatcher) leaveChannel(ch *chatcore.Channel, c *chatcore.Client, reason string) {
	ch.RemoveMember(c.ID())
	c.RemoveChannelView(ch.ID())
	d.broadcastQuit(ch, c, reason)
	ch.ToLog(fmt.Sprintf("QUIT %s (%s)", c.Name(), reason))

	if ch.MemberCount() == 0 && !ch.HasOption(options.ChannelPersist) {
		d.Registry.RemoveChannel(ch.ID())
		ch.ToLog("DESTROY")
	}
}

// broadcastQuit sends a Quit frame to ch's remaining members with the same
// visibility rules as broadcast_part (spec.md §4.3).
func (d *Dispatcher) broadcastQuit(ch *chatcore.Channel, who *chatcore.Client, reason string) {
	env := proto.Envelope{Type: proto.TypeQuit, Source: who.ID().String(), Message: reason}
	d.broadcastPresence(ch, who, env)
}

// broadcastPresence implements the shared join/part/quit visibility policy
// (spec.md §4.3 add_member / broadcast_part):
//   - Invisible member: no broadcast at all.
//   - HiddenMemberList or Invisible channel: agents only, real IP.
//   - Otherwise: non-agents get it with IP elided to 0.0.0.0, agents get
//     the real IP.
func (d *Dispatcher) broadcastPresence(ch *chatcore.Channel, who *chatcore.Client, env proto.Envelope) {
	if who.Options().Has(options.ClientInvisible) {
		return
	}
	realIP := env
	realIP.IP = who.IP()

	if ch.HasOption(options.ChannelHiddenMemberList) || ch.HasOption(options.ChannelInvisible) {
		d.sendToAgents(ch, realIP)
		return
	}

	elided := env
	elided.IP = "0.0.0.0"
	d.sendToAllButOneFiltered(ch, who.ID(), elided, realIP)
}

func (d *Dispatcher) sendToAgents(ch *chatcore.Channel, env proto.Envelope) {
	frame, err := env.Encode()
	if err != nil {
		log.Printf("[dispatch] encode %s: %v", env.Type, err)
		return
	}
	ch.SendToAgents(frame)
}

// sendToAllButOneFiltered delivers nonAgentEnv to non-agent members (except
// self) and agentEnv to agent members (except self).
func (d *Dispatcher) sendToAllButOneFiltered(ch *chatcore.Channel, self uuid.UUID, nonAgentEnv, agentEnv proto.Envelope) {
	nonAgentFrame, err := nonAgentEnv.Encode()
	if err != nil {
		log.Printf("[dispatch] encode %s: %v", nonAgentEnv.Type, err)
		return
	}
	agentFrame, err := agentEnv.Encode()
	if err != nil {
		log.Printf("[dispatch] encode %s: %v", agentEnv.Type, err)
		return
	}
	ch.Deliver(self, agentFrame, nonAgentFrame)
}

// escapeOnce HTML-escapes exactly once: it is applied at the single point
// where user-supplied text crosses into a broadcast or stored value, and
// never re-applied to already-escaped text (spec.md §8).
func escapeOnce(s string) string { return html.EscapeString(s) }

func timestamp() string { return time.Now().UTC().Format(time.RFC3339) }
