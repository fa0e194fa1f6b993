package dispatch

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Takeiteasyeh/chatd/internal/chatcore"
	"github.com/Takeiteasyeh/chatd/internal/options"
	"github.com/Takeiteasyeh/chatd/internal/proto"
)

const maxKillReasonLength = 255

// handleKill implements spec.md §4.6 Kill. env.Target carries the victim's
// user id, env.Message the reason.
func (d *Dispatcher) handleKill(c *chatcore.Client, env proto.Envelope) {
	if c.Type() != chatcore.TypeAgent {
		d.sendProblem(c, proto.PermissionDenied, "agents only")
		return
	}
	userID, err := uuid.Parse(env.Target)
	if err != nil {
		d.sendProblem(c, proto.InvalidArgument, "bad user id")
		return
	}
	target, ok := d.Registry.GetClient(userID)
	if !ok {
		d.sendProblem(c, proto.NotMember, env.Target)
		return
	}
	if target.Options().Has(options.ClientAdmin) {
		d.sendProblem(c, proto.PermissionDenied, "target is Admin")
		return
	}
	if len(env.Message) > maxKillReasonLength {
		d.sendProblem(c, proto.InvalidArgument, "reason too long")
		return
	}

	d.killClient(target, env.Message, c)
}

// killClient carries out the kill itself: Quit broadcast + removal from
// every channel the target is in, a KickedFromServer problem and sink
// close for the target, registry removal, and a wallop summary. by is the
// agent responsible (the issuer of a Kill, or of the Kline whose cascade
// caused it); a nil by is reported as "the server".
func (d *Dispatcher) killClient(target *chatcore.Client, reason string, by *chatcore.Client) {
	if reason == "" {
		reason = "no reason was provided."
	}
	reason = escapeOnce(reason)

	for chID := range target.ChannelViews() {
		ch, ok := d.Registry.GetChannel(chID)
		if !ok {
			continue
		}
		d.leaveChannel(ch, target, fmt.Sprintf("Killed (%s)", reason))
	}
	target.ClearChannelViews()

	d.sendProblem(target, proto.KickedFromServer, reason)
	target.SetStatus(chatcore.StatusClosing)
	target.CloseSink()
	d.Registry.RemoveClient(target.ID())

	byName := "the server"
	if by != nil {
		byName = by.Name()
	}
	summary := proto.Envelope{
		Type:    proto.TypeWallop,
		Message: fmt.Sprintf("%s was killed by %s (%s)", target.Name(), byName, reason),
	}
	if frame, err := summary.Encode(); err == nil {
		d.Registry.SendToWallops(frame)
	}
}

// handleKline implements spec.md §4.6 Kline. env.Target carries the ip,
// env.ExpiresSeconds the ban duration, env.Message the reason.
func (d *Dispatcher) handleKline(c *chatcore.Client, env proto.Envelope) {
	if c.Type() != chatcore.TypeAgent {
		d.sendProblem(c, proto.PermissionDenied, "agents only")
		return
	}
	if d.Registry.Bans.Exists(env.Target) {
		d.sendProblem(c, proto.AlreadyMember, env.Target)
		return
	}

	expires := time.Now().Add(time.Duration(env.ExpiresSeconds) * time.Second)
	ban := chatcore.Ban{
		IP:      env.Target,
		Reason:  env.Message,
		AddedBy: c.Name(),
		AddedOn: time.Now(),
		Expires: &expires,
	}
	if err := d.Registry.Bans.Add(ban); err != nil {
		d.sendProblem(c, proto.InvalidArgument, "could not persist ban")
		return
	}

	affected := 0
	for _, target := range d.Registry.ClientsByIP(env.Target) {
		if target.Type() == chatcore.TypeAgent {
			continue
		}
		d.killClient(target, fmt.Sprintf("Banned (%s)", env.Message), c)
		affected++
	}

	summary := proto.Envelope{
		Type:    proto.TypeWallop,
		Message: fmt.Sprintf("%s klined %s (%s), affecting %d clients", c.Name(), env.Target, env.Message, affected),
	}
	if frame, err := summary.Encode(); err == nil {
		d.Registry.SendToWallops(frame)
	}
}
