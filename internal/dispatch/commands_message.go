package dispatch

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Takeiteasyeh/chatd/internal/chatcore"
	"github.com/Takeiteasyeh/chatd/internal/options"
	"github.com/Takeiteasyeh/chatd/internal/proto"
)

// handleMessage implements spec.md §4.6 Message.
func (d *Dispatcher) handleMessage(c *chatcore.Client, env proto.Envelope) {
	id, err := uuid.Parse(env.Target)
	if err != nil {
		d.sendProblem(c, proto.ChannelInvalid, env.Target)
		return
	}
	ch, ok := d.Registry.GetChannel(id)
	if !ok || !ch.HasMember(c.ID()) {
		d.sendProblem(c, proto.NotMember, env.Target)
		return
	}

	text := escapeOnce(env.Message)
	out := proto.Envelope{
		Type:    proto.TypeMessage,
		Source:  c.ID().String(),
		Target:  ch.ID().String(),
		Message: text,
	}
	frame, err := out.Encode()
	if err != nil {
		return
	}

	if ch.HasOption(options.ChannelHiddenMessages) {
		ch.SendToAgents(frame)
	} else {
		ch.SendToAllButOne(c.ID(), frame)
	}

	if ch.HasOption(options.ChannelSaveHistory) {
		ch.ToLog(fmt.Sprintf("<%s> %s: %s", c.IP(), c.Name(), text))
	}
}
