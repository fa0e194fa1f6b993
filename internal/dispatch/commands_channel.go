package dispatch

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Takeiteasyeh/chatd/internal/chatcore"
	"github.com/Takeiteasyeh/chatd/internal/options"
	"github.com/Takeiteasyeh/chatd/internal/proto"
)

// looksLikeUUID reports whether s parses as a UUID string, used to decide
// join-by-id vs join-by-name and to reject UUID-shaped channel names
// (spec.md §4.6 Join).
func looksLikeUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// handleJoin implements spec.md §4.6 Join.
func (d *Dispatcher) handleJoin(c *chatcore.Client, env proto.Envelope) {
	if !c.Options().Has(options.ClientAdmin) && !c.Options().Has(options.ClientJoinChannels) {
		d.sendProblem(c, proto.PermissionDenied, "missing JoinChannels")
		return
	}

	var ch *chatcore.Channel
	var ok bool
	byID := env.Target != "" && looksLikeUUID(env.Target) && env.Message == ""
	if byID {
		id, _ := uuid.Parse(env.Target)
		ch, ok = d.Registry.GetChannel(id)
	} else {
		ch, ok = d.Registry.ChannelByName(env.Message)
	}

	if ok {
		d.joinExisting(c, ch)
		return
	}

	if byID {
		d.sendProblem(c, proto.ChannelInvalid, "channel not found")
		return
	}
	d.createAndJoin(c, env.Message)
}

func (d *Dispatcher) joinExisting(c *chatcore.Client, ch *chatcore.Channel) {
	if ch.HasMember(c.ID()) {
		d.sendProblem(c, proto.AlreadyMember, ch.Name())
		return
	}
	if ch.HasOption(options.ChannelAgentOnly) && c.Type() != chatcore.TypeAgent {
		d.sendProblem(c, proto.PermissionDenied, "agent-only channel")
		return
	}
	if ch.HasOption(options.ChannelInviteOnly) && !c.Options().Has(options.ClientAdmin) {
		// Invite tracking itself is out of scope for the core engine;
		// without an invite record Admin is the only way in.
		d.sendProblem(c, proto.PermissionDenied, "invite-only channel")
		return
	}
	d.announceJoin(ch, c, "JOIN")
}

func (d *Dispatcher) createAndJoin(c *chatcore.Client, name string) {
	if !c.Options().Has(options.ClientCreateChannels) && c.Type() != chatcore.TypeAgent {
		d.sendProblem(c, proto.PermissionDenied, "missing CreateChannels")
		return
	}
	if looksLikeUUID(name) {
		d.sendProblem(c, proto.ChannelInvalid, name)
		return
	}
	if !chatcore.ChannelNameRegexp.MatchString(name) {
		d.sendProblem(c, proto.ChannelNameBad, name)
		return
	}

	ch := chatcore.NewChannel(name, c.ID(), false,
		options.ChannelClientInvites.Union(options.ChannelSaveHistory), d.Registry.LogDir)
	if !d.Registry.AddChannel(ch) {
		d.sendProblem(c, proto.ChannelInvalid, "name already taken")
		return
	}
	ch.ToLog(fmt.Sprintf("CREATE CHANNEL by %s", c.Name()))
	d.announceJoin(ch, c, "JOIN")
}

// announceJoin performs the shared membership-add-and-notify sequence used
// by both an explicit Join command and auto-join-on-auth (spec.md §4.6,
// §4.6.1): add to both membership views, broadcast presence, send the
// joiner a Join echo (IP elided), a UserList unless hidden, the topic if
// set, and a log line.
func (d *Dispatcher) announceJoin(ch *chatcore.Channel, c *chatcore.Client, logVerb string) {
	ch.AddMember(c, c.Name())
	c.AddChannelView(ch.ID(), ch.Name())

	d.broadcastPresence(ch, c, proto.Envelope{
		Type:   proto.TypeJoin,
		Source: c.ID().String(),
		Target: ch.ID().String(),
	})

	d.send(c, proto.Envelope{
		Type:   proto.TypeJoin,
		Source: c.ID().String(),
		Target: ch.ID().String(),
		IP:     "0.0.0.0",
	})

	if !ch.HasOption(options.ChannelHiddenMemberList) || c.Type() == chatcore.TypeAgent {
		entries := ch.VisibleMembers(c)
		users := make([]proto.UserListEntry, 0, len(entries))
		for _, e := range entries {
			users = append(users, proto.UserListEntry{ID: e.ID.String(), Name: e.Name})
		}
		d.send(c, proto.Envelope{Type: proto.TypeUserList, Target: ch.ID().String(), Users: users})
	}

	if topic := ch.Topic(); topic != "" {
		d.send(c, proto.Envelope{Type: proto.TypeTopic, Target: ch.ID().String(), Message: topic})
	}

	d.send(c, proto.Envelope{
		Type:        proto.TypeChannelModes,
		Target:      ch.ID().String(),
		ModeStrings: ch.OptionsVecString(),
	})

	ch.ToLog(fmt.Sprintf("%s %s", logVerb, c.Name()))
}

// handlePart implements spec.md §4.6 Part.
func (d *Dispatcher) handlePart(c *chatcore.Client, env proto.Envelope) {
	if !c.Options().Has(options.ClientAdmin) && !c.Options().Has(options.ClientPartChannels) {
		d.sendProblem(c, proto.PermissionDenied, "missing PartChannels")
		return
	}
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
	if ch.HasOption(options.ChannelCanNotLeave) &&
		!(c.Type() == chatcore.TypeAgent && c.Options().Has(options.ClientAdmin)) {
		d.sendProblem(c, proto.PermissionDenied, "channel cannot be left")
		return
	}

	d.send(c, proto.Envelope{Type: proto.TypePart, Source: c.ID().String(), Target: ch.ID().String()})
	d.leaveChannel(ch, c, "left")
}

// handleKick implements spec.md §4.6 Kick.
func (d *Dispatcher) handleKick(c *chatcore.Client, env proto.Envelope) {
	chID, err1 := uuid.Parse(env.Target)
	userID, err2 := uuid.Parse(env.Message)
	if err1 != nil || err2 != nil {
		d.sendProblem(c, proto.InvalidArgument, "bad channel or user id")
		return
	}
	ch, ok := d.Registry.GetChannel(chID)
	if !ok {
		d.sendProblem(c, proto.ChannelInvalid, env.Target)
		return
	}
	if c.Type() != chatcore.TypeAgent && c.ID() != ch.Owner() {
		d.sendProblem(c, proto.PermissionDenied, "not owner or agent")
		return
	}
	target, ok := d.Registry.GetClient(userID)
	if !ok || !ch.HasMember(userID) {
		d.sendProblem(c, proto.NotMember, env.Message)
		return
	}

	kickEnv := proto.Envelope{
		Type:    proto.TypeKick,
		Source:  c.ID().String(),
		Target:  ch.ID().String(),
		Message: target.ID().String(),
	}
	frame, err := kickEnv.Encode()
	if err == nil {
		ch.SendToAll(frame)
	}

	ch.RemoveMember(target.ID())
	target.RemoveChannelView(ch.ID())
	ch.ToLog(fmt.Sprintf("KICK %s by %s", target.Name(), c.Name()))
}

// handleSetChannelModes implements spec.md §4.6 SetChannelModes.
func (d *Dispatcher) handleSetChannelModes(c *chatcore.Client, env proto.Envelope) {
	id, err := uuid.Parse(env.Target)
	if err != nil {
		d.sendProblem(c, proto.ChannelInvalid, env.Target)
		return
	}
	ch, ok := d.Registry.GetChannel(id)
	if !ok {
		d.sendProblem(c, proto.ChannelInvalid, env.Target)
		return
	}
	if c.Type() != chatcore.TypeAgent && c.ID() != ch.Owner() {
		d.sendProblem(c, proto.PermissionDenied, "not owner or agent")
		return
	}

	requested := options.ChannelFromWire(env.Modes)
	current := ch.Options()
	var effective options.Channel
	if c.Type() == chatcore.TypeAgent {
		effective = requested
	} else {
		// Non-agents may only toggle the public subset; every other bit
		// keeps its current value (spec.md §4.6, §9).
		effective = current.Xor(current.Intersect(options.ChannelPublicSubset)).Union(
			requested.Intersect(options.ChannelPublicSubset))
	}
	if effective == current {
		return
	}
	ch.SetOptions(effective)

	notice := proto.Envelope{
		Type:    proto.TypeMessage,
		Source:  c.ID().String(),
		Target:  ch.ID().String(),
		Message: fmt.Sprintf("%s changed channel modes to: %s", c.Name(), strings.Join(ch.OptionsVecString(), ", ")),
	}
	modesFrame := proto.Envelope{Type: proto.TypeChannelModes, Target: ch.ID().String(), ModeStrings: ch.OptionsVecString()}
	if f, err := notice.Encode(); err == nil {
		ch.SendToAll(f)
	}
	if f, err := modesFrame.Encode(); err == nil {
		ch.SendToAll(f)
	}
}

// handleTopic implements spec.md §4.6 Topic.
func (d *Dispatcher) handleTopic(c *chatcore.Client, env proto.Envelope) {
	id, err := uuid.Parse(env.Target)
	if err != nil {
		d.sendProblem(c, proto.ChannelInvalid, env.Target)
		return
	}
	ch, ok := d.Registry.GetChannel(id)
	if !ok {
		d.sendProblem(c, proto.ChannelInvalid, env.Target)
		return
	}
	if c.Type() != chatcore.TypeAgent && c.ID() != ch.Owner() {
		d.sendProblem(c, proto.PermissionDenied, "not owner or agent")
		return
	}
	if len(env.Message) > d.Config.MaxTopicLength {
		d.sendProblem(c, proto.InvalidArgument, "topic too long")
		return
	}

	ch.SetTopic(env.Message)

	notice := proto.Envelope{
		Type:    proto.TypeMessage,
		Source:  c.ID().String(),
		Target:  ch.ID().String(),
		Message: fmt.Sprintf("%s changed the topic", c.Name()),
	}
	topicFrame := proto.Envelope{Type: proto.TypeTopic, Target: ch.ID().String(), Message: ch.Topic()}
	if f, err := notice.Encode(); err == nil {
		ch.SendToAll(f)
	}
	if f, err := topicFrame.Encode(); err == nil {
		ch.SendToAll(f)
	}
}

// handleChannels implements spec.md §4.6 Channels.
func (d *Dispatcher) handleChannels(c *chatcore.Client, env proto.Envelope) {
	isAgent := c.Type() == chatcore.TypeAgent
	var entries []proto.ChannelListEntry
	for _, ch := range d.Registry.Channels() {
		if !isAgent {
			opts := ch.Options()
			if opts.Has(options.ChannelInvisible) || opts.Has(options.ChannelSecret) || opts.Has(options.ChannelAgentOnly) {
				continue
			}
		}
		entries = append(entries, proto.ChannelListEntry{
			ID:      ch.ID().String(),
			Name:    ch.Name(),
			Topic:   ch.Topic(),
			Members: uint64(ch.MemberCount()),
			Options: uint64(ch.Options()),
		})
	}
	d.send(c, proto.Envelope{Type: proto.TypeChannelList, Channels: entries})
}

// handleTyping implements spec.md §4.6 Typing.
func (d *Dispatcher) handleTyping(c *chatcore.Client, env proto.Envelope) {
	id, err := uuid.Parse(env.Target)
	if err != nil {
		return
	}
	ch, ok := d.Registry.GetChannel(id)
	if !ok || !ch.HasMember(c.ID()) {
		return
	}
	notice := proto.Envelope{Type: proto.TypeTyping, Source: c.ID().String(), Target: ch.ID().String()}
	frame, err := notice.Encode()
	if err != nil {
		return
	}
	if ch.HasOption(options.ChannelHiddenMessages) || ch.HasOption(options.ChannelHiddenMemberList) {
		ch.SendToAgents(frame)
		return
	}
	ch.SendToAllButOne(c.ID(), frame)
}
