package chatcore

import (
	"fmt"
	"html"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Takeiteasyeh/chatd/internal/options"
)

// member is one client's membership record as held by the channel.
type member struct {
	client *Client
	name   string
}

// Channel is a named topic room. Membership, topic, and option state are
// guarded by mu; broadcast helpers snapshot the member set under a read
// lock and release it before touching any client's sink, matching
// room.go's Broadcast/BroadcastControl pattern so a slow or stuck client
// send never holds up channel-wide mutation (spec.md §5 lock order:
// registry -> channel -> client -> sink).
type Channel struct {
	id      uuid.UUID
	name    string
	private bool
	owner   uuid.UUID

	mu      sync.RWMutex
	topic   string
	opts    options.Channel
	members map[uuid.UUID]member

	logDir string
}

// NewChannel creates a channel with no members and an empty topic.
func NewChannel(name string, owner uuid.UUID, private bool, opts options.Channel, logDir string) *Channel {
	return &Channel{
		id:      uuid.New(),
		name:    name,
		private: private,
		owner:   owner,
		opts:    opts,
		members: make(map[uuid.UUID]member),
		logDir:  logDir,
	}
}

func (ch *Channel) ID() uuid.UUID { return ch.id }

func (ch *Channel) Name() string { return ch.name }

func (ch *Channel) Private() bool { return ch.private }

func (ch *Channel) Owner() uuid.UUID { return ch.owner }

func (ch *Channel) SetOwner(id uuid.UUID) { ch.owner = id }

func (ch *Channel) Topic() string {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.topic
}

// maxTopicLength is enforced by the caller (internal/dispatch), which knows
// the configured limit; SetTopic HTML-escapes its input once per call, so
// passing an already-escaped topic back in escapes it a second time.
func (ch *Channel) SetTopic(raw string) {
	escaped := html.EscapeString(raw)
	ch.mu.Lock()
	ch.topic = escaped
	ch.mu.Unlock()
}

func (ch *Channel) Options() options.Channel {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.opts
}

func (ch *Channel) SetOptions(opts options.Channel) {
	ch.mu.Lock()
	ch.opts = opts
	ch.mu.Unlock()
}

func (ch *Channel) AddOption(opt options.Channel) {
	ch.mu.Lock()
	ch.opts = ch.opts.Union(opt)
	ch.mu.Unlock()
}

func (ch *Channel) RemoveOption(opt options.Channel) {
	ch.mu.Lock()
	ch.opts = ch.opts.Xor(ch.opts.Intersect(opt))
	ch.mu.Unlock()
}

func (ch *Channel) HasOption(opt options.Channel) bool {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.opts.Has(opt)
}

// OptionsVecString returns the set option names, ascending bit order,
// matching original_source/chatd's options_vec_string.
func (ch *Channel) OptionsVecString() []string {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.opts.Names()
}

// AddMember inserts c into the membership set under name. Returns false if
// c is already a member.
func (ch *Channel) AddMember(c *Client, name string) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if _, ok := ch.members[c.ID()]; ok {
		return false
	}
	ch.members[c.ID()] = member{client: c, name: name}
	return true
}

// RemoveMember removes a client from the membership set. Returns false if
// the client was not a member.
func (ch *Channel) RemoveMember(id uuid.UUID) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if _, ok := ch.members[id]; !ok {
		return false
	}
	delete(ch.members, id)
	return true
}

// HasMember reports membership without copying the member set.
func (ch *Channel) HasMember(id uuid.UUID) bool {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	_, ok := ch.members[id]
	return ok
}

// MemberCount returns the number of current members.
func (ch *Channel) MemberCount() int {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.members)
}

// snapshotMembers copies the current member list under a read lock, then
// releases it. Every broadcast helper below goes through this so sink
// writes never happen while mu is held.
func (ch *Channel) snapshotMembers() []member {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	out := make([]member, 0, len(ch.members))
	for _, m := range ch.members {
		out = append(out, m)
	}
	return out
}

// SendToOne delivers frame to a single member, if present.
func (ch *Channel) SendToOne(id uuid.UUID, frame []byte) {
	ch.mu.RLock()
	m, ok := ch.members[id]
	ch.mu.RUnlock()
	if !ok {
		return
	}
	if err := m.client.Send(frame); err != nil {
		log.Printf("[channel %s] sendto_one %s: %v", ch.name, id, err)
	}
}

// SendToAll delivers frame to every current member.
func (ch *Channel) SendToAll(frame []byte) {
	for _, m := range ch.snapshotMembers() {
		if err := m.client.Send(frame); err != nil {
			log.Printf("[channel %s] sendto_all %s: %v", ch.name, m.client.ID(), err)
		}
	}
}

// SendToAllButOne delivers frame to every member except except.
func (ch *Channel) SendToAllButOne(except uuid.UUID, frame []byte) {
	for _, m := range ch.snapshotMembers() {
		if m.client.ID() == except {
			continue
		}
		if err := m.client.Send(frame); err != nil {
			log.Printf("[channel %s] sendto_all_butone %s: %v", ch.name, m.client.ID(), err)
		}
	}
}

// Deliver sends agentFrame to every Agent member and nonAgentFrame to every
// non-Agent member, skipping except. Used for presence/broadcast policies
// that differ by member type (spec.md §4.3 add_member/broadcast_part).
func (ch *Channel) Deliver(except uuid.UUID, agentFrame, nonAgentFrame []byte) {
	for _, m := range ch.snapshotMembers() {
		if m.client.ID() == except {
			continue
		}
		frame := nonAgentFrame
		if m.client.Type() == TypeAgent {
			frame = agentFrame
		}
		if err := m.client.Send(frame); err != nil {
			log.Printf("[channel %s] deliver %s: %v", ch.name, m.client.ID(), err)
		}
	}
}

// SendToAgents delivers frame only to members whose client Type is Agent.
func (ch *Channel) SendToAgents(frame []byte) {
	for _, m := range ch.snapshotMembers() {
		if m.client.Type() != TypeAgent {
			continue
		}
		if err := m.client.Send(frame); err != nil {
			log.Printf("[channel %s] sendto_agents %s: %v", ch.name, m.client.ID(), err)
		}
	}
}

// SendToNonAgents delivers frame only to members whose client Type is not Agent.
func (ch *Channel) SendToNonAgents(frame []byte) {
	for _, m := range ch.snapshotMembers() {
		if m.client.Type() == TypeAgent {
			continue
		}
		if err := m.client.Send(frame); err != nil {
			log.Printf("[channel %s] sendto_nonagents %s: %v", ch.name, m.client.ID(), err)
		}
	}
}

// VisibleMembers returns the (id, name) pairs a UserList request should
// see: members with ClientInvisible set are dropped unless the requester is
// an agent, and the whole list is empty when HiddenMemberList is set and
// the requester is not an agent or the channel owner.
func (ch *Channel) VisibleMembers(requester *Client) []UserListEntry {
	isPrivileged := requester.Type() == TypeAgent || requester.ID() == ch.Owner()
	if ch.HasOption(options.ChannelHiddenMemberList) && !isPrivileged {
		return nil
	}
	var out []UserListEntry
	for _, m := range ch.snapshotMembers() {
		if m.client.Options().Has(options.ClientInvisible) && !isPrivileged {
			continue
		}
		out = append(out, UserListEntry{ID: m.client.ID(), Name: m.name})
	}
	return out
}

// UserListEntry is the (id, name) pair reported by VisibleMembers; kept
// distinct from proto.UserListEntry (string-typed wire form) so chatcore
// stays independent of the wire encoding.
type UserListEntry struct {
	ID   uuid.UUID
	Name string
}

// ToLog appends one line to logs/<channel-id>.log. Failures are logged and
// otherwise ignored — channel history is best-effort, never load-bearing
// for delivery (spec.md §4.5).
func (ch *Channel) ToLog(line string) {
	if ch.logDir == "" || !ch.HasOption(options.ChannelSaveHistory) {
		return
	}
	path := filepath.Join(ch.logDir, ch.id.String()+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[channel %s] to_log open: %v", ch.name, err)
		return
	}
	defer f.Close()
	stamp := time.Now().UTC().Format(time.RFC3339)
	if _, err := fmt.Fprintf(f, "[%s] %s\n", stamp, line); err != nil {
		log.Printf("[channel %s] to_log write: %v", ch.name, err)
	}
}
