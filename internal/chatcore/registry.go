package chatcore

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Takeiteasyeh/chatd/internal/options"
	"github.com/Takeiteasyeh/chatd/internal/proto"
)

// Inbound is one envelope waiting to be dispatched, paired with the client
// it arrived from. internal/transport enqueues these from each connection's
// read loop; internal/dispatch drains them from Registry.Inbound.
type Inbound struct {
	Client   *Client
	Envelope proto.Envelope
}

// Stats are the server-wide counters from spec.md §3, read by the periodic
// stats logger and exposed for tests.
type Stats struct {
	ConnectionsSinceStart atomic.Uint64
	InvalidConnects       atomic.Uint64
	BannedConnects        atomic.Uint64
	GuestCount            atomic.Int64
}

// Registry is the single source of truth for connected clients and live
// channels. Its own mutexes guard the id-indexes; each Client/Channel then
// guards its own fields, per the lock order registry -> channel -> client
// -> sink (spec.md §5). Registry never locks a channel or client while
// holding its own mutex — lookups copy out a pointer and release first.
type Registry struct {
	clientsMu sync.RWMutex
	clients   map[uuid.UUID]*Client
	names     map[string]uuid.UUID // exact-case name -> client id

	channelsMu sync.RWMutex
	channels   map[uuid.UUID]*Channel
	chanNames  map[string]uuid.UUID // lowercased name -> channel id

	Bans  *BanList
	Stats Stats

	Inbound chan Inbound

	MotdGuests  string
	MotdClients string
	MotdAgents  string

	LogDir string
}

// NewRegistry creates an empty registry with the given ban list and an
// unbounded-ish inbound command queue (buffered generously; transport
// applies backpressure by blocking sends, matching an MPSC channel).
func NewRegistry(bans *BanList, logDir string) *Registry {
	return &Registry{
		clients:   make(map[uuid.UUID]*Client),
		names:     make(map[string]uuid.UUID),
		channels:  make(map[uuid.UUID]*Channel),
		chanNames: make(map[string]uuid.UUID),
		Bans:      bans,
		Inbound:   make(chan Inbound, 1024),
		LogDir:    logDir,
	}
}

// normName folds name to lowercase for the channel-name index. Channel
// lookup is case-insensitive (spec.md §4.5 server.rs:281); client name
// lookup is not and does not use this helper.
func normName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

// Register adds a freshly accepted, still-PendingAuth client to the id
// index only (spec.md §4.7 step 3: "materialize a Client and register
// it"). It has no name yet, so it is not visible to name lookups until
// ClaimName succeeds.
func (r *Registry) Register(c *Client) {
	r.clientsMu.Lock()
	r.clients[c.ID()] = c
	r.clientsMu.Unlock()
	r.Stats.ConnectionsSinceStart.Add(1)
}

// ClaimName inserts c into the name index under name, the final step of
// authentication. Client name lookup is case-sensitive (spec.md §4.5
// client_name_to_uuid compares names verbatim; only channel lookup folds
// case). Returns false if name is already taken exactly as given; c remains
// registered by id either way.
func (r *Registry) ClaimName(c *Client, name string) bool {
	r.clientsMu.Lock()
	defer r.clientsMu.Unlock()
	if _, taken := r.names[name]; taken {
		return false
	}
	r.names[name] = c.ID()
	if c.Type() == TypeGuest {
		r.Stats.GuestCount.Add(1)
	}
	return true
}

// RemoveClient unregisters a client entirely.
func (r *Registry) RemoveClient(id uuid.UUID) {
	r.clientsMu.Lock()
	c, ok := r.clients[id]
	if !ok {
		r.clientsMu.Unlock()
		return
	}
	delete(r.clients, id)
	delete(r.names, c.Name())
	r.clientsMu.Unlock()

	if c.Type() == TypeGuest {
		r.Stats.GuestCount.Add(-1)
	}
}

// GetClient returns a client by id.
func (r *Registry) GetClient(id uuid.UUID) (*Client, bool) {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// ClientIDByName resolves a display name (case-sensitive, spec.md §4.5) to
// a client id.
func (r *Registry) ClientIDByName(name string) (uuid.UUID, bool) {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	id, ok := r.names[name]
	return id, ok
}

// RenameClient atomically moves the name index entry from old to new. The
// caller must already hold a validated, free new name (checked via
// ClientIDByName) — this just swaps the index entries and the client's own
// name field.
func (r *Registry) RenameClient(c *Client, newName string) bool {
	oldName := c.Name()
	r.clientsMu.Lock()
	defer r.clientsMu.Unlock()
	if _, taken := r.names[newName]; taken {
		return false
	}
	if !c.SetName(newName) {
		return false
	}
	delete(r.names, oldName)
	r.names[newName] = c.ID()
	return true
}

// ClientsByIP returns a snapshot of every registered client whose source ip
// matches ip exactly (used by Kline cascade, spec.md §4.6).
func (r *Registry) ClientsByIP(ip string) []*Client {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	var out []*Client
	for _, c := range r.clients {
		if c.IP() == ip {
			out = append(out, c)
		}
	}
	return out
}

// ClientCount returns the number of registered clients.
func (r *Registry) ClientCount() int {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	return len(r.clients)
}

// AllClients returns a snapshot of every registered client, used by the
// liveness sweeper (spec.md §4.7).
func (r *Registry) AllClients() []*Client {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// AddChannel registers a new channel. Returns false if the (case-
// insensitive) name is already taken.
func (r *Registry) AddChannel(ch *Channel) bool {
	key := normName(ch.Name())
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()
	if _, taken := r.chanNames[key]; taken {
		return false
	}
	r.channels[ch.ID()] = ch
	r.chanNames[key] = ch.ID()
	return true
}

// RemoveChannel unregisters a channel entirely (spec.md §4.6 channel
// destruction: last member parts a non-Persist channel).
func (r *Registry) RemoveChannel(id uuid.UUID) {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()
	ch, ok := r.channels[id]
	if !ok {
		return
	}
	delete(r.channels, id)
	delete(r.chanNames, normName(ch.Name()))
}

// GetChannel returns a channel by id.
func (r *Registry) GetChannel(id uuid.UUID) (*Channel, bool) {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// ChannelByName resolves a channel name (case-insensitive) to its channel.
func (r *Registry) ChannelByName(name string) (*Channel, bool) {
	r.channelsMu.RLock()
	id, ok := r.chanNames[normName(name)]
	r.channelsMu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.GetChannel(id)
}

// ChannelCount returns the number of live channels.
func (r *Registry) ChannelCount() int {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	return len(r.channels)
}

// Channels returns a snapshot of every live channel.
func (r *Registry) Channels() []*Channel {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

// CreateDefaultChannels creates the well-known lobbies named by config
// (use_global_lobby/staff_lobby/guest_lobby, spec.md §6), each Persist and
// CanNotLeave so they always exist and can never be emptied-out of
// existence. ownerless lobbies use the nil UUID as owner.
func (r *Registry) CreateDefaultChannels(names []string, opts options.Channel) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, exists := r.ChannelByName(name); exists {
			continue
		}
		ch := NewChannel(name, uuid.Nil, false, opts.Union(options.ChannelPersist).Union(options.ChannelCanNotLeave), r.LogDir)
		if !r.AddChannel(ch) {
			log.Printf("[registry] default channel %q already present", name)
		}
	}
}

// SendToWall delivers frame to every connected client regardless of channel
// membership (spec.md §4.6 Wall). A send failure marks the target Closing,
// matching server.rs's wall/wallop loop.
func (r *Registry) SendToWall(frame []byte) {
	r.clientsMu.RLock()
	targets := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		if c.Status() == StatusConnected {
			targets = append(targets, c)
		}
	}
	r.clientsMu.RUnlock()

	for _, c := range targets {
		if err := c.Send(frame); err != nil {
			log.Printf("[registry] sendto_wall %s: %v", c.ID(), err)
			c.SetStatus(StatusClosing)
		}
	}
}

// SendToWallops delivers frame only to connected Agents (spec.md §4.5, §4.6
// Wallop) — type, not the Admin option bit, is what makes an agent a wallop
// recipient. A send failure marks the target Closing.
func (r *Registry) SendToWallops(frame []byte) {
	r.clientsMu.RLock()
	targets := make([]*Client, 0)
	for _, c := range r.clients {
		if c.Type() == TypeAgent && c.Status() == StatusConnected {
			targets = append(targets, c)
		}
	}
	r.clientsMu.RUnlock()

	for _, c := range targets {
		if err := c.Send(frame); err != nil {
			log.Printf("[registry] sendto_wallops %s: %v", c.ID(), err)
			c.SetStatus(StatusClosing)
		}
	}
}

// Enqueue pushes an inbound envelope onto the command queue, blocking if
// full (natural backpressure onto the originating connection's read loop).
func (r *Registry) Enqueue(c *Client, env proto.Envelope) {
	r.Inbound <- Inbound{Client: c, Envelope: env}
}

// RunStatsLogger periodically logs the server-wide counters until ctx is
// canceled, adapted from metrics.go's RunMetrics ticker loop.
func (r *Registry) RunStatsLogger(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("[registry] clients=%d channels=%d connections_since_start=%d invalid_connects=%d banned_connects=%d guests=%d",
				r.ClientCount(), r.ChannelCount(),
				r.Stats.ConnectionsSinceStart.Load(), r.Stats.InvalidConnects.Load(),
				r.Stats.BannedConnects.Load(), r.Stats.GuestCount.Load())
		}
	}
}
