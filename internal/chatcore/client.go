package chatcore

import (
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Takeiteasyeh/chatd/internal/options"
)

// NameRegexp is the accepted shape for client display names (spec.md §3):
// 3-30 characters of letters, digits, space, or hyphen.
var NameRegexp = regexp.MustCompile(`^[A-Za-z0-9 \-]{3,30}$`)

// ChannelNameRegexp additionally allows channel names up to 50 characters.
var ChannelNameRegexp = regexp.MustCompile(`^[A-Za-z0-9- ]{3,50}$`)

// Type is the trust tier of a connected client.
type Type int

const (
	TypeNone Type = iota
	TypeAgent
	TypeContact
	TypeGuest
)

// Status is a client's position in the connection lifecycle.
type Status int

const (
	StatusPendingAuth Status = iota
	StatusConnected
	StatusZombie
	StatusClosing
)

// Sink is the capability to send one text frame atomically. A real
// implementation wraps a *websocket.Conn; tests use an in-memory fake.
// Writers acquire the per-client sink mutex for exactly one frame — see
// Client.Send — so a Sink implementation need not be internally synchronized.
type Sink interface {
	Send(frame []byte) error
	Close() error
}

// Client is one connected session: a guest, agent, or contact. It owns its
// outbound sink, identity, and the client-side view of its channel
// memberships (spec.md §3, §9 "Cyclic ownership").
type Client struct {
	id uuid.UUID
	ip string

	mu         sync.RWMutex // guards everything below except sink
	name       string
	clientType Type
	clientOpts options.Client
	status     Status
	connected  time.Time
	lastPing   time.Time
	lastAction time.Time
	channels   map[uuid.UUID]string // channel id -> channel name, client's own view

	sinkMu sync.Mutex
	sink   Sink
}

// NewClient creates a client in StatusPendingAuth for a freshly accepted
// connection. name is empty until authentication assigns one.
func NewClient(ip string, sink Sink) *Client {
	now := time.Now()
	return &Client{
		id:         uuid.New(),
		ip:         ip,
		status:     StatusPendingAuth,
		connected:  now,
		lastPing:   now,
		lastAction: now,
		channels:   make(map[uuid.UUID]string),
		sink:       sink,
	}
}

func (c *Client) ID() uuid.UUID { return c.id }

func (c *Client) IP() string { return c.ip }

func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// SetName validates new against NameRegexp and, if it matches, sets the
// client's display name. Returns false (no change) on a regex mismatch.
func (c *Client) SetName(newName string) bool {
	if !NameRegexp.MatchString(newName) {
		return false
	}
	c.mu.Lock()
	c.name = newName
	c.mu.Unlock()
	return true
}

func (c *Client) Type() Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientType
}

func (c *Client) SetType(t Type) {
	c.mu.Lock()
	c.clientType = t
	c.mu.Unlock()
}

func (c *Client) Options() options.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientOpts
}

func (c *Client) SetOptions(opts options.Client) {
	c.mu.Lock()
	c.clientOpts = opts
	c.mu.Unlock()
}

func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Client) SetStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// UpdateLastPingTime stamps last_ping with the current time (spec.md §4.7).
func (c *Client) UpdateLastPingTime() {
	c.mu.Lock()
	c.lastPing = time.Now()
	c.mu.Unlock()
}

// UpdateLastActionTime stamps last_action with the current time.
func (c *Client) UpdateLastActionTime() {
	c.mu.Lock()
	c.lastAction = time.Now()
	c.mu.Unlock()
}

// SetLastPing sets last_ping to an explicit time, for liveness-sweeper tests
// that need to simulate an idle or stale client without sleeping.
func (c *Client) SetLastPing(t time.Time) {
	c.mu.Lock()
	c.lastPing = t
	c.mu.Unlock()
}

// SetLastAction sets last_action to an explicit time, for liveness-sweeper
// tests that need to simulate an idle or stale client without sleeping.
func (c *Client) SetLastAction(t time.Time) {
	c.mu.Lock()
	c.lastAction = t
	c.mu.Unlock()
}

func (c *Client) LastPing() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPing
}

func (c *Client) LastAction() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastAction
}

func (c *Client) Connected() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// AddChannelView records channel id/name in the client's own membership view.
// Callers are responsible for also inserting the client into the channel's
// member set (spec.md §9 invariant); Registry/Dispatcher always do both.
func (c *Client) AddChannelView(id uuid.UUID, name string) {
	c.mu.Lock()
	c.channels[id] = name
	c.mu.Unlock()
}

// RemoveChannelView removes a channel from the client's membership view.
func (c *Client) RemoveChannelView(id uuid.UUID) {
	c.mu.Lock()
	delete(c.channels, id)
	c.mu.Unlock()
}

// HasChannelView reports whether the client's view lists channel id.
func (c *Client) HasChannelView(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[id]
	return ok
}

// ClearChannelViews empties the client's membership view. Used during
// teardown once every channel has separately removed the client.
func (c *Client) ClearChannelViews() {
	c.mu.Lock()
	c.channels = make(map[uuid.UUID]string)
	c.mu.Unlock()
}

// ChannelViews returns a snapshot copy of the client's membership view.
func (c *Client) ChannelViews() map[uuid.UUID]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uuid.UUID]string, len(c.channels))
	for k, v := range c.channels {
		out[k] = v
	}
	return out
}

// Send writes one frame to the client's sink, serialized against concurrent
// senders by sinkMu (spec.md §4.2, §5). After CloseSink the sink is nil and
// Send is a silent no-op — callers that need to detect this should check
// Status first.
func (c *Client) Send(frame []byte) error {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	if c.sink == nil {
		return nil
	}
	if err := c.sink.Send(frame); err != nil {
		log.Printf("[client %s] send error: %v", c.id, err)
		return err
	}
	return nil
}

// CloseSink closes the underlying sink and clears it so further Send calls
// are no-ops. Idempotent.
func (c *Client) CloseSink() {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	if c.sink == nil {
		return
	}
	_ = c.sink.Close()
	c.sink = nil
}
