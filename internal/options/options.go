// Package options implements the bit-encoded option sets from spec.md §4.1:
// ClientOptions and ChannelOptions, each a 64-bit value with union,
// intersect, xor, and membership-test operations.
package options

// Client holds a ClientOptions bitfield.
type Client uint64

// Client option bits (spec.md §3).
const (
	ClientAdmin Client = 1 << iota
	ClientJoinChannels
	ClientPartChannels
	ClientCreateChannels
	ClientCanInvite
	ClientFilesAllowed // reserved, not exercised by the dispatcher
	ClientInvisible
)

var clientNames = []struct {
	bit  Client
	name string
}{
	{ClientAdmin, "Admin"},
	{ClientJoinChannels, "JoinChannels"},
	{ClientPartChannels, "PartChannels"},
	{ClientCreateChannels, "CreateChannels"},
	{ClientCanInvite, "CanInvite"},
	{ClientFilesAllowed, "FilesAllowed"},
	{ClientInvisible, "Invisible"},
}

// Union returns the bitwise union of self and other.
func (c Client) Union(other Client) Client { return c | other }

// Intersect returns the bitwise intersection of self and other.
func (c Client) Intersect(other Client) Client { return c & other }

// Xor returns the bitwise exclusive-or of self and other.
func (c Client) Xor(other Client) Client { return c ^ other }

// Has reports whether every bit of opt is set in self.
func (c Client) Has(opt Client) bool { return c.Intersect(opt) == opt }

// clientRecognizedMask is the union of every defined client option bit.
var clientRecognizedMask = func() Client {
	var m Client
	for _, e := range clientNames {
		m |= e.bit
	}
	return m
}()

// ClientFromWire masks an arbitrary peer-supplied 64-bit word down to the
// recognized client option bits, silently dropping anything else.
func ClientFromWire(word uint64) Client {
	return Client(word) & clientRecognizedMask
}

// Names returns the human-readable names of the set bits, in ascending
// bit order (matching original_source/chatd's options_vec_string).
func (c Client) Names() []string {
	var out []string
	for _, e := range clientNames {
		if c.Has(e.bit) {
			out = append(out, e.name)
		}
	}
	return out
}

// Channel holds a ChannelOptions bitfield.
type Channel uint64

// Channel option bits (spec.md §3).
const (
	ChannelClientInvites Channel = 1 << iota
	ChannelAgentOnly
	ChannelInviteOnly
	ChannelSaveHistory
	ChannelPersist
	ChannelWaitForAgent
	ChannelRejoinClients
	ChannelCanNotLeave
	ChannelHiddenMemberList
	ChannelHiddenMessages
	ChannelInvisible
	ChannelSecret
)

var channelNames = []struct {
	bit  Channel
	name string
}{
	{ChannelClientInvites, "ClientInvites"},
	{ChannelAgentOnly, "AgentOnly"},
	{ChannelInviteOnly, "InviteOnly"},
	{ChannelSaveHistory, "SaveHistory"},
	{ChannelPersist, "Persist"},
	{ChannelWaitForAgent, "WaitForAgent"},
	{ChannelRejoinClients, "RejoinClients"},
	{ChannelCanNotLeave, "CanNotLeave"},
	{ChannelHiddenMemberList, "HiddenMemberList"},
	{ChannelHiddenMessages, "HiddenMessages"},
	{ChannelInvisible, "Invisible"},
	{ChannelSecret, "Secret"},
}

// ChannelPublicSubset is the set of bits a channel owner who is not an
// agent may toggle via SetChannelModes (spec.md §4.6).
const ChannelPublicSubset = ChannelInviteOnly | ChannelSecret

func (c Channel) Union(other Channel) Channel { return c | other }

func (c Channel) Intersect(other Channel) Channel { return c & other }

func (c Channel) Xor(other Channel) Channel { return c ^ other }

func (c Channel) Has(opt Channel) bool { return c.Intersect(opt) == opt }

var channelRecognizedMask = func() Channel {
	var m Channel
	for _, e := range channelNames {
		m |= e.bit
	}
	return m
}()

// ChannelFromWire masks an arbitrary peer-supplied 64-bit modes word down to
// the recognized channel option bits.
func ChannelFromWire(word uint64) Channel {
	return Channel(word) & channelRecognizedMask
}

// Names returns the human-readable names of the set bits, in ascending
// bit order.
func (c Channel) Names() []string {
	var out []string
	for _, e := range channelNames {
		if c.Has(e.bit) {
			out = append(out, e.name)
		}
	}
	return out
}
