// Package proto defines the wire protocol: the envelope exchanged over the
// WebSocket control stream and the tagged message types it carries.
package proto

import "encoding/json"

// MessageType is the tag of the union, carried in an Envelope's Type field.
type MessageType string

// The complete tag set from the wire protocol. Tags with no handler
// (Whois, Users, Private, File, Wall, Walladmin, AuthDevice) are parsed but
// rejected with Problem(NotAvailable); see internal/dispatch.
const (
	TypeAuthGuest         MessageType = "AuthGuest"
	TypeAuthDevice        MessageType = "AuthDevice"
	TypeAuthAgent         MessageType = "AuthAgent"
	TypeAuthOk            MessageType = "AuthOk"
	TypePing              MessageType = "Ping"
	TypePong              MessageType = "Pong"
	TypeJoin              MessageType = "Join"
	TypePart              MessageType = "Part"
	TypeKick              MessageType = "Kick"
	TypeChannelModes      MessageType = "ChannelModes"
	TypeSetChannelModes   MessageType = "SetChannelModes"
	TypeQuit              MessageType = "Quit"
	TypeKill              MessageType = "Kill"
	TypeKline             MessageType = "Kline"
	TypeWhois             MessageType = "Whois"
	TypeMessage           MessageType = "Message"
	TypeMotd              MessageType = "Motd"
	TypeTopic             MessageType = "Topic"
	TypePrivate           MessageType = "Private"
	TypeFile              MessageType = "File"
	TypeTyping            MessageType = "Typing"
	TypeUsers             MessageType = "Users"
	TypeUserList          MessageType = "UserList"
	TypeChannels          MessageType = "Channels"
	TypeChannelList       MessageType = "ChannelList"
	TypeWall              MessageType = "Wall"
	TypeWallop            MessageType = "Wallop"
	TypeWalladmin         MessageType = "Walladmin"
	TypeProblem           MessageType = "Problem"
)

// ProblemCode enumerates the error classes a Problem frame may carry.
type ProblemCode string

const (
	NameInUse         ProblemCode = "NameInUse"
	NameInvalid       ProblemCode = "NameInvalid"
	InvalidAuth       ProblemCode = "InvalidAuth"
	InvalidArgument   ProblemCode = "InvalidArgument"
	NotAvailable      ProblemCode = "NotAvailable"
	PermissionDenied  ProblemCode = "PermissionDenied"
	AlreadyMember     ProblemCode = "AlreadyMember"
	NotMember         ProblemCode = "NotMember"
	ChannelNameBad    ProblemCode = "ChannelNameBad"
	ChannelInvalid    ProblemCode = "ChannelInvalid"
	KickedFromServer  ProblemCode = "KickedFromServer"
)

// UserListEntry is one (id, name) pair carried in a UserList frame.
type UserListEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChannelListEntry is one (id, name, topic, member_count, options) tuple
// carried in a ChannelList frame.
type ChannelListEntry struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Topic   string `json:"topic"`
	Members uint64 `json:"member_count"`
	Options uint64 `json:"options"`
}

// Envelope is the JSON frame exchanged over the wire:
// { "id": u64, "type": <tag>, "source": uuid, "target": uuid, "message": string }
//
// The tag-specific payload fields below are carried alongside Message/Source/
// Target rather than as a Rust-style sum type; unused fields are omitted from
// the wire via `omitempty`, matching internal/protocol/message.go's flat
// tagged-struct style.
type Envelope struct {
	ID      uint64      `json:"id"`
	Type    MessageType `json:"type"`
	Source  string      `json:"source"`
	Target  string      `json:"target"`
	Message string      `json:"message"`

	// AuthAgent (Username/Password); Username doubles as AuthGuest's
	// optional requested name
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Ping/Pong
	Timestamp int64 `json:"timestamp,omitempty"`

	// Join/Part/Kick source IP (server → client echoes only)
	IP string `json:"ip,omitempty"`

	// SetChannelModes
	Modes uint64 `json:"modes,omitempty"`

	// ChannelModes (server → client)
	ModeStrings []string `json:"mode_strings,omitempty"`

	// Kline
	ExpiresSeconds uint64 `json:"expires_seconds,omitempty"`

	// UserList / Channels
	Users    []UserListEntry    `json:"users,omitempty"`
	Channels []ChannelListEntry `json:"channels,omitempty"`

	// Problem
	Problem ProblemCode `json:"problem,omitempty"`
}

// Encode marshals the envelope to a single newline-terminated JSON text frame.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses one JSON text frame into an envelope.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}
