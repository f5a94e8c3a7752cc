// Package protocol defines the wire messages exchanged over the signal
// websocket. Both server and client peer library depend on it; nothing in
// here carries behavior.
package protocol

import (
	"encoding/json"
	"time"
)

const (
	TypeWelcome  = "welcome"
	TypeJoin     = "join"
	TypeSnapshot = "snapshot"
	TypeLeave    = "leave"
	TypeLeft     = "left"

	TypeMemberJoined = "member-joined"
	TypeMemberLeft   = "member-left"

	TypeSignalOffer     = "signal-offer"
	TypeSignalAnswer    = "signal-answer"
	TypeSignalCandidate = "signal-candidate"

	TypeChat  = "chat"
	TypePing  = "ping"
	TypePong  = "pong"
	TypeError = "error"
)

// Envelope is decoded first to dispatch on Type.
type Envelope struct {
	Type string `json:"type"`
}

// Welcome tells a fresh connection its server-assigned connection id.
// Clients need it for initiator election, so it is sent before anything else.
type Welcome struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

type Join struct {
	Type             string `json:"type"`
	VenueID          string `json:"venueId"`
	DisplayName      string `json:"displayName"`
	WantsBroadcaster bool   `json:"wantsBroadcaster"`
	Category         string `json:"category,omitempty"`
}

type Member struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
	Role         string `json:"role"`
}

type Snapshot struct {
	Type           string        `json:"type"`
	VenueID        string        `json:"venueId"`
	Role           string        `json:"role"`
	Broadcaster    *Member       `json:"broadcaster"`
	Participants   []Member      `json:"participants"`
	RecentMessages []ChatMessage `json:"recentMessages"`
}

type MemberJoined struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
	Role         string `json:"role"`
}

type MemberLeft struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
}

// Signal carries an opaque negotiation payload. Client→server it names a
// target; server→client it names the sender. The payload is relayed verbatim.
type Signal struct {
	Type               string          `json:"type"`
	TargetConnectionID string          `json:"targetConnectionId,omitempty"`
	SenderConnectionID string          `json:"senderConnectionId,omitempty"`
	Payload            json.RawMessage `json:"payload"`
}

type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderConnectionId"`
	SenderName string    `json:"senderName"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sentAt"`
}

type Chat struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

// ChatSend is the client→server form; the server stamps id/sender/time.
type ChatSend struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// IsSignalType reports whether t is one of the relayed negotiation types.
func IsSignalType(t string) bool {
	return t == TypeSignalOffer || t == TypeSignalAnswer || t == TypeSignalCandidate
}
