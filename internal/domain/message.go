package domain

import (
	"time"

	"github.com/google/uuid"
)

const MaxChatBodyLen = 512

// ChatMessage is one entry of a venue's recent-message buffer.
// Sender fields are copied at send time; the sender may be gone by the
// time a later joiner reads the buffer.
type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderConnectionId"`
	SenderName string    `json:"senderName"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sentAt"`
}

func NewChatMessage(senderID, senderName, body string) ChatMessage {
	if len(body) > MaxChatBodyLen {
		body = body[:MaxChatBodyLen]
	}
	return ChatMessage{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		SenderName: senderName,
		Body:       body,
		SentAt:     time.Now().UTC(),
	}
}
