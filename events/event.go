// Package events holds the normalized event values every live connection
// is translated into before it reaches the monitor.
package events

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindNew     Kind = "new"
	KindEdited  Kind = "edited"
	KindDeleted Kind = "deleted"
)

type Message struct {
	ConversationID int64     `json:"conversation_id"`
	MessageID      int64     `json:"message_id"`
	SenderID       int64     `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	Text           string    `json:"text,omitempty"`
	Media          Media     `json:"media"`
	AtRisk         bool      `json:"at_risk,omitempty"`
	ReplyTo        *Message  `json:"reply_to,omitempty"`
	SentAt         time.Time `json:"sent_at"`
}

type Event struct {
	Kind           Kind     `json:"kind"`
	ConnectionID   string   `json:"connection_id"`
	ConversationID int64    `json:"conversation_id"`
	Message        *Message `json:"message,omitempty"`
	DeletedIDs     []int64  `json:"deleted_ids,omitempty"`
}

func (e Event) Validate() error {
	if e.ConnectionID == "" {
		return fmt.Errorf("connection_id is required")
	}
	if e.ConversationID == 0 {
		return fmt.Errorf("conversation_id is required")
	}
	switch e.Kind {
	case KindNew, KindEdited:
		if e.Message == nil {
			return fmt.Errorf("%s event requires a message", e.Kind)
		}
		if e.Message.MessageID == 0 {
			return fmt.Errorf("message_id is required")
		}
		if e.Message.ConversationID != e.ConversationID {
			return fmt.Errorf("message conversation_id %d does not match event %d", e.Message.ConversationID, e.ConversationID)
		}
	case KindDeleted:
		if len(e.DeletedIDs) == 0 {
			return fmt.Errorf("deleted event requires message ids")
		}
	default:
		return fmt.Errorf("event kind is invalid: %q", e.Kind)
	}
	return nil
}

// ContentText is the text or caption, or the media label when empty.
func (m Message) ContentText() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Media.Kind.Label()
}
