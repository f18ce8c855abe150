package realtime

import (
	"encoding/json"
	"time"
)

// Event types exchanged over a connection
const (
	EventTypeMessage    = "message"
	EventTypeTyping     = "typing"
	EventTypeStopTyping = "stop_typing"
	EventTypeJoin       = "join"
	EventTypeError      = "error"
	EventTypePing       = "ping"
	EventTypePong       = "pong"
)

// InboundEvent frame received from an authenticated connection
type InboundEvent struct {
	Type     string          `json:"type"`
	TargetID string          `json:"targetId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// OutboundEvent frame pushed to live connections
type OutboundEvent struct {
	Type        string      `json:"type"`
	Payload     interface{} `json:"payload,omitempty"`
	SenderID    string      `json:"senderId,omitempty"`
	PersistedID string      `json:"persistedId,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// ErrorPayload structured rejection pushed to the offending connection
type ErrorPayload struct {
	Code   string `json:"code"` // AUTH_ERROR, VALIDATION_ERROR, PERSISTENCE_ERROR
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// MessagePayload payload of an inbound "message" event
type MessagePayload struct {
	Body string `json:"body" validate:"required,max=2000"`
}

// ChatPayload payload of an outbound "message" event
type ChatPayload struct {
	ConversationID int64  `json:"conversation_id"`
	Body           string `json:"body"`
	SenderNickname string `json:"sender_nickname"`
}

// TypingPayload payload of outbound typing events
type TypingPayload struct {
	ConversationID int64  `json:"conversation_id"`
	UserID         int64  `json:"user_id"`
	Nickname       string `json:"nickname"`
}
