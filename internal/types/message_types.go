package types

import (
	"encoding/json"
	"time"

	"whisper/internal/models"

	"github.com/google/uuid"
)

type EventType string

// Client -> server.
const (
	EventSend     EventType = "send"
	EventMarkRead EventType = "markRead"
	EventTyping   EventType = "typing"
)

// Server -> client.
const (
	EventPresenceSet  EventType = "presenceSet"
	EventSendAck      EventType = "sendAck"
	EventDeliver      EventType = "deliver"
	EventReadUpdate   EventType = "readUpdate"
	EventMarkReadAck  EventType = "markReadAck"
	EventTypingUpdate EventType = "typingUpdate"
	EventError        EventType = "error"
)

type Delivery string

const (
	DeliveryPushed      Delivery = "pushed"
	DeliveryUnreachable Delivery = "unreachable"
)

// Error codes carried by error frames and failed acks.
const (
	CodeBadRequest        = "bad_request"
	CodeUnknownEvent      = "unknown_event"
	CodeValidation        = "validation_error"
	CodeRecipientNotFound = "recipient_not_found"
	CodeStore             = "store_error"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal_error"
)

// Envelope is one inbound websocket frame.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is one outbound websocket frame.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type SendPayload struct {
	ReceiverID  uuid.UUID `json:"receiverId"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments"`
	// IsAnonymous is a pointer so an absent field defaults to true.
	IsAnonymous *bool  `json:"isAnonymous"`
	ClientRef   string `json:"clientRef,omitempty"`
}

func (p SendPayload) Anonymous() bool {
	return p.IsAnonymous == nil || *p.IsAnonymous
}

type MarkReadPayload struct {
	MessageID uuid.UUID `json:"messageId"`
}

type TypingPayload struct {
	ToUserID uuid.UUID `json:"toUserId"`
	IsTyping bool      `json:"isTyping"`
}

type PresenceSetPayload struct {
	UserIDs []uuid.UUID `json:"userIds"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SendAckPayload struct {
	ClientRef string          `json:"clientRef,omitempty"`
	Delivery  Delivery        `json:"delivery,omitempty"`
	Message   *models.Message `json:"message,omitempty"`
	Error     *ErrorPayload   `json:"error,omitempty"`
}

// DeliverPayload omits Sender for anonymous messages.
type DeliverPayload struct {
	Message *models.Message `json:"message"`
	Sender  *UserSummary    `json:"sender,omitempty"`
}

type ReadUpdatePayload struct {
	MessageID uuid.UUID `json:"messageId"`
	ReadAt    time.Time `json:"readAt"`
}

type MarkReadAckPayload struct {
	MessageID uuid.UUID `json:"messageId"`
}

type TypingUpdatePayload struct {
	FromUserID uuid.UUID `json:"fromUserId"`
	IsTyping   bool      `json:"isTyping"`
}

func NewError(code, message string) Event {
	return Event{Type: EventError, Data: ErrorPayload{Code: code, Message: message}}
}
