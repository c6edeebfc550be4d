package models

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID          uuid.UUID  `json:"id"`
	SenderID    uuid.UUID  `json:"senderId"`
	ReceiverID  uuid.UUID  `json:"receiverId"`
	Content     string     `json:"content,omitempty"`
	Attachments []string   `json:"attachments"`
	IsAnonymous bool       `json:"isAnonymous"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"readAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// NewMessage is what a caller hands to the store. Identity and timestamps
// are never part of it: the store assigns them. Attachments must be http(s)
// URLs.
type NewMessage struct {
	SenderID    uuid.UUID
	ReceiverID  uuid.UUID
	Content     string   `validate:"max=4000"`
	Attachments []string `validate:"max=5,dive,http_url"`
	IsAnonymous bool
}
