package chat

import (
	"errors"
	"fmt"

	"whisper/internal/types"
)

var (
	ErrValidation        = errors.New("invalid message")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrStore             = errors.New("message store failure")

	ErrConnectionClosed = errors.New("connection closed")
	ErrSlowConsumer     = errors.New("send buffer full")
)

const (
	ReasonMissing = "missing"
	ReasonInvalid = "invalid"
)

// AuthenticationError refuses a connection before it is admitted.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication %s: %v", e.Reason, e.Err)
	}
	return "authentication " + e.Reason
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// ErrorCode maps a dispatch or relay failure to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return types.CodeValidation
	case errors.Is(err, ErrRecipientNotFound):
		return types.CodeRecipientNotFound
	case errors.Is(err, ErrStore):
		return types.CodeStore
	default:
		return types.CodeInternal
	}
}
