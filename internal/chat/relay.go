package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whisper/internal/models"
	"whisper/internal/repository"
	"whisper/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Relay forwards ephemeral signals. Nothing it sends is stored or retried.
type Relay struct {
	store        repository.MessageStore
	presence     Presence
	storeTimeout time.Duration
	log          *zap.Logger
}

func NewRelay(store repository.MessageStore, presence Presence, storeTimeout time.Duration, log *zap.Logger) *Relay {
	return &Relay{
		store:        store,
		presence:     presence,
		storeTimeout: storeTimeout,
		log:          log.Named("relay"),
	}
}

// MarkRead flips the message to read on behalf of its receiver and tells the
// sender if they are online. It returns nil, nil when the message is unknown
// or reader is not its receiver. An already read message is returned as is.
func (r *Relay) MarkRead(ctx context.Context, readerID, messageID uuid.UUID) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.storeTimeout)
	defer cancel()

	msg, err := r.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if msg.ReceiverID != readerID {
		r.log.Debug("ignoring markRead from non-receiver", zap.Stringer("message", messageID), zap.Stringer("reader", readerID))
		return nil, nil
	}
	if msg.Read {
		return msg, nil
	}

	msg, changed, err := r.store.MarkRead(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if changed && msg.ReadAt != nil {
		r.signal(msg.SenderID, types.Event{
			Type: types.EventReadUpdate,
			Data: types.ReadUpdatePayload{MessageID: msg.ID, ReadAt: *msg.ReadAt},
		})
	}
	return msg, nil
}

// Typing relays a typing indicator to an online recipient and drops it otherwise.
func (r *Relay) Typing(from, to uuid.UUID, isTyping bool) {
	r.signal(to, types.Event{
		Type: types.EventTypingUpdate,
		Data: types.TypingUpdatePayload{FromUserID: from, IsTyping: isTyping},
	})
}

func (r *Relay) signal(to uuid.UUID, ev types.Event) {
	h, ok := r.presence.Lookup(to)
	if !ok {
		return
	}
	if err := h.Deliver(ev); err != nil {
		r.log.Debug("signal dropped", zap.String("type", string(ev.Type)), zap.Stringer("to", to), zap.Error(err))
	}
}
