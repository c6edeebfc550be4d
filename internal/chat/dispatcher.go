package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"whisper/internal/models"
	"whisper/internal/repository"
	"whisper/internal/types"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Receipt is the outcome of a successful Send. Both deliveries are successes.
type Receipt struct {
	Message  *models.Message
	Delivery types.Delivery
}

// Dispatcher validates, persists and routes single messages. The realtime
// channel and the REST send route share one instance.
type Dispatcher struct {
	users        repository.UserRepository
	store        repository.MessageStore
	presence     Presence
	storeTimeout time.Duration
	log          *zap.Logger
}

func NewDispatcher(users repository.UserRepository, store repository.MessageStore, presence Presence, storeTimeout time.Duration, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		users:        users,
		store:        store,
		presence:     presence,
		storeTimeout: storeTimeout,
		log:          log.Named("dispatcher"),
	}
}

func (d *Dispatcher) Send(ctx context.Context, in models.NewMessage) (*Receipt, error) {
	in.Content = strings.TrimSpace(in.Content)
	in.Attachments = lo.Compact(lo.Map(in.Attachments, func(a string, _ int) string {
		return strings.TrimSpace(a)
	}))
	if err := checkMessage(in); err != nil {
		return nil, err
	}

	if _, err := d.users.GetUserByID(ctx, in.ReceiverID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("%w: resolve recipient: %v", ErrStore, err)
	}

	// Past this point the sender may disconnect without aborting the write.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.storeTimeout)
	defer cancel()

	msg, err := d.store.CreateMessage(persistCtx, in)
	if err != nil {
		d.log.Error("persist failed",
			zap.Stringer("sender", in.SenderID),
			zap.Stringer("receiver", in.ReceiverID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	return &Receipt{Message: msg, Delivery: d.push(persistCtx, msg)}, nil
}

// checkMessage applies the same limits to every path that creates messages.
// in must already be trimmed.
func checkMessage(in models.NewMessage) error {
	if in.Content == "" && len(in.Attachments) == 0 {
		return fmt.Errorf("%w: needs content or at least one attachment", ErrValidation)
	}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrValidation, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (d *Dispatcher) push(ctx context.Context, msg *models.Message) types.Delivery {
	h, ok := d.presence.Lookup(msg.ReceiverID)
	if !ok {
		return types.DeliveryUnreachable
	}

	payload := types.DeliverPayload{Message: msg}
	if !msg.IsAnonymous {
		if sender, err := d.users.GetUserByID(ctx, msg.SenderID); err == nil {
			payload.Sender = lo.ToPtr(types.NewUserSummary(sender))
		} else {
			d.log.Warn("sender lookup failed, delivering without sender", zap.Stringer("sender", msg.SenderID), zap.Error(err))
		}
	}

	if err := h.Deliver(types.Event{Type: types.EventDeliver, Data: payload}); err != nil {
		d.log.Debug("push failed, message stays in history",
			zap.Stringer("message", msg.ID),
			zap.Stringer("receiver", msg.ReceiverID),
			zap.Error(err))
		return types.DeliveryUnreachable
	}
	return types.DeliveryPushed
}

// History returns the conversation between a and b, oldest first.
func (d *Dispatcher) History(ctx context.Context, a, b uuid.UUID) ([]*models.Message, error) {
	msgs, err := d.store.ListHistory(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return msgs, nil
}
