package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"whisper/internal/chat"
	"whisper/internal/middleware"
	"whisper/internal/models"
	"whisper/internal/repository"
	"whisper/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MessageHandler is the stateless path. Sends go through the same
// Dispatcher as the websocket, so a connected recipient still gets a push.
type MessageHandler struct {
	users      repository.UserRepository
	dispatcher *chat.Dispatcher
	relay      *chat.Relay
	registry   *chat.Registry
	timeout    time.Duration
	log        *zap.Logger
}

func NewMessageHandler(users repository.UserRepository, dispatcher *chat.Dispatcher, relay *chat.Relay, registry *chat.Registry, timeout time.Duration, log *zap.Logger) *MessageHandler {
	return &MessageHandler{
		users:      users,
		dispatcher: dispatcher,
		relay:      relay,
		registry:   registry,
		timeout:    timeout,
		log:        log.Named("messages"),
	}
}

func (h *MessageHandler) ListUsers(c *gin.Context) {
	me := middleware.CurrentUser(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	users, err := h.users.ListUsers(ctx, me.ID)
	if err != nil {
		h.log.Error("list users failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	c.JSON(http.StatusOK, types.NewUserSummaries(users, h.registry.Online()))
}

func (h *MessageHandler) History(c *gin.Context) {
	other, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	me := middleware.CurrentUser(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	msgs, err := h.dispatcher.History(ctx, me.ID, other)
	if err != nil {
		h.log.Error("history failed", zap.Stringer("user_id", me.ID), zap.Stringer("other", other), zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *MessageHandler) Send(c *gin.Context) {
	receiver, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var payload types.SendMessageRequest
	if !bind(c, &payload) {
		return
	}
	me := middleware.CurrentUser(c)

	receipt, err := h.dispatcher.Send(c.Request.Context(), models.NewMessage{
		SenderID:    me.ID,
		ReceiverID:  receiver,
		Content:     payload.Content,
		Attachments: payload.Attachments,
		IsAnonymous: payload.Anonymous(),
	})
	switch {
	case errors.Is(err, chat.ErrValidation):
		fail(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, chat.ErrRecipientNotFound):
		fail(c, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.log.Error("send failed", zap.Stringer("sender", me.ID), zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to store message")
		return
	}

	c.JSON(http.StatusCreated, types.SendMessageResponse{
		ClientRef: payload.ClientRef,
		Delivery:  receipt.Delivery,
		Message:   receipt.Message,
	})
}

// MarkRead answers 204 when there is nothing the caller may mark.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	id, ok := uuidParam(c, "messageId")
	if !ok {
		return
	}
	me := middleware.CurrentUser(c)

	msg, err := h.relay.MarkRead(c.Request.Context(), me.ID, id)
	if err != nil {
		h.log.Error("mark read failed", zap.Stringer("message", id), zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	if msg == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, msg)
}
