package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"whisper/internal/middleware"
	"whisper/internal/models"
	"whisper/internal/types"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 10 * time.Second
	warnInterval = 3 * time.Second
)

type ClientOptions struct {
	SendBuffer    int
	MaxFrameBytes int64
	RateBurst     int32
	RateRefill    time.Duration
}

// Client is one admitted websocket connection with an immutable identity.
// The send channel is never closed; done signals shutdown instead so that
// late deliveries fail with ErrConnectionClosed rather than panic.
type Client struct {
	conn   *websocket.Conn
	userID uuid.UUID

	hub        *Hub
	dispatcher *Dispatcher
	relay      *Relay
	limiter    *middleware.RateLimiter

	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	evictOnce   sync.Once
	maxFrame    int64
	lastWarning time.Time

	log *zap.Logger
}

func (c *Client) UserID() uuid.UUID {
	return c.userID
}

// Deliver queues ev without blocking. A full buffer evicts the client.
func (c *Client) Deliver(ev types.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.evict()
		return ErrSlowConsumer
	}
}

func (c *Client) evict() {
	c.evictOnce.Do(func() {
		c.log.Warn("buffer full, evicting slow consumer")
		go c.hub.Unregister(c)
	})
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) ReadPump() {
	// ctx covers work that may be abandoned on disconnect. Persistence
	// detaches from it inside the dispatcher.
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("unexpected close", zap.Error(err))
			}
			return
		}

		if !c.limiter.Allow() {
			if time.Since(c.lastWarning) > warnInterval {
				if c.Deliver(types.NewError(types.CodeRateLimited, "rate limit exceeded")) == nil {
					c.lastWarning = time.Now()
				}
			}
			continue
		}

		c.handle(ctx, data)
	}
}

func (c *Client) handle(ctx context.Context, data []byte) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.reply(types.NewError(types.CodeBadRequest, "malformed frame"))
		return
	}

	switch env.Type {
	case types.EventSend:
		c.handleSend(ctx, env.Data)
	case types.EventMarkRead:
		c.handleMarkRead(ctx, env.Data)
	case types.EventTyping:
		c.handleTyping(env.Data)
	default:
		c.reply(types.NewError(types.CodeUnknownEvent, "unknown event type "+string(env.Type)))
	}
}

func (c *Client) handleSend(ctx context.Context, raw json.RawMessage) {
	var p types.SendPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ReceiverID == uuid.Nil {
		c.reply(types.Event{Type: types.EventSendAck, Data: types.SendAckPayload{
			ClientRef: p.ClientRef,
			Error:     &types.ErrorPayload{Code: types.CodeBadRequest, Message: "send needs a valid receiverId"},
		}})
		return
	}

	receipt, err := c.dispatcher.Send(ctx, models.NewMessage{
		SenderID:    c.userID,
		ReceiverID:  p.ReceiverID,
		Content:     p.Content,
		Attachments: p.Attachments,
		IsAnonymous: p.Anonymous(),
	})
	if err != nil {
		c.reply(types.Event{Type: types.EventSendAck, Data: types.SendAckPayload{
			ClientRef: p.ClientRef,
			Error:     &types.ErrorPayload{Code: ErrorCode(err), Message: err.Error()},
		}})
		return
	}

	c.reply(types.Event{Type: types.EventSendAck, Data: types.SendAckPayload{
		ClientRef: p.ClientRef,
		Delivery:  receipt.Delivery,
		Message:   receipt.Message,
	}})
}

func (c *Client) handleMarkRead(ctx context.Context, raw json.RawMessage) {
	var p types.MarkReadPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.MessageID == uuid.Nil {
		c.reply(types.NewError(types.CodeBadRequest, "markRead needs a valid messageId"))
		return
	}

	msg, err := c.relay.MarkRead(ctx, c.userID, p.MessageID)
	if err != nil {
		c.reply(types.NewError(ErrorCode(err), err.Error()))
		return
	}
	if msg == nil {
		return
	}
	c.reply(types.Event{Type: types.EventMarkReadAck, Data: types.MarkReadAckPayload{MessageID: msg.ID}})
}

func (c *Client) handleTyping(raw json.RawMessage) {
	var p types.TypingPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ToUserID == uuid.Nil {
		return
	}
	c.relay.Typing(c.userID, p.ToUserID, p.IsTyping)
}

func (c *Client) reply(ev types.Event) {
	if err := c.Deliver(ev); err != nil {
		c.log.Debug("reply dropped", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
