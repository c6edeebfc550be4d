package chat

import (
	"sync"

	"whisper/internal/types"

	"go.uber.org/zap"
)

// Hub owns the set of admitted connections and is the only writer of the
// presence registry. Every admission or departure is followed by a full
// presenceSet broadcast to all admitted connections, orphans included.
type Hub struct {
	registry *Registry
	clients  map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once

	log *zap.Logger
}

func NewHub(registry *Registry, log *zap.Logger) *Hub {
	log = log.Named("hub")
	log.Debug("initializing hub")
	return &Hub{
		registry:   registry,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		log:        log,
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Register admits c. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Stop closes every admitted connection and waits for the loop to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
	<-h.done
}

func (h *Hub) Run() {
	defer close(h.done)
	h.log.Info("hub loop started")

	for {
		select {
		case <-h.quit:
			h.log.Info("shutting down, closing connections", zap.Int("clients", len(h.clients)))
			for c := range h.clients {
				h.registry.Unregister(c.userID, c)
				c.close()
			}
			clear(h.clients)
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			if prev := h.registry.Register(c.userID, c); prev != nil && prev != Handle(c) {
				// Last writer wins. The previous connection stays open but no
				// longer receives pushes.
				h.log.Info("session replaced, previous connection orphaned", zap.Stringer("user_id", c.userID))
			}
			h.log.Debug("client registered", zap.Stringer("user_id", c.userID), zap.Int("clients", len(h.clients)))
			h.broadcastPresence()

		case c := <-h.unregister:
			if _, ok := h.clients[c]; !ok {
				continue
			}
			delete(h.clients, c)
			c.close()
			if !h.registry.Unregister(c.userID, c) {
				h.log.Debug("orphaned connection left, registry untouched", zap.Stringer("user_id", c.userID))
			}
			h.log.Debug("client unregistered", zap.Stringer("user_id", c.userID), zap.Int("clients", len(h.clients)))
			h.broadcastPresence()
		}
	}
}

func (h *Hub) broadcastPresence() {
	ev := types.Event{
		Type: types.EventPresenceSet,
		Data: types.PresenceSetPayload{UserIDs: h.registry.Snapshot()},
	}
	for c := range h.clients {
		if err := c.Deliver(ev); err != nil {
			h.log.Warn("presence update not queued", zap.Stringer("user_id", c.userID), zap.Error(err))
		}
	}
}
