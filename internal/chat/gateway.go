package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"whisper/internal/auth"
	"whisper/internal/middleware"
	"whisper/internal/types"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type TokenVerifier interface {
	ValidateToken(token string) (*auth.CustomClaims, error)
}

// Gateway authenticates websocket upgrades. A request is refused with 401
// before the upgrade when its token is missing or does not verify.
type Gateway struct {
	tokens     TokenVerifier
	hub        *Hub
	dispatcher *Dispatcher
	relay      *Relay
	opts       ClientOptions
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

func NewGateway(tokens TokenVerifier, hub *Hub, dispatcher *Dispatcher, relay *Relay, opts ClientOptions, log *zap.Logger) *Gateway {
	return &Gateway{
		tokens:     tokens,
		hub:        hub,
		dispatcher: dispatcher,
		relay:      relay,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.Named("gateway"),
	}
}

// Authenticate resolves the identity carried by token.
func (g *Gateway) Authenticate(token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, &AuthenticationError{Reason: ReasonMissing}
	}
	claims, err := g.tokens.ValidateToken(token)
	if err != nil {
		return uuid.Nil, &AuthenticationError{Reason: ReasonInvalid, Err: err}
	}
	return claims.UserID, nil
}

// Admit authenticates r and upgrades it. The returned client is not yet
// registered; the caller hands it to the hub.
func (g *Gateway) Admit(w http.ResponseWriter, r *http.Request) (*Client, error) {
	userID, err := g.Authenticate(auth.TokenFromRequest(r))
	if err != nil {
		return nil, err
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	log := g.log.With(zap.Stringer("user_id", userID))
	return &Client{
		conn:       conn,
		userID:     userID,
		hub:        g.hub,
		dispatcher: g.dispatcher,
		relay:      g.relay,
		limiter:    middleware.NewRateLimiter(g.opts.RateBurst, g.opts.RateRefill),
		send:       make(chan []byte, g.opts.SendBuffer),
		done:       make(chan struct{}),
		maxFrame:   g.opts.MaxFrameBytes,
		log:        log,
	}, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := g.Admit(w, r)
	if err != nil {
		var authErr *AuthenticationError
		if errors.As(err, &authErr) {
			g.log.Info("connection refused", zap.String("reason", authErr.Reason), zap.String("remote", auth.ClientIP(r)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: "unauthorized", Reason: authErr.Reason})
			return
		}
		// The upgrader has already answered the request.
		g.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	if !g.hub.Register(c) {
		c.conn.Close()
		return
	}
	c.log.Info("connection admitted")

	go c.WritePump()
	go c.ReadPump()
}
