package api

import (
	"net/http"
	"time"

	"whisper/internal/auth"
	"whisper/internal/chat"
	"whisper/internal/middleware"
	"whisper/internal/repository"
	"whisper/internal/uploads"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Deps struct {
	Users         repository.UserRepository
	RefreshTokens repository.RefreshTokenRepository
	Tokens        *auth.Tokens
	RefreshTTL    time.Duration
	StoreTimeout  time.Duration

	Registry   *chat.Registry
	Dispatcher *chat.Dispatcher
	Relay      *chat.Relay
	Gateway    http.Handler

	Uploads *uploads.Store
	// UploadLimit caps the whole multipart body.
	UploadLimit int64
	Checks      map[string]Check

	Log *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Log))

	authH := NewAuthHandler(d.Users, d.RefreshTokens, d.Tokens, d.RefreshTTL, d.StoreTimeout, d.Log)
	msgH := NewMessageHandler(d.Users, d.Dispatcher, d.Relay, d.Registry, d.StoreTimeout, d.Log)
	requireUser := middleware.Authenticate(d.Tokens, d.Users, d.Log)

	r.GET("/healthz", HealthHandler(d.Checks))
	r.GET("/ws", gin.WrapH(d.Gateway))
	if d.Uploads != nil {
		r.Static("/uploads", d.Uploads.Dir())
	}

	authGroup := r.Group("/api/auth")
	authGroup.POST("/signup", authH.Signup)
	authGroup.POST("/login", authH.Login)
	authGroup.POST("/logout", authH.Logout)
	authGroup.POST("/refresh", authH.Refresh)
	authGroup.GET("/me", requireUser, authH.Me)
	authGroup.PUT("/profile", requireUser, authH.UpdateProfile)

	msgGroup := r.Group("/api/messages", requireUser)
	msgGroup.GET("/users", msgH.ListUsers)
	msgGroup.GET("/:id", msgH.History)
	msgGroup.POST("/send/:id", msgH.Send)
	msgGroup.POST("/read/:messageId", msgH.MarkRead)
	if d.Uploads != nil {
		msgGroup.POST("/upload", UploadHandler(d.Uploads, d.UploadLimit, d.Log))
		msgGroup.POST("/upload-base64", Base64UploadHandler(d.Uploads, d.UploadLimit, d.Log))
	}

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()))
	}
}
