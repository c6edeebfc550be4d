package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"whisper/internal/auth"
	"whisper/internal/models"
	"whisper/internal/repository"
	"whisper/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userKey = "user"

type TokenValidator interface {
	ValidateToken(token string) (*auth.CustomClaims, error)
}

// Authenticate resolves the access token to a user and stores it on the
// gin context. Requests without a valid token stop with 401.
func Authenticate(tokens TokenValidator, users repository.UserRepository, log *zap.Logger) gin.HandlerFunc {
	log = log.Named("auth")
	return func(c *gin.Context) {
		raw := auth.TokenFromRequest(c.Request)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{Error: "authentication required", Reason: "missing"})
			return
		}

		claims, err := tokens.ValidateToken(raw)
		if err != nil {
			log.Debug("invalid token", zap.String("ip", c.ClientIP()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{Error: "session expired or invalid", Reason: "invalid"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		user, err := users.GetUserByID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				log.Info("token valid but user no longer exists", zap.Stringer("user_id", claims.UserID))
				c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{Error: "user account not found"})
				return
			}
			log.Error("user lookup failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, types.ErrorResponse{Error: "internal server error"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// CurrentUser returns the user set by Authenticate.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}
