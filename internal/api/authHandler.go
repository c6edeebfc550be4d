package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"whisper/internal/auth"
	"whisper/internal/middleware"
	"whisper/internal/models"
	"whisper/internal/repository"
	"whisper/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// The refresh cookie is scoped to /api/auth so both refresh and logout see it.
const refreshPath = "/api/auth"

type AuthHandler struct {
	users      repository.UserRepository
	tokens     repository.RefreshTokenRepository
	issuer     *auth.Tokens
	refreshTTL time.Duration
	timeout    time.Duration
	log        *zap.Logger
}

func NewAuthHandler(users repository.UserRepository, tokens repository.RefreshTokenRepository, issuer *auth.Tokens, refreshTTL, timeout time.Duration, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:      users,
		tokens:     tokens,
		issuer:     issuer,
		refreshTTL: refreshTTL,
		timeout:    timeout,
		log:        log.Named("auth"),
	}
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var payload types.SignupRequest
	if !bind(c, &payload) {
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	hashed, err := auth.HashPassword(payload.Password)
	if err != nil {
		h.log.Error("hashing failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	user := &models.User{
		ID:            uuid.New(),
		Name:          payload.Name,
		Email:         payload.Email,
		Password_Hash: hashed,
		ProfilePic:    models.DefaultProfilePic,
	}
	if err := h.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserAlreadyExists) {
			fail(c, http.StatusConflict, "email already exists")
			return
		}
		h.log.Error("create user failed", zap.String("email", payload.Email), zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to create user")
		return
	}

	token, ok := h.startSession(ctx, c, user.ID)
	if !ok {
		return
	}

	h.log.Info("user signed up", zap.Stringer("user_id", user.ID))
	c.JSON(http.StatusCreated, types.AuthResponse{Token: token, User: types.NewUserDTO(user)})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var payload types.LoginRequest
	if !bind(c, &payload) {
		return
	}
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	user, err := h.users.GetUserByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			fail(c, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.log.Error("login lookup failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	if !auth.VerifyPassword(payload.Password, user.Password_Hash) {
		h.log.Info("invalid password", zap.Stringer("user_id", user.ID))
		fail(c, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, ok := h.startSession(ctx, c, user.ID)
	if !ok {
		return
	}

	h.log.Info("user logged in", zap.Stringer("user_id", user.ID))
	c.JSON(http.StatusOK, types.AuthResponse{Token: token, User: types.NewUserDTO(user)})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if raw, err := c.Cookie(auth.RefreshCookie); err == nil && raw != "" {
		if token, err := h.tokens.GetTokenByHash(ctx, auth.HashRefreshToken(raw)); err == nil {
			_ = h.tokens.RevokeToken(ctx, token.ID)
		}
	}

	h.clearCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	ip := auth.ClientIP(c.Request)
	userAgent := c.Request.UserAgent()

	raw, err := c.Cookie(auth.RefreshCookie)
	if err != nil || raw == "" {
		fail(c, http.StatusUnauthorized, "refresh token required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	hashed := auth.HashRefreshToken(raw)
	stored, err := h.tokens.GetTokenByHash(ctx, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			h.log.Warn("unknown or reused refresh token", zap.String("hash_prefix", hashed[:8]), zap.String("ip", ip))
			fail(c, http.StatusUnauthorized, "invalid session")
			return
		}
		h.log.Error("refresh lookup failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	if time.Now().After(stored.ExpiresAt) {
		fail(c, http.StatusUnauthorized, "session expired")
		return
	}
	if stored.UserAgent != userAgent || !stored.ClientIP.Equal(net.ParseIP(ip)) {
		h.log.Warn("refresh context mismatch",
			zap.Stringer("user_id", stored.UserID),
			zap.Stringer("expected_ip", stored.ClientIP),
			zap.String("ip", ip))
		// A token replayed from another device or network ends every session.
		if err := h.tokens.RevokeAllUserTokens(ctx, stored.UserID); err != nil {
			h.log.Error("revoke all sessions failed", zap.Stringer("user_id", stored.UserID), zap.Error(err))
		}
		h.clearCookies(c)
		fail(c, http.StatusUnauthorized, "security context mismatch")
		return
	}

	if err := h.tokens.RevokeToken(ctx, stored.ID); err != nil {
		h.log.Error("rotate failed", zap.Stringer("token_id", stored.ID), zap.Error(err))
		fail(c, http.StatusInternalServerError, "could not refresh session")
		return
	}

	token, ok := h.startSession(ctx, c, stored.UserID)
	if !ok {
		return
	}
	h.log.Debug("session rotated", zap.Stringer("user_id", stored.UserID))
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, types.NewUserDTO(middleware.CurrentUser(c)))
}

func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var payload types.ProfileRequest
	if !bind(c, &payload) {
		return
	}
	me := middleware.CurrentUser(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	updated, err := h.users.UpdateProfile(ctx, me.ID, models.ProfileUpdate{
		Name:       strings.TrimSpace(payload.Name),
		Email:      strings.ToLower(strings.TrimSpace(payload.Email)),
		ProfilePic: payload.ProfilePic,
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserAlreadyExists) {
			fail(c, http.StatusConflict, "email already exists")
			return
		}
		h.log.Error("profile update failed", zap.Stringer("user_id", me.ID), zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	c.JSON(http.StatusOK, types.NewUserDTO(updated))
}

// startSession issues an access token and a fresh refresh token and sets both
// cookies. On failure it has already written the response.
func (h *AuthHandler) startSession(ctx context.Context, c *gin.Context, userID uuid.UUID) (string, bool) {
	access, err := h.issuer.GenerateToken(userID)
	if err != nil {
		h.log.Error("access token generation failed", zap.Stringer("user_id", userID), zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to create session")
		return "", false
	}

	raw, model, err := auth.CreateRefreshToken(userID, c.Request.UserAgent(), auth.ClientIP(c.Request), h.refreshTTL)
	if err != nil {
		h.log.Error("refresh token generation failed", zap.Stringer("user_id", userID), zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to create session")
		return "", false
	}
	if err := h.tokens.SaveRefreshToken(ctx, model); err != nil {
		h.log.Error("refresh token save failed", zap.Stringer("user_id", userID), zap.Error(err))
		fail(c, http.StatusInternalServerError, "failed to initialize session")
		return "", false
	}

	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(auth.AccessCookie, access, int(h.issuer.TTL().Seconds()), "/", "", true, true)
	c.SetCookie(auth.RefreshCookie, raw, int(h.refreshTTL.Seconds()), refreshPath, "", true, true)
	return access, true
}

func (h *AuthHandler) clearCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(auth.AccessCookie, "", -1, "/", "", true, true)
	c.SetCookie(auth.RefreshCookie, "", -1, refreshPath, "", true, true)
}
