package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net"
	"time"

	"whisper/internal/models"

	"github.com/google/uuid"
)

// CreateRefreshToken returns the raw opaque token handed to the client and the
// model to persist. Only the SHA-256 of the raw value is ever stored.
func CreateRefreshToken(userID uuid.UUID, userAgent, ip string, ttl time.Duration) (string, *models.RefreshToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, err
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)

	now := time.Now()
	return raw, &models.RefreshToken{
		ID:          uuid.New(),
		UserID:      userID,
		TokenHashed: HashRefreshToken(raw),
		UserAgent:   userAgent,
		ClientIP:    net.ParseIP(ip),
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}, nil
}

func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
