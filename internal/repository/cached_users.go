package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"whisper/internal/cache"
	"whisper/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CachedUsers is a read-through cache over GetUserByID. The dispatcher
// resolves the recipient on every send, so this is the hot lookup.
// Cache failures are logged and the call falls through to the store.
type CachedUsers struct {
	UserRepository
	cache cache.Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewCachedUsers(next UserRepository, c cache.Cache, ttl time.Duration, log *zap.Logger) *CachedUsers {
	return &CachedUsers{
		UserRepository: next,
		cache:          c,
		ttl:            ttl,
		log:            log.Named("user-cache"),
	}
}

var _ UserRepository = (*CachedUsers)(nil)

type cachedUser struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	ProfilePic string    `json:"profilePic"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (c *CachedUsers) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	key := userCacheKey(id)

	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var cu cachedUser
		if jerr := json.Unmarshal([]byte(raw), &cu); jerr == nil {
			return &models.User{
				ID:         cu.ID,
				Name:       cu.Name,
				Email:      cu.Email,
				ProfilePic: cu.ProfilePic,
				CreatedAt:  cu.CreatedAt,
				UpdatedAt:  cu.UpdatedAt,
			}, nil
		}
		c.log.Warn("dropping undecodable cache entry", zap.String("key", key))
	case errors.Is(err, cache.ErrMiss):
	default:
		c.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}

	u, err := c.UserRepository.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(cachedUser{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		ProfilePic: u.ProfilePic,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	})
	if err == nil {
		if err := c.cache.Set(ctx, key, string(data), c.ttl); err != nil {
			c.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return u, nil
}

func (c *CachedUsers) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.User, error) {
	u, err := c.UserRepository.UpdateProfile(ctx, id, update)
	if err != nil {
		return nil, err
	}
	if _, err := c.cache.Del(ctx, userCacheKey(id)); err != nil {
		c.log.Warn("cache invalidate failed", zap.Stringer("user_id", id), zap.Error(err))
	}
	return u, nil
}

func userCacheKey(id uuid.UUID) string {
	return "whisper:user:" + id.String()
}
