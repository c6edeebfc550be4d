package tasks

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const cleanupTimeout = 3 * time.Minute

// ExpiredTokenPurger is the slice of the refresh token store the cleaner needs.
type ExpiredTokenPurger interface {
	DeleteExpiredTokens(ctx context.Context) (int64, error)
}

// TokenCleaner purges expired and revoked refresh tokens on a cron schedule.
type TokenCleaner struct {
	repo     ExpiredTokenPurger
	schedule string
	cron     *cron.Cron
	log      *zap.Logger
}

func NewTokenCleaner(repo ExpiredTokenPurger, schedule string, log *zap.Logger) *TokenCleaner {
	return &TokenCleaner{
		repo:     repo,
		schedule: schedule,
		cron:     cron.New(),
		log:      log.Named("worker"),
	}
}

func (t *TokenCleaner) Start() error {
	if _, err := t.cron.AddFunc(t.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		_, _ = t.RunOnce(ctx)
	}); err != nil {
		return err
	}

	t.cron.Start()
	t.log.Info("token cleanup scheduled", zap.String("schedule", t.schedule))
	return nil
}

// Stop halts the scheduler and waits for a running purge to finish.
func (t *TokenCleaner) Stop() {
	<-t.cron.Stop().Done()
}

func (t *TokenCleaner) RunOnce(ctx context.Context) (int64, error) {
	n, err := t.repo.DeleteExpiredTokens(ctx)
	if err != nil {
		t.log.Error("token cleanup failed", zap.Error(err))
		return 0, err
	}
	t.log.Info("token cleanup finished", zap.Int64("purged", n))
	return n, nil
}
