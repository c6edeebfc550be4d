package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whisper/internal/api"
	"whisper/internal/auth"
	"whisper/internal/cache"
	"whisper/internal/chat"
	"whisper/internal/config"
	"whisper/internal/db"
	"whisper/internal/logger"
	"whisper/internal/repository"
	"whisper/internal/tasks"
	"whisper/internal/uploads"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type stores struct {
	users    repository.UserRepository
	messages repository.MessageStore
	tokens   repository.RefreshTokenRepository
	checks   map[string]api.Check
	closers  []io.Closer
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "whisper:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, dotenv, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if !dotenv {
		log.Debug("no .env file found, using process environment")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range st.closers {
			_ = c.Close()
		}
	}()

	tokens := auth.NewTokens(cfg.AuthKey, cfg.AccessTokenTTL)
	registry := chat.NewRegistry()
	hub := chat.NewHub(registry, log)
	go hub.Run()

	dispatcher := chat.NewDispatcher(st.users, st.messages, registry, cfg.StoreTimeout, log)
	relay := chat.NewRelay(st.messages, registry, cfg.StoreTimeout, log)
	gateway := chat.NewGateway(tokens, hub, dispatcher, relay, chat.ClientOptions{
		SendBuffer:    cfg.WSSendBuffer,
		MaxFrameBytes: cfg.WSMaxFrameBytes,
		RateBurst:     cfg.WSRateBurst,
		RateRefill:    cfg.WSRateRefill,
	}, log)

	store, err := uploads.NewStore(cfg.UploadDir, cfg.BaseURL(), cfg.UploadMaxBytes, cfg.UploadMaxFiles, log)
	if err != nil {
		return fmt.Errorf("upload dir: %w", err)
	}

	cleaner := tasks.NewTokenCleaner(st.tokens, cfg.CleanupSchedule, log)
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("schedule token cleanup: %w", err)
	}
	defer cleaner.Stop()

	router := api.NewRouter(api.Deps{
		Users:         st.users,
		RefreshTokens: st.tokens,
		Tokens:        tokens,
		RefreshTTL:    cfg.RefreshTokenTTL,
		StoreTimeout:  cfg.StoreTimeout,
		Registry:      registry,
		Dispatcher:    dispatcher,
		Relay:         relay,
		Gateway:       gateway,
		Uploads:       store,
		UploadLimit:   int64(cfg.UploadMaxFiles)*cfg.UploadMaxBytes + 1<<20,
		Checks:        st.checks,
		Log:           log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		hub.Stop()
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received, cleaning up")
	hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	st := &stores{checks: map[string]api.Check{}}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		log.Info("connecting to postgres", zap.String("dsn", cfg.MaskedDatabaseURL()))
		pool, err := db.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		st.users = repository.NewUserRepo(pool)
		st.messages = repository.NewMessagesRepo(pool, log)
		st.tokens = repository.NewRefreshTokenRepo(pool)
		st.checks["postgres"] = pool.Ping
		st.closers = append(st.closers, closerFunc(pool.Close))

	case config.DriverBadger:
		bdb, err := db.OpenBadger(cfg.BadgerPath, log)
		if err != nil {
			return nil, fmt.Errorf("open badger: %w", err)
		}
		st.users = repository.NewBadgerUserRepo(bdb)
		st.messages = repository.NewBadgerMessagesRepo(bdb)
		st.tokens = repository.NewBadgerRefreshTokenRepo(bdb)
		st.closers = append(st.closers, bdb)
	}

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("redis unavailable, user cache disabled", zap.Error(err))
		} else {
			st.users = repository.NewCachedUsers(st.users, rc, cfg.UserCacheTTL, log)
			st.checks["redis"] = rc.Ping
			st.closers = append(st.closers, rc)
		}
	}
	return st, nil
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
