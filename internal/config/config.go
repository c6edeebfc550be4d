package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Env      string `env:"APP_ENV,default=development"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=8080"`

	AuthKey         string        `env:"AUTH_KEY,required=true"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL,default=15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL,default=168h"`

	StoreDriver  string        `env:"STORE_DRIVER,default=postgres"`
	DatabaseURL  string        `env:"DATABASE_URL"`
	BadgerPath   string        `env:"BADGER_PATH,default=./data/badger"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT,default=5s"`

	RedisURL     string        `env:"REDIS_URL"`
	UserCacheTTL time.Duration `env:"USER_CACHE_TTL,default=10m"`

	UploadDir      string `env:"UPLOAD_DIR,default=./uploads"`
	UploadMaxBytes int64  `env:"UPLOAD_MAX_BYTES,default=10485760"`
	UploadMaxFiles int    `env:"UPLOAD_MAX_FILES,default=5"`
	PublicBaseURL  string `env:"PUBLIC_BASE_URL"`

	WSSendBuffer    int           `env:"WS_SEND_BUFFER,default=256"`
	WSMaxFrameBytes int64         `env:"WS_MAX_FRAME_BYTES,default=8192"`
	WSRateBurst     int32         `env:"WS_RATE_BURST,default=5"`
	WSRateRefill    time.Duration `env:"WS_RATE_REFILL,default=500ms"`

	CleanupSchedule string `env:"CLEANUP_SCHEDULE,default=0 3 * * *"`
}

// Load reads an optional .env file and then the process environment.
// The returned bool reports whether a .env file was found.
func Load() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil

	cfg := &Config{}
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, dotenv, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, dotenv, err
	}
	return cfg, dotenv, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required when STORE_DRIVER=%s", ErrInvalidConfig, DriverPostgres)
		}
	case DriverBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("%w: BADGER_PATH is required when STORE_DRIVER=%s", ErrInvalidConfig, DriverBadger)
		}
	default:
		return fmt.Errorf("%w: unknown STORE_DRIVER %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.AuthKey == "" {
		return fmt.Errorf("%w: AUTH_KEY (JWT secret) is missing", ErrInvalidConfig)
	}
	if c.UploadMaxFiles <= 0 || c.UploadMaxBytes <= 0 {
		return fmt.Errorf("%w: upload limits must be positive", ErrInvalidConfig)
	}
	if c.WSSendBuffer <= 0 || c.WSRateBurst <= 0 || c.WSRateRefill <= 0 {
		return fmt.Errorf("%w: websocket limits must be positive", ErrInvalidConfig)
	}
	if c.StoreTimeout <= 0 || c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("%w: STORE_TIMEOUT and token TTLs must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// BaseURL is the prefix used when handing attachment URLs back to clients.
func (c *Config) BaseURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimRight(c.PublicBaseURL, "/")
	}
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MaskedDatabaseURL hides credentials so the DSN can be logged.
func (c *Config) MaskedDatabaseURL() string {
	return maskDBSource(c.DatabaseURL)
}

func maskDBSource(dsn string) string {
	parts := strings.Split(dsn, "@")
	if len(parts) < 2 {
		return "invalid-dsn-format"
	}
	return "postgres://****:****@" + parts[len(parts)-1]
}
