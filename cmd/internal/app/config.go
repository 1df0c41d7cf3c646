package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	authapi "calcsync/cmd/internal/auth/api"
	"calcsync/cmd/internal/auth/session"

	"github.com/caarlos0/env/v10"
)

// EnvPrefix prefixes every configuration variable.
const EnvPrefix = "CALCSYNC_"

// ErrConfig is returned for invalid configuration.
var ErrConfig = errors.New("invalid config")

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json | pretty | pretty-color

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxHeaderBytes    int           `env:"HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`
	CORSMaxAgeSeconds    int      `env:"CORS_MAX_AGE_SECONDS" envDefault:"600"`

	// An empty DatabaseURL selects the in-memory stores.
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"0"`
	DBSchema    string `env:"DB_SCHEMA" envDefault:"calcsync"`

	// An empty RedisURL disables the relay and the user cache.
	RedisURL     string        `env:"REDIS_URL"`
	RelayEnabled bool          `env:"RELAY_ENABLED" envDefault:"true"`
	UserCacheTTL time.Duration `env:"USER_CACHE_TTL" envDefault:"1m"`

	// ReadinessRequireDB makes /readyz fail unless a database is configured.
	ReadinessRequireDB bool `env:"READINESS_REQUIRE_DB" envDefault:"false"`

	Auth    session.Config `envPrefix:"AUTH_"`
	AuthAPI authapi.Config `envPrefix:"AUTH_API_"`
	WS      WSConfig       `envPrefix:"WS_"`
	Admin   AdminConfig    `envPrefix:"ADMIN_"`
	Argon2  Argon2Config   `envPrefix:"ARGON2_"`
}

// WSConfig holds the websocket knobs.
type WSConfig struct {
	OriginRequired    bool          `env:"ORIGIN_REQUIRED" envDefault:"false"`
	AllowedOrigins    []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	DevInsecure       bool          `env:"DEV_INSECURE" envDefault:"false"`
	SendQueueSize     int           `env:"SEND_QUEUE" envDefault:"64"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
	ReadIdleTimeout   time.Duration `env:"READ_IDLE_TIMEOUT" envDefault:"0s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"25s"`
	HeartbeatTimeout  time.Duration `env:"HEARTBEAT_TIMEOUT" envDefault:"5s"`
}

// AdminConfig bootstraps the administrator account. An empty Username disables it.
type AdminConfig struct {
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	Email    string `env:"EMAIL"`
}

// Argon2Config overrides the password hashing cost. Zero keeps the default.
type Argon2Config struct {
	MemoryKiB   uint32 `env:"MEMORY_KIB"`
	Iterations  uint32 `env:"ITERATIONS"`
	Parallelism uint8  `env:"PARALLELISM"`
}

const minSendQueue = 8

// LoadConfig loads Config from the process environment.
func LoadConfig() (Config, error) {
	return loadConfig(nil)
}

// loadConfig parses environ, or the process environment when environ is nil.
func loadConfig(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "pretty", "pretty-color":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrConfig, c.LogFormat)
	}
	for name, d := range map[string]time.Duration{
		"HTTP_READ_HEADER_TIMEOUT": c.ReadHeaderTimeout,
		"HTTP_READ_TIMEOUT":        c.ReadTimeout,
		"HTTP_WRITE_TIMEOUT":       c.WriteTimeout,
		"HTTP_IDLE_TIMEOUT":        c.IdleTimeout,
		"HTTP_SHUTDOWN_TIMEOUT":    c.ShutdownTimeout,
		"WS_WRITE_TIMEOUT":         c.WS.WriteTimeout,
		"WS_HEARTBEAT_INTERVAL":    c.WS.HeartbeatInterval,
		"WS_HEARTBEAT_TIMEOUT":     c.WS.HeartbeatTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s%s must be positive", ErrConfig, EnvPrefix, name)
		}
	}
	if c.WS.ReadIdleTimeout < 0 {
		return fmt.Errorf("%w: %sWS_READ_IDLE_TIMEOUT must not be negative", ErrConfig, EnvPrefix)
	}
	if c.WS.SendQueueSize < minSendQueue {
		return fmt.Errorf("%w: %sWS_SEND_QUEUE must be at least %d", ErrConfig, EnvPrefix, minSendQueue)
	}
	if c.DBMaxConns < 0 || c.DBMinConns < 0 {
		return fmt.Errorf("%w: negative pool size", ErrConfig)
	}
	if (c.Admin.Username == "") != (c.Admin.Password == "") {
		return fmt.Errorf("%w: %sADMIN_USERNAME and %sADMIN_PASSWORD go together", ErrConfig, EnvPrefix, EnvPrefix)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("%w: auth: %w", ErrConfig, err)
	}
	if err := c.AuthAPI.Validate(); err != nil {
		return fmt.Errorf("%w: auth api: %w", ErrConfig, err)
	}
	return nil
}
