// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, read from the environment (and a .env
// file when present, via godotenv autoload in cmd/server).
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Log     LogConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8080"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`
}

// BackendConfig is shared with the browser: BackendURL is where pages open the
// realtime websocket, PublicAPIKey is the key they present when doing so.
type BackendConfig struct {
	BackendURL   string `env:"BACKEND_URL,required,notEmpty"`
	PublicAPIKey string `env:"PUBLIC_API_KEY,required,notEmpty"`
	DatabaseURL  string `env:"DATABASE_URL,required,notEmpty"`
}

// RedisConfig points at the pub/sub broker.
type RedisConfig struct {
	Addr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	DB   int    `env:"REDIS_DB" envDefault:"0"`
}

// AuthConfig controls session token lifetime. "never" or "0" disables expiry.
// When both key paths are set the ed25519 signing keys are read from them;
// otherwise a fresh pair is generated at startup.
type AuthConfig struct {
	TokenExpireTime   string `env:"TOKEN_EXPIRE_TIME" envDefault:"72h"`
	JWTPrivateKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPublicKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`
}

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// TokenTTL parses TokenExpireTime. A zero duration means tokens never expire.
func (a AuthConfig) TokenTTL() (time.Duration, error) {
	switch a.TokenExpireTime {
	case "", "0", "never":
		return 0, nil
	}
	d, err := time.ParseDuration(a.TokenExpireTime)
	if err != nil {
		return 0, fmt.Errorf("invalid TOKEN_EXPIRE_TIME %q: %w", a.TokenExpireTime, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid TOKEN_EXPIRE_TIME %q: negative duration", a.TokenExpireTime)
	}
	return d, nil
}

// Load parses the environment. Missing required variables are returned as an error,
// which callers treat as fatal.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Auth.TokenTTL(); err != nil {
		return Config{}, err
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("invalid LOG_FORMAT %q: want text or json", cfg.Log.Format)
	}
	return cfg, nil
}
