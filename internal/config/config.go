package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

type Config struct {
	Addr             string        `env:"ADDR,default=:8080"`
	DatabaseDSN      string        `env:"DB_DSN,required=true"`
	JWTSecret        string        `env:"JWT_SECRET,required=true"`
	TokenTTL         time.Duration `env:"TOKEN_TTL,default=24h"`
	RedisAddr        string        `env:"REDIS_ADDR"`
	AllowedOrigins   string        `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	LogLevel         string        `env:"LOG_LEVEL,default=INFO"`
	MaxMessageSize   int64         `env:"MAX_MESSAGE_SIZE,default=65536"`
	SendBufferSize   int           `env:"SEND_BUFFER_SIZE,default=256"`
	StoreTimeout     time.Duration `env:"STORE_TIMEOUT,default=5s"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	ChatHistoryLimit int           `env:"CHAT_HISTORY_LIMIT,default=100"`
	PresenceTTL      time.Duration `env:"PRESENCE_TTL,default=30s"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if cfg.DatabaseDSN == "" || cfg.JWTSecret == "" {
		return Config{}, errors.New("config error: DB_DSN and JWT_SECRET must not be empty")
	}
	if cfg.MaxMessageSize <= 0 || cfg.SendBufferSize <= 0 {
		return Config{}, errors.New("config error: MAX_MESSAGE_SIZE and SEND_BUFFER_SIZE must be positive")
	}
	if cfg.PresenceTTL <= 0 {
		return Config{}, errors.New("config error: PRESENCE_TTL must be positive")
	}
	return cfg, nil
}

// Origins splits ALLOWED_ORIGINS on commas, dropping blanks.
func (c Config) Origins() []string {
	parts := lo.Map(strings.Split(c.AllowedOrigins, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(parts)
}
