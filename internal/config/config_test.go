package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)

	// Given only the required variables
	t.Setenv("DB_DSN", "postgres://localhost/collab")
	t.Setenv("JWT_SECRET", "secret")

	// When
	cfg, err := Load()

	// Then
	req.NoError(err)
	req.Equal(":8080", cfg.Addr)
	req.Equal(24*time.Hour, cfg.TokenTTL)
	req.Equal(int64(65536), cfg.MaxMessageSize)
	req.Equal(256, cfg.SendBufferSize)
	req.Equal(5*time.Second, cfg.StoreTimeout)
	req.Equal(100, cfg.ChatHistoryLimit)
	req.Equal(30*time.Second, cfg.PresenceTTL)
	req.Equal([]string{"http://localhost:3000"}, cfg.Origins())
}

func TestLoad_MissingSecret(t *testing.T) {
	req := require.New(t)
	t.Setenv("DB_DSN", "postgres://localhost/collab")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()

	req.Error(err)
}

func TestOrigins_SplitsAndTrims(t *testing.T) {
	req := require.New(t)
	cfg := Config{AllowedOrigins: " http://a.test , ,https://b.test"}

	req.Equal([]string{"http://a.test", "https://b.test"}, cfg.Origins())
}
