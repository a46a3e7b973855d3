package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://localhost:8080")
	t.Setenv("PUBLIC_API_KEY", "public-key")
	t.Setenv("DATABASE_URL", "postgres://localhost/gamesite")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.True(t, cfg.Server.MigrateOnStart)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	ttl, err := cfg.Auth.TokenTTL()
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, ttl)
}

func TestLoadMissingBackendIsFatal(t *testing.T) {
	setRequired(t)
	t.Setenv("PUBLIC_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PUBLIC_API_KEY")
}

func TestLoadRejectsBadLogFormat(t *testing.T) {
	setRequired(t)
	t.Setenv("LOG_FORMAT", "xml")

	_, err := Load()
	require.Error(t, err)
}

func TestTokenTTL(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"never", 0, false},
		{"0", 0, false},
		{"15m", 15 * time.Minute, false},
		{"soon", 0, true},
		{"-1h", 0, true},
	} {
		got, err := AuthConfig{TokenExpireTime: tc.in}.TokenTTL()
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestLoadJWTKeyPaths(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_PRIVATE_KEY_PATH", "/run/secrets/jwt.key")
	t.Setenv("JWT_PUBLIC_KEY_PATH", "/run/secrets/jwt.pub")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/run/secrets/jwt.key", cfg.Auth.JWTPrivateKeyPath)
	assert.Equal(t, "/run/secrets/jwt.pub", cfg.Auth.JWTPublicKeyPath)
}

func TestLoadRejectsBadTokenExpireTime(t *testing.T) {
	setRequired(t)
	t.Setenv("TOKEN_EXPIRE_TIME", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_EXPIRE_TIME")
}
