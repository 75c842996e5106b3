package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("JWT_SECRET", "  s3cret  ")

	cfg := LoadConfig()

	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.True(t, cfg.Auth.SlidingRefresh)
	assert.Equal(t, "token", cfg.Auth.CookieName)
	assert.Equal(t, "strict", cfg.Auth.CookieSameSite)
	assert.Equal(t, int64(5<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, 5, cfg.Database.ConnectTries)
	assert.False(t, cfg.IsProduction())
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ENV", EnvProduction)
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("TOKEN_TTL", "30m")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("SESSION_SLIDING_REFRESH", "false")
	t.Setenv("UPLOAD_ALLOWED_TYPES", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := LoadConfig()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.False(t, cfg.Auth.SlidingRefresh)
	assert.Empty(t, cfg.Upload.AllowedTypes)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestValidateRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORAGE_DRIVER", "ftp")

	err := LoadConfig().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
	assert.Contains(t, err.Error(), `unknown STORAGE_DRIVER "ftp"`)
}
