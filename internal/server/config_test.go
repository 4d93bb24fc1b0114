package server

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearRelayEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HOST", "PORT", "MAX_MESSAGE_LENGTH", "CHAT_DB_PATH", "PUBLIC_DIR",
		"ALLOWED_ORIGINS", "RATE_LIMIT_BURST", "RATE_LIMIT_REFILL_INTERVAL",
		"SHUTDOWN_TIMEOUT",
	} {
		// Setenv registers restoration of the original value; the variable
		// must then be unset because an empty-but-set variable suppresses
		// the struct tag default.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearRelayEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 500, cfg.MaxMessageLength)
	assert.Equal(t, "chat.db", cfg.DBPath)
	assert.Equal(t, "public", cfg.PublicDir)
	assert.Equal(t, 5, cfg.RateLimitBurst)
	assert.Equal(t, time.Second, cfg.RateLimitRefill)
	assert.False(t, cfg.PortExplicit())
	assert.Equal(t, "0.0.0.0:3000", cfg.Addr())

	// The page the relay serves itself can always connect.
	assert.Contains(t, cfg.AllowedOrigins, "http://localhost:3000")
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "8123")
	t.Setenv("MAX_MESSAGE_LENGTH", "42")
	t.Setenv("CHAT_DB_PATH", "/tmp/other.db")
	t.Setenv("ALLOWED_ORIGINS", "http://example.com,http://other.example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8123", cfg.Addr())
	assert.Equal(t, 42, cfg.MaxMessageLength)
	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	assert.True(t, cfg.PortExplicit())
	assert.Equal(t, []string{"http://example.com", "http://other.example.com"}, cfg.AllowedOrigins)
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	tests := map[string]struct {
		key   string
		value string
	}{
		"non-numeric max length": {"MAX_MESSAGE_LENGTH", "abc"},
		"zero max length":        {"MAX_MESSAGE_LENGTH", "0"},
		"negative max length":    {"MAX_MESSAGE_LENGTH", "-1"},
		"port out of range":      {"PORT", "70000"},
		"negative port":          {"PORT", "-1"},
		"zero rate limit burst":  {"RATE_LIMIT_BURST", "0"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			clearRelayEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
