package config

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"APPLY_ADDR", "OPEN_AT", "OPEN_AT_KST", "RATE_LIMIT_SECONDS", "DUPLICATE_WINDOW_SECONDS",
		"DUPLICATE_SUPPRESSION", "AUDIT_LOG_ENABLED", "REDIS_URL", "SHEETS_WEBHOOK_URL", "EXPORT_LIMIT", "TRUSTED_PROXY_CIDRS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.True(t, cfg.OpenAt.Equal(time.Date(2025, 10, 12, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, 60*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 300*time.Second, cfg.DuplicateWindow)
	assert.True(t, cfg.DuplicateSuppression)
	assert.True(t, cfg.AuditLogEnabled)
	assert.Equal(t, 1000, cfg.ExportLimit)
	assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestFromEnv_TrustedProxies(t *testing.T) {
	t.Run("parsed from a comma-separated list", func(t *testing.T) {
		t.Setenv("TRUSTED_PROXY_CIDRS", "173.245.48.0/20, 127.0.0.1")

		cfg, err := FromEnv()
		require.NoError(t, err)
		require.Len(t, cfg.TrustedProxies, 2)
		assert.True(t, cfg.TrustedProxies.Contains(netip.MustParseAddr("173.245.50.1")))
		assert.True(t, cfg.TrustedProxies.Contains(netip.MustParseAddr("127.0.0.1")))
		assert.False(t, cfg.TrustedProxies.Contains(netip.MustParseAddr("198.51.100.9")))
	})

	t.Run("malformed entry is rejected", func(t *testing.T) {
		t.Setenv("TRUSTED_PROXY_CIDRS", "10.0.0.0/33")

		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TRUSTED_PROXY_CIDRS")
	})
}

func TestFromEnv_OpenAt(t *testing.T) {
	t.Run("RFC3339 with offset", func(t *testing.T) {
		t.Setenv("OPEN_AT", "2025-11-01T09:30:00-05:00")
		t.Setenv("OPEN_AT_KST", "2030-01-01 00:00:00")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.True(t, cfg.OpenAt.Equal(time.Date(2025, 11, 1, 14, 30, 0, 0, time.UTC)))
	})

	t.Run("legacy wall clock is read at UTC+09:00", func(t *testing.T) {
		t.Setenv("OPEN_AT", "")
		t.Setenv("OPEN_AT_KST", "2025-10-12 17:00:00")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.True(t, cfg.OpenAt.Equal(time.Date(2025, 10, 12, 8, 0, 0, 0, time.UTC)))
	})

	t.Run("instant without offset is rejected", func(t *testing.T) {
		t.Setenv("OPEN_AT", "2025-10-12 17:00:00")

		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "OPEN_AT")
	})
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("OPEN_AT", "")
	t.Setenv("OPEN_AT_KST", "")
	t.Setenv("RATE_LIMIT_SECONDS", "120")
	t.Setenv("DUPLICATE_WINDOW_SECONDS", "600")
	t.Setenv("DUPLICATE_SUPPRESSION", "false")
	t.Setenv("REDIS_URL", " redis://localhost:6379/0 ")
	t.Setenv("REDIS_READ_TIMEOUT_MS", "250")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 120*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 600*time.Second, cfg.DuplicateWindow)
	assert.False(t, cfg.DuplicateSuppression)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Redis.ReadTimeout)
}

func TestFromEnv_InvalidNumbers(t *testing.T) {
	t.Setenv("OPEN_AT", "")
	t.Setenv("OPEN_AT_KST", "")
	t.Setenv("RATE_LIMIT_SECONDS", "sixty")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_SECONDS")
}
