package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/epitomedu/epi/pkg/platform/middleware/metadata"
)

// DefaultOpenAt is the registration opening instant used when neither OPEN_AT
// nor OPEN_AT_KST is set: 2025-10-12 17:00 at UTC+09:00.
const DefaultOpenAt = "2025-10-12T17:00:00+09:00"

// legacyOpenAtLayout is the wall-clock layout accepted by OPEN_AT_KST.
const legacyOpenAtLayout = "2006-01-02 15:04:05"

// kst is a fixed +09:00 zone. It does not depend on the host tz database.
var kst = time.FixedZone("KST", 9*60*60)

// Server captures HTTP server level configuration.
type Server struct {
	Addr      string
	LogLevel  string
	LogFormat string
	// TrustedProxies are the peers allowed to name the client address through
	// CF-Connecting-IP, X-Forwarded-For or X-Real-IP. Empty trusts nobody.
	TrustedProxies metadata.TrustedProxies

	OpenAt               time.Time
	RateLimitWindow      time.Duration
	DuplicateWindow      time.Duration
	DuplicateSuppression bool
	DuplicateKeyMode     string
	AuditLogEnabled      bool
	ExportLimit          int
	AdminSecret          string
	Webhook              WebhookConfig
	Redis                RedisConfig
}

// WebhookConfig configures the spreadsheet forwarder.
type WebhookConfig struct {
	URL          string
	SharedSecret string
	Timeout      time.Duration
}

// RedisConfig configures the ledger connection. An empty URL means no ledger.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	openAt, err := openAtFromEnv()
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		Addr:      getString("APPLY_ADDR", ":8080"),
		LogLevel:  getString("LOG_LEVEL", "info"),
		LogFormat: getString("LOG_FORMAT", "json"),

		OpenAt:               openAt,
		DuplicateSuppression: true,
		AuditLogEnabled:      true,
		DuplicateKeyMode:     getString("DUPLICATE_KEY_MODE", "name_birth_phone"),
		AdminSecret:          os.Getenv("ADMIN_SECRET"),
		Webhook: WebhookConfig{
			URL:          strings.TrimSpace(os.Getenv("SHEETS_WEBHOOK_URL")),
			SharedSecret: os.Getenv("SHEETS_SHARED_SECRET"),
		},
		Redis: RedisConfig{
			URL: strings.TrimSpace(os.Getenv("REDIS_URL")),
		},
	}

	if cfg.TrustedProxies, err = metadata.ParseTrustedProxies(os.Getenv("TRUSTED_PROXY_CIDRS")); err != nil {
		return Server{}, fmt.Errorf("TRUSTED_PROXY_CIDRS: %w", err)
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"EXPORT_LIMIT", 1000, &cfg.ExportLimit},
		{"REDIS_POOL_SIZE", 10, &cfg.Redis.PoolSize},
		{"REDIS_MIN_IDLE_CONNS", 2, &cfg.Redis.MinIdleConns},
	}
	for _, v := range ints {
		n, err := getInt(v.key, v.fallback)
		if err != nil {
			return Server{}, err
		}
		*v.dst = n
	}

	durations := []struct {
		key      string
		fallback int
		unit     time.Duration
		dst      *time.Duration
	}{
		{"RATE_LIMIT_SECONDS", 60, time.Second, &cfg.RateLimitWindow},
		{"DUPLICATE_WINDOW_SECONDS", 300, time.Second, &cfg.DuplicateWindow},
		{"WEBHOOK_TIMEOUT_SECONDS", 10, time.Second, &cfg.Webhook.Timeout},
		{"REDIS_DIAL_TIMEOUT_MS", 2000, time.Millisecond, &cfg.Redis.DialTimeout},
		{"REDIS_READ_TIMEOUT_MS", 1000, time.Millisecond, &cfg.Redis.ReadTimeout},
		{"REDIS_WRITE_TIMEOUT_MS", 1000, time.Millisecond, &cfg.Redis.WriteTimeout},
	}
	for _, v := range durations {
		n, err := getInt(v.key, v.fallback)
		if err != nil {
			return Server{}, err
		}
		*v.dst = time.Duration(n) * v.unit
	}

	if cfg.DuplicateSuppression, err = getBool("DUPLICATE_SUPPRESSION", true); err != nil {
		return Server{}, err
	}
	if cfg.AuditLogEnabled, err = getBool("AUDIT_LOG_ENABLED", true); err != nil {
		return Server{}, err
	}

	return cfg, nil
}

// openAtFromEnv prefers OPEN_AT (RFC3339 with offset) and falls back to the
// legacy OPEN_AT_KST wall-clock value.
func openAtFromEnv() (time.Time, error) {
	if raw := strings.TrimSpace(os.Getenv("OPEN_AT")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("OPEN_AT: %w", err)
		}
		return t, nil
	}
	if raw := strings.TrimSpace(os.Getenv("OPEN_AT_KST")); raw != "" {
		t, err := time.ParseInLocation(legacyOpenAtLayout, raw, kst)
		if err != nil {
			return time.Time{}, fmt.Errorf("OPEN_AT_KST: %w", err)
		}
		return t, nil
	}
	t, _ := time.Parse(time.RFC3339, DefaultOpenAt)
	return t, nil
}

func getString(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		return fallback
	}
	return strings.TrimSpace(val)
}

func getInt(key string, fallback int) (int, error) {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
