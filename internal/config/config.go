// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultPort       = "3001"
	defaultSessionTTL = 30 * 24 * time.Hour
	minSessionTTL     = 60 * time.Second
)

// Port returns the HTTP listen port (PORT env, default 3001).
func Port() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return defaultPort
}

// DatabaseURL returns the Postgres connection string. Required at startup.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// RedisURL returns the optional redis connection string for the session cache.
func RedisURL() string {
	return os.Getenv("REDIS_URL")
}

// BotToken returns the Telegram bot token used to verify initData signatures.
func BotToken() string {
	return os.Getenv("TG_BOT_TOKEN")
}

// InternalKey returns the shared secret guarding privileged endpoints.
func InternalKey() string {
	return os.Getenv("INTERNAL_KEY")
}

// IsProduction reports whether the server runs in production mode.
func IsProduction() bool {
	return os.Getenv("NODE_ENV") == "production"
}

// SessionTTL returns the session lifetime (SESSION_TTL_SECONDS, default 30d,
// floor 60s).
func SessionTTL() time.Duration {
	raw := os.Getenv("SESSION_TTL_SECONDS")
	if raw == "" {
		return defaultSessionTTL
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return defaultSessionTTL
	}
	ttl := time.Duration(secs) * time.Second
	if ttl < minSessionTTL {
		return minSessionTTL
	}
	return ttl
}

// DevAllowQueryTgUserID reports whether the non-production tgUserId query
// fallback is enabled. Always false in production.
func DevAllowQueryTgUserID() bool {
	if IsProduction() {
		return false
	}
	v := os.Getenv("RR_DEV_ALLOW_QUERY_TGUSERID")
	return v == "1" || v == "true"
}

// SnapshotBroadcastLogEvery returns the sampling interval (in ticks) for
// snapshot broadcast diagnostics, or 0 when disabled.
func SnapshotBroadcastLogEvery() int {
	if v := os.Getenv("RR_LOG_SNAPSHOT_BROADCAST"); v != "1" && v != "true" {
		return 0
	}
	every := 20
	if raw := os.Getenv("RR_LOG_SNAPSHOT_BROADCAST_EVERY"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			every = n
		}
	}
	return every
}
