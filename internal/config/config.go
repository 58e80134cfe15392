package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	RedisAddr    string
	PostgresDSN  string
	// PayloadCache selects where the persistable payload is kept: redis,
	// postgres or none.
	PayloadCache     string
	ClickHouseDSN    string
	AnalyticsEnabled bool
	GeoIPDB          string
	DebugTrace       bool
	// Campaign server
	CampaignsURL    string
	RemoteTimeout   time.Duration
	RefreshInterval time.Duration
	JITFallback     string
	JITTimeout      time.Duration
	JITCacheTTL     time.Duration
	JITRateCapacity int
	JITRateRefill   int
	// Host and user
	APILevel        int
	Timezone        string
	CustomUserID    string
	TrackingEnabled bool
	// ViewLogRetention bounds the view log read by time window caps.
	ViewLogRetention time.Duration
	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "inappserve")
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.PayloadCache = strings.ToLower(getenv("PAYLOAD_CACHE", "redis"))
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")
	cfg.AnalyticsEnabled = envBool("ANALYTICS_ENABLED", false)
	// an empty path leaves d.country empty
	cfg.GeoIPDB = getenv("GEOIP_DB", "")
	cfg.DebugTrace = envBool("DEBUG_TRACE", false)

	// an empty URL runs the engine on locally pushed payloads only
	cfg.CampaignsURL = getenv("CAMPAIGNS_URL", "")
	cfg.RemoteTimeout = envDuration("REMOTE_TIMEOUT", 2*time.Second)
	cfg.RefreshInterval = envDuration("REFRESH_INTERVAL", 15*time.Minute)
	cfg.JITFallback = getenv("JIT_FALLBACK", "display")
	cfg.JITTimeout = envDuration("JIT_TIMEOUT", 0)
	cfg.JITCacheTTL = envDuration("JIT_CACHE_TTL", 0)
	cfg.JITRateCapacity = envInt("JIT_RATE_CAPACITY", 10)
	cfg.JITRateRefill = envInt("JIT_RATE_REFILL", 1)

	cfg.APILevel = envInt("API_LEVEL", 0)
	cfg.Timezone = getenv("TIMEZONE", "Local")
	cfg.CustomUserID = getenv("CUSTOM_USER_ID", "")
	cfg.TrackingEnabled = envBool("TRACKING_ENABLED", true)
	cfg.ViewLogRetention = envDuration("VIEW_LOG_RETENTION", 90*24*time.Hour)

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 2)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// Location resolves Timezone. Unknown names fall back to the process zone.
func (c Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
