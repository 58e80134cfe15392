package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8787", cfg.Port)
	assert.Equal(t, "redis", cfg.PayloadCache)
	assert.Equal(t, "display", cfg.JITFallback)
	assert.Equal(t, 2*time.Second, cfg.RemoteTimeout)
	assert.True(t, cfg.TrackingEnabled)
	assert.Empty(t, cfg.CampaignsURL)
	assert.Equal(t, 90*24*time.Hour, cfg.ViewLogRetention)
	assert.Equal(t, time.Local, cfg.Location())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("PAYLOAD_CACHE", "Postgres")
	t.Setenv("CAMPAIGNS_URL", "https://campaigns.example.com")
	t.Setenv("REMOTE_TIMEOUT", "750ms")
	t.Setenv("JIT_CACHE_TTL", "30")
	t.Setenv("JIT_FALLBACK", "skip")
	t.Setenv("API_LEVEL", "33")
	t.Setenv("TIMEZONE", "Europe/Paris")
	t.Setenv("TRACKING_ENABLED", "false")
	t.Setenv("TRACING_SAMPLE_RATE", "0.25")
	t.Setenv("VIEW_LOG_RETENTION", "720h")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "postgres", cfg.PayloadCache)
	assert.Equal(t, "https://campaigns.example.com", cfg.CampaignsURL)
	assert.Equal(t, 750*time.Millisecond, cfg.RemoteTimeout)
	assert.Equal(t, 30*time.Second, cfg.JITCacheTTL)
	assert.Equal(t, "skip", cfg.JITFallback)
	assert.Equal(t, 33, cfg.APILevel)
	assert.Equal(t, "Europe/Paris", cfg.Location().String())
	assert.False(t, cfg.TrackingEnabled)
	assert.Equal(t, 0.25, cfg.TracingSampleRate)
	assert.Equal(t, 30*24*time.Hour, cfg.ViewLogRetention)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("REMOTE_TIMEOUT", "soon")
	t.Setenv("API_LEVEL", "thirty")
	t.Setenv("TRACKING_ENABLED", "maybe")
	t.Setenv("TIMEZONE", "Mars/Olympus")

	cfg := Load()
	assert.Equal(t, 2*time.Second, cfg.RemoteTimeout)
	assert.Equal(t, 0, cfg.APILevel)
	assert.True(t, cfg.TrackingEnabled)
	assert.Equal(t, time.Local, cfg.Location())
}
