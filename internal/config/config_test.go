package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8787", cfg.Port)
	assert.Equal(t, 0, cfg.PoolSize)
	assert.Equal(t, 4, cfg.MaxFrames)
	assert.Equal(t, 250*time.Millisecond, cfg.ThrottleInterval)
	assert.Equal(t, PayloadModeAttribute, cfg.PayloadMode)
	assert.Equal(t, PayloadBackendMemory, cfg.PayloadBackend)
	assert.Empty(t, cfg.PageSession)
	assert.Equal(t, 10*time.Second, cfg.ReadyTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POOL_SIZE", "3")
	t.Setenv("THROTTLE_INTERVAL", "100ms")
	t.Setenv("PAYLOAD_MODE", "URI")
	t.Setenv("PAYLOAD_TTL", "90")
	t.Setenv("EDITOR_HEIGHT", "320.5")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("PAGE_SESSION", "tutorial-42")
	t.Setenv("READY_TIMEOUT", "2s")

	cfg := Load()

	assert.Equal(t, 3, cfg.PoolSize)
	assert.Equal(t, 100*time.Millisecond, cfg.ThrottleInterval)
	assert.Equal(t, PayloadModeURI, cfg.PayloadMode)
	assert.Equal(t, 90*time.Second, cfg.PayloadTTL)
	assert.Equal(t, 320.5, cfg.EditorHeight)
	assert.False(t, cfg.RateLimitEnabled)
	assert.Equal(t, "tutorial-42", cfg.PageSession)
	assert.Equal(t, 2*time.Second, cfg.ReadyTimeout)
}

func TestLoadInvalidFallsBack(t *testing.T) {
	t.Setenv("POOL_SIZE", "three")
	t.Setenv("THROTTLE_INTERVAL", "soon")

	cfg := Load()

	assert.Equal(t, 0, cfg.PoolSize)
	assert.Equal(t, 250*time.Millisecond, cfg.ThrottleInterval)
}
