package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Payload representation modes.
const (
	PayloadModeAttribute = "attribute"
	PayloadModeURI       = "uri"
)

// Payload backends.
const (
	PayloadBackendMemory = "memory"
	PayloadBackendRedis  = "redis"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	// Pool sizing. PoolSize 0 derives the size from the viewport and editor heights.
	PoolSize     int
	MaxFrames    int
	EditorHeight float64
	// Initial viewport used for the startup reconcile.
	ViewportHeight float64
	ViewportWidth  float64
	// Scroll scheduling
	ThrottleInterval time.Duration
	// Host document
	PageManifest string
	// Edit state persistence
	PayloadMode    string
	PayloadBackend string
	PayloadTTL     time.Duration
	RedisAddr      string
	// ReadyTimeout bounds how long a frame with a payload stays hidden
	// waiting for its editor.
	ReadyTimeout time.Duration
	// PageSession namespaces persisted payloads. Reusing a session across
	// restarts resumes its edits; empty mints a new one.
	PageSession string
	// Simulated embedded editor
	SimLoadDelay  time.Duration
	SimReadyDelay time.Duration
	SimReadyTicks int
	// Debug API rate limiting
	RateLimitEnabled    bool
	RateLimitCapacity   int
	RateLimitRefillRate int
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
	cfg.ServiceName = getenv("SERVICE_NAME", "embedpool")

	cfg.PoolSize = envInt("POOL_SIZE", 0)
	cfg.MaxFrames = envInt("MAX_FRAMES", 4)
	cfg.EditorHeight = envFloat("EDITOR_HEIGHT", 400)
	cfg.ViewportHeight = envFloat("VIEWPORT_HEIGHT", 900)
	cfg.ViewportWidth = envFloat("VIEWPORT_WIDTH", 1280)

	// 250ms matches the scroll throttle the demos were tuned against
	cfg.ThrottleInterval = envDuration("THROTTLE_INTERVAL", 250*time.Millisecond)

	cfg.PageManifest = getenv("PAGE_MANIFEST", "testdata/page.yaml")

	cfg.PayloadMode = strings.ToLower(getenv("PAYLOAD_MODE", PayloadModeAttribute))
	cfg.PayloadBackend = strings.ToLower(getenv("PAYLOAD_BACKEND", PayloadBackendMemory))
	cfg.PayloadTTL = envDuration("PAYLOAD_TTL", 30*time.Minute)
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.PageSession = getenv("PAGE_SESSION", "")
	cfg.ReadyTimeout = envDuration("READY_TIMEOUT", 10*time.Second)

	cfg.SimLoadDelay = envDuration("SIM_LOAD_DELAY", 150*time.Millisecond)
	cfg.SimReadyDelay = envDuration("SIM_READY_DELAY", 40*time.Millisecond)
	cfg.SimReadyTicks = envInt("SIM_READY_TICKS", 3)

	cfg.RateLimitEnabled = envBool("RATE_LIMIT_ENABLED", true)
	cfg.RateLimitCapacity = envInt("RATE_LIMIT_CAPACITY", 50)
	cfg.RateLimitRefillRate = envInt("RATE_LIMIT_REFILL_RATE", 20)

	// Tracing configuration
	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0) // Default to 100% sampling for dev

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "250ms") or a number of seconds.
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
