package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/patrickwarner/embedpool/internal/config"
	"github.com/patrickwarner/embedpool/internal/embed/sim"
	"github.com/patrickwarner/embedpool/internal/eventloop"
	"github.com/patrickwarner/embedpool/internal/models"
	"github.com/patrickwarner/embedpool/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig() config.Config {
	return config.Config{
		PageManifest:     "../../testdata/page.yaml",
		PoolSize:         3,
		EditorHeight:     400,
		MaxFrames:        8,
		ViewportHeight:   900,
		ViewportWidth:    1280,
		ThrottleInterval: time.Hour,
		PayloadMode:      config.PayloadModeAttribute,
		PayloadBackend:   config.PayloadBackendMemory,
		PayloadTTL:       time.Hour,
	}
}

func newApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, zaptest.NewLogger(t),
		WithFactory(sim.Factory(sim.Options{Manual: true})),
		WithMetrics(observability.NewRecordingRegistry()))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNewBuildsPoolFromManifest(t *testing.T) {
	a := newApp(t, testConfig())

	assert.Equal(t, 3, a.Pool.Size())
	assert.NotEmpty(t, a.Session)
	assert.Nil(t, a.Blobs)

	snap := a.Pool.Snapshot(context.Background())
	assert.Len(t, snap.Slots, 10)
	assert.Empty(t, snap.AttachedSlots())
}

func TestNewDerivesPoolSize(t *testing.T) {
	cfg := testConfig()
	cfg.PoolSize = 0
	a := newApp(t, cfg)

	assert.Equal(t, 2, a.Pool.Size())
}

func TestNewKeepsConfiguredSession(t *testing.T) {
	cfg := testConfig()
	cfg.PageSession = "tutorial-42"
	a := newApp(t, cfg)

	assert.Equal(t, "tutorial-42", a.Session)
}

func TestNewURIModeCreatesBlobRegistry(t *testing.T) {
	cfg := testConfig()
	cfg.PayloadMode = config.PayloadModeURI
	a := newApp(t, cfg)

	assert.NotNil(t, a.Blobs)
}

func TestNewRejectsUnknownModes(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cfg := testConfig()
	cfg.PayloadMode = "cookie"
	_, err := New(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "unknown payload mode")

	cfg = testConfig()
	cfg.PayloadBackend = "s3"
	_, err = New(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "unknown payload backend")
}

func TestNewFailsOnMissingManifest(t *testing.T) {
	cfg := testConfig()
	cfg.PageManifest = "does-not-exist.yaml"
	_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "load page")
}

func TestNewWithRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.PayloadBackend = config.PayloadBackendRedis
	cfg.RedisAddr = mr.Addr()
	cfg.PageSession = "s1"
	a := newApp(t, cfg)

	live, err := a.Pool.SetSlotText(context.Background(), "demo2", "edited")
	require.NoError(t, err)
	assert.False(t, live)

	keys := mr.Keys()
	assert.Equal(t, []string{"embedpool:payload:s1:demo2"}, keys)
}

func TestNewRedisUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.PayloadBackend = config.PayloadBackendRedis
	cfg.RedisAddr = "127.0.0.1:1"
	_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "failed to connect redis")
}

func TestRunReconcilesAndStopsOnCancel(t *testing.T) {
	a := newApp(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan []string, 1)
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx, func(ctx context.Context) error {
			var names []string
			_ = eventloop.Do(ctx, a.Loop, func() {
				names = a.Pool.Snapshot(ctx).AttachedSlots()
			})
			started <- names
			<-ctx.Done()
			return nil
		})
	}()

	select {
	case names := <-started:
		assert.Len(t, names, 3)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not start")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunUsesManifestViewport(t *testing.T) {
	a := newApp(t, testConfig())
	assert.Equal(t, models.Viewport{Height: 900, Width: 1280}, a.Document.Viewport())
}
