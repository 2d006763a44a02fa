// Package app wires the frame pool and its collaborators from configuration.
// Both binaries build on it.
package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/patrickwarner/embedpool/internal/config"
	"github.com/patrickwarner/embedpool/internal/db"
	"github.com/patrickwarner/embedpool/internal/embed"
	"github.com/patrickwarner/embedpool/internal/embed/sim"
	"github.com/patrickwarner/embedpool/internal/eventloop"
	"github.com/patrickwarner/embedpool/internal/logic/editstate"
	"github.com/patrickwarner/embedpool/internal/logic/pool"
	"github.com/patrickwarner/embedpool/internal/logic/ratelimit"
	"github.com/patrickwarner/embedpool/internal/logic/scheduler"
	"github.com/patrickwarner/embedpool/internal/models"
	"github.com/patrickwarner/embedpool/internal/observability"
	"github.com/patrickwarner/embedpool/internal/page"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// App holds the running pool.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Session   string
	Document  *page.Document
	Loop      *eventloop.Loop
	Store     *editstate.Store
	Blobs     *editstate.BlobRegistry
	Pool      *pool.FramePool
	Scheduler *scheduler.Scheduler
	Limiter   *ratelimit.ClientLimiter
	Metrics   observability.MetricsRegistry

	redis *db.RedisStore
}

// Option customises New.
type Option func(*options)

type options struct {
	factory embed.Factory
	metrics observability.MetricsRegistry
	doc     *page.Document
}

// WithFactory replaces the simulated targets.
func WithFactory(f embed.Factory) Option {
	return func(o *options) { o.factory = f }
}

// WithMetrics replaces the Prometheus registry.
func WithMetrics(m observability.MetricsRegistry) Option {
	return func(o *options) { o.metrics = m }
}

// WithDocument uses doc instead of loading cfg.PageManifest.
func WithDocument(doc *page.Document) Option {
	return func(o *options) { o.doc = doc }
}

// New loads the page and builds the pool. Reconcile passes triggered later
// run with ctx.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observability.NewPrometheusRegistry()
	}

	a := &App{Config: cfg, Logger: logger, Metrics: o.metrics, Session: cfg.PageSession}
	if a.Session == "" {
		a.Session = uuid.NewString()
	}

	doc := o.doc
	if doc == nil {
		var err error
		doc, err = page.LoadManifest(cfg.PageManifest)
		if err != nil {
			return nil, fmt.Errorf("load page: %w", err)
		}
	}
	if doc.Viewport().Height <= 0 {
		doc.SetViewport(initialViewport(cfg))
	}
	a.Document = doc

	elements, err := doc.Slots()
	if err != nil {
		return nil, fmt.Errorf("scan page: %w", err)
	}
	slots := make([]page.SlotElement, len(elements))
	for i, el := range elements {
		slots[i] = el
	}

	backend, err := a.backend(ctx)
	if err != nil {
		return nil, err
	}

	a.Loop = eventloop.New(logger.Named("loop"))
	storeOpts := []editstate.Option{
		editstate.WithMetrics(a.Metrics),
		editstate.WithReadyTimeout(cfg.ReadyTimeout, ratelimit.RealClock()),
	}
	switch cfg.PayloadMode {
	case config.PayloadModeAttribute:
	case config.PayloadModeURI:
		a.Blobs = editstate.NewBlobRegistry()
		storeOpts = append(storeOpts, editstate.WithURIMode(a.Blobs))
	default:
		a.Close()
		return nil, fmt.Errorf("unknown payload mode %q", cfg.PayloadMode)
	}
	a.Store = editstate.New(backend, a.Loop, logger.Named("editstate"), storeOpts...)

	factory := o.factory
	if factory == nil {
		simOpts := sim.Options{
			LoadDelay:  cfg.SimLoadDelay,
			ReadyDelay: cfg.SimReadyDelay,
			ReadyTicks: cfg.SimReadyTicks,
		}
		if a.Blobs != nil {
			simOpts.Resolver = a.Blobs
		}
		factory = sim.Factory(simOpts)
	}

	size := cfg.PoolSize
	if size <= 0 {
		size = pool.SizeFor(doc.Viewport().Height, cfg.EditorHeight, cfg.MaxFrames)
	}

	a.Pool, err = pool.New(pool.Deps{
		Layout:    doc,
		Elements:  slots,
		Store:     a.Store,
		Factory:   factory,
		Indicator: logIndicator{logger: logger.Named("indicator")},
		Logger:    logger.Named("pool"),
		Metrics:   a.Metrics,
		Sampler:   observability.SamplerForEnv(),
	}, pool.Config{Size: size, EditorHeight: cfg.EditorHeight})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create pool: %w", err)
	}

	a.Scheduler = scheduler.New(ctx, a.Pool, a.Loop, scheduler.Options{
		Interval: cfg.ThrottleInterval,
		Logger:   logger.Named("scheduler"),
		Metrics:  a.Metrics,
	})
	a.Limiter = ratelimit.NewClientLimiter(ratelimit.Config{
		Capacity:   cfg.RateLimitCapacity,
		RefillRate: cfg.RateLimitRefillRate,
		Enabled:    cfg.RateLimitEnabled,
	}, a.Metrics)

	logger.Info("embed pool ready",
		zap.String("session", a.Session),
		zap.Int("frames", size),
		zap.Int("slots", len(slots)),
		zap.String("payload_mode", cfg.PayloadMode),
		zap.String("payload_backend", cfg.PayloadBackend))
	return a, nil
}

func (a *App) backend(ctx context.Context) (editstate.Backend, error) {
	switch a.Config.PayloadBackend {
	case config.PayloadBackendMemory:
		return editstate.AttributeBackend{}, nil
	case config.PayloadBackendRedis:
		store, err := db.InitRedis(ctx, a.Config.RedisAddr, a.Session, a.Config.PayloadTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		a.redis = store
		return editstate.RedisBackend{Store: store}, nil
	default:
		return nil, fmt.Errorf("unknown payload backend %q", a.Config.PayloadBackend)
	}
}

// Service is a long-running component started alongside the event loop. It
// must return once ctx is done.
type Service func(ctx context.Context) error

// Run starts the event loop, performs the initial reconcile and runs the
// services until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context, services ...Service) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Loop.Run(gctx) })

	if err := a.Scheduler.Start(gctx, a.Document.Viewport()); err != nil {
		a.Loop.Stop()
		_ = g.Wait()
		return err
	}

	for _, svc := range services {
		svc := svc
		g.Go(func() error { return svc(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		a.Scheduler.Stop()
		a.Loop.Stop()
		return nil
	})
	return g.Wait()
}

// Close releases external connections.
func (a *App) Close() {
	a.redis.Close()
}

type logIndicator struct {
	logger *zap.Logger
}

func (l logIndicator) ShowLoading(slot string) {
	l.logger.Debug("loading", zap.String("slot", slot))
}

func (l logIndicator) HideLoading(slot string) {
	l.logger.Debug("loaded", zap.String("slot", slot))
}

func initialViewport(cfg config.Config) models.Viewport {
	return models.Viewport{Height: cfg.ViewportHeight, Width: cfg.ViewportWidth}
}
