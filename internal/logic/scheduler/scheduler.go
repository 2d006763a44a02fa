// Package scheduler turns a stream of scroll and resize events into
// throttled reconcile passes on the event loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickwarner/embedpool/internal/eventloop"
	"github.com/patrickwarner/embedpool/internal/logic/ratelimit"
	"github.com/patrickwarner/embedpool/internal/models"
	"github.com/patrickwarner/embedpool/internal/observability"
	"go.uber.org/zap"
)

// DefaultInterval is the reconcile cooldown.
const DefaultInterval = 250 * time.Millisecond

// Reconciler runs one reconcile pass. *pool.FramePool implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, vp models.Viewport) error
}

// Scheduler throttles Notify calls into reconcile passes posted to the loop.
type Scheduler struct {
	reconciler Reconciler
	loop       eventloop.Poster
	throttle   *ratelimit.Throttle[models.Viewport]
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
	ctx        context.Context
}

// Options tunes a Scheduler.
type Options struct {
	Interval time.Duration
	// Clock drives the throttle; nil means real time.
	Clock   ratelimit.Clock
	Logger  *zap.Logger
	Metrics observability.MetricsRegistry
}

// New creates a scheduler for r. Passes run with ctx.
func New(ctx context.Context, r Reconciler, loop eventloop.Poster, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewNoOpRegistry()
	}
	s := &Scheduler{
		reconciler: r,
		loop:       loop,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		ctx:        ctx,
	}
	s.throttle = ratelimit.NewThrottle(opts.Interval, opts.Clock, s.schedule)
	return s
}

// Start runs the initial reconcile pass and waits for it. Slots and frames
// must exist before it is called.
func (s *Scheduler) Start(ctx context.Context, vp models.Viewport) error {
	var err error
	if doErr := eventloop.Do(ctx, s.loop, func() {
		err = s.reconciler.Reconcile(s.ctx, vp)
	}); doErr != nil {
		return fmt.Errorf("initial reconcile: %w", doErr)
	}
	if err != nil {
		return fmt.Errorf("initial reconcile: %w", err)
	}
	return nil
}

// Notify reports a scroll or resize with the resulting viewport.
func (s *Scheduler) Notify(vp models.Viewport) ratelimit.Decision {
	d := s.throttle.Call(vp)
	s.metrics.IncrementScrollEvents(string(d))
	return d
}

// Stop cancels a pending trailing pass. Notify calls after Stop are dropped.
func (s *Scheduler) Stop() {
	s.throttle.Stop()
}

func (s *Scheduler) schedule(vp models.Viewport) {
	if !s.loop.Post(func() { s.run(vp) }) {
		s.logger.Debug("event loop stopped, dropping reconcile")
	}
}

func (s *Scheduler) run(vp models.Viewport) {
	if s.ctx.Err() != nil {
		return
	}
	if err := s.reconciler.Reconcile(s.ctx, vp); err != nil {
		level := zap.ErrorLevel
		if errors.Is(err, context.Canceled) {
			level = zap.DebugLevel
		}
		s.logger.Check(level, "reconcile pass skipped").Write(
			zap.Float64("scroll_top", vp.ScrollTop),
			zap.Error(err))
	}
}
