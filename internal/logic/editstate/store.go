// Package editstate captures the live text of an embedded editor when its
// frame is taken away, persists it for the page session and injects it back
// when a frame returns to the slot.
package editstate

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/patrickwarner/embedpool/internal/embed"
	"github.com/patrickwarner/embedpool/internal/eventloop"
	"github.com/patrickwarner/embedpool/internal/logic/ratelimit"
	"github.com/patrickwarner/embedpool/internal/observability"
	"github.com/patrickwarner/embedpool/internal/page"
	"go.uber.org/zap"
)

// SceneParam is the source descriptor parameter rewritten in URI mode.
const SceneParam = "scene"

// AttrOriginalSource holds the source descriptor as the document declared it,
// before any URI-mode rewrite.
const AttrOriginalSource = "original-source"

// DefaultReadyTimeout is how long a loaded frame with a payload stays hidden
// waiting for its editor before it is shown without the payload.
const DefaultReadyTimeout = 10 * time.Second

// Capture and restore outcomes reported to metrics.
const (
	OutcomeCaptured  = "captured"
	OutcomeAbsent    = "absent"
	OutcomeFailed    = "failed"
	OutcomeInjected  = "injected"
	OutcomeShown     = "shown"
	OutcomeAbandoned = "abandoned"
	OutcomePending   = "pending"
	OutcomeTimeout   = "ready_timeout"
)

// Store captures, persists and restores per-slot payloads.
type Store struct {
	backend Backend
	blobs   *BlobRegistry
	loop    eventloop.Poster
	logger  *zap.Logger
	metrics observability.MetricsRegistry

	readyTimeout time.Duration
	clock        ratelimit.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithURIMode makes Persist also mint a blob URI for the payload and point
// the slot's source descriptor at it.
func WithURIMode(blobs *BlobRegistry) Option {
	return func(s *Store) { s.blobs = blobs }
}

// WithReadyTimeout bounds how long a restored frame stays hidden waiting for
// its editor. A non-positive d keeps the default, a nil clock uses real time.
func WithReadyTimeout(d time.Duration, clock ratelimit.Clock) Option {
	return func(s *Store) {
		if d > 0 {
			s.readyTimeout = d
		}
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m observability.MetricsRegistry) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a Store. Restoration callbacks are posted to loop.
func New(backend Backend, loop eventloop.Poster, logger *zap.Logger, opts ...Option) *Store {
	if backend == nil {
		backend = AttributeBackend{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend: backend,
		loop:    loop,
		logger:  logger,
		metrics: observability.NewNoOpRegistry(),

		readyTimeout: DefaultReadyTimeout,
		clock:        ratelimit.RealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// URIMode reports whether payloads are also written into source descriptors.
func (s *Store) URIMode() bool { return s.blobs != nil }

// Capture reads the editor text of target. It reports false when the target
// has not loaded, its editor is not ready, or reading fails in any way.
func (s *Store) Capture(target embed.Target) (payload string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("capture panicked", zap.Any("panic", r))
			s.metrics.IncrementCaptures(OutcomeFailed)
			payload, ok = "", false
		}
	}()

	if target == nil || !target.Loaded() {
		s.metrics.IncrementCaptures(OutcomeAbsent)
		return "", false
	}
	ed, ready := target.Editor()
	if !ready || ed == nil {
		s.metrics.IncrementCaptures(OutcomeAbsent)
		return "", false
	}
	text, err := ed.Text()
	if err != nil {
		s.logger.Warn("capture failed", zap.Error(err))
		s.metrics.IncrementCaptures(OutcomeFailed)
		return "", false
	}
	s.metrics.IncrementCaptures(OutcomeCaptured)
	return text, true
}

// Persist stores payload for slot, or clears it when payload is nil.
func (s *Store) Persist(ctx context.Context, slot page.SlotElement, payload *string) error {
	if payload == nil {
		if err := s.backend.Clear(ctx, slot); err != nil {
			s.metrics.IncrementPersistErrors()
			return fmt.Errorf("clear payload for %s: %w", slot.Name(), err)
		}
		if s.URIMode() {
			s.restoreOriginalSource(slot)
		}
		return nil
	}

	if err := s.backend.Save(ctx, slot, *payload); err != nil {
		s.metrics.IncrementPersistErrors()
		return fmt.Errorf("persist payload for %s: %w", slot.Name(), err)
	}
	if s.URIMode() {
		s.rewriteSource(slot, *payload)
	}
	return nil
}

func (s *Store) rewriteSource(slot page.SlotElement, payload string) {
	src, ok := slot.Attr(page.AttrSource)
	if !ok {
		return
	}
	if _, saved := slot.Attr(AttrOriginalSource); !saved {
		slot.SetAttr(AttrOriginalSource, src)
	}
	s.revokeScene(src)
	uri := s.blobs.Put(payload)
	slot.SetAttr(page.AttrSource, ReplaceURLParam(src, SceneParam, uri))
}

func (s *Store) restoreOriginalSource(slot page.SlotElement) {
	if src, ok := slot.Attr(page.AttrSource); ok {
		s.revokeScene(src)
	}
	if orig, ok := slot.Attr(AttrOriginalSource); ok {
		slot.SetAttr(page.AttrSource, orig)
		slot.RemoveAttr(AttrOriginalSource)
	}
}

func (s *Store) revokeScene(src string) {
	if scene, ok := URLParam(src, SceneParam); ok && strings.HasPrefix(scene, BlobScheme) {
		s.blobs.Revoke(scene)
	}
}

// Payload returns the persisted payload for slot.
func (s *Store) Payload(ctx context.Context, slot page.SlotElement) (string, bool, error) {
	return s.backend.Load(ctx, slot)
}

// Attachment describes a frame just attached to a slot.
type Attachment struct {
	Slot   page.SlotElement
	Target embed.Target
	// Current reports whether the frame is still attached to Slot at the
	// generation it was attached with. Called on the loop.
	Current func() bool
	// Loaded runs on the loop when the target finishes loading.
	Loaded func()
	// Show reveals the frame. Called on the loop.
	Show func()
}

// Restoration is the pending work of one Restore call. Its methods other
// than LoadSignalled must be called on the loop.
type Restoration struct {
	cancels []func()
	timer   ratelimit.Timer
	// awaiting is set while a persisted payload has not been injected yet.
	awaiting  bool
	signalled atomic.Bool
}

// Cancel drops every pending callback.
func (r *Restoration) Cancel() {
	if r == nil {
		return
	}
	for _, c := range r.cancels {
		c()
	}
	r.cancels = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// AwaitingInjection reports whether the editor does not hold the persisted
// payload yet. Its text must not be captured in that state.
func (r *Restoration) AwaitingInjection() bool {
	return r != nil && r.awaiting
}

// LoadSignalled reports whether the target announced its load, even if the
// posted callback has not run yet.
func (r *Restoration) LoadSignalled() bool {
	return r != nil && r.signalled.Load()
}

// Restore arranges for the frame of a to be shown once its target loads and,
// if a payload is persisted for the slot, for the payload to be injected
// exactly once when the editor is ready. A frame with a payload stays hidden
// until the injection, or until the ready timeout runs out. Callbacks that
// slip past Cancel see Current() false and abandon.
func (s *Store) Restore(ctx context.Context, a Attachment) *Restoration {
	payload, has, err := s.backend.Load(ctx, a.Slot)
	if err != nil {
		s.logger.Warn("load payload failed, restoring without it",
			zap.String("slot", a.Slot.Name()), zap.Error(err))
		has = false
	}
	r := &Restoration{awaiting: has}

	r.cancels = append(r.cancels, a.Target.OnLoad(func() {
		r.signalled.Store(true)
		s.post(func() {
			if !a.Current() {
				s.metrics.IncrementRestores(OutcomeAbandoned)
				return
			}
			if a.Loaded != nil {
				a.Loaded()
			}
			if !r.awaiting {
				a.Show()
				if !has {
					s.metrics.IncrementRestores(OutcomeShown)
				}
				return
			}
			r.timer = s.clock.AfterFunc(s.readyTimeout, func() {
				s.post(func() {
					if r.awaiting && a.Current() {
						s.logger.Warn("editor not ready in time, showing without payload",
							zap.String("slot", a.Slot.Name()), zap.Duration("timeout", s.readyTimeout))
						s.metrics.IncrementRestores(OutcomeTimeout)
						a.Show()
					}
				})
			})
		})
	}))
	if !has {
		return r
	}

	injected := false
	r.cancels = append(r.cancels, a.Target.OnReady(func(ed embed.Editor) {
		s.post(func() {
			if injected {
				return
			}
			if !a.Current() {
				s.metrics.IncrementRestores(OutcomeAbandoned)
				return
			}
			injected = true
			if err := ed.SetText(payload); err != nil {
				// the payload stays protected from capture
				s.logger.Warn("inject payload failed", zap.String("slot", a.Slot.Name()), zap.Error(err))
				s.metrics.IncrementRestores(OutcomeFailed)
			} else {
				r.awaiting = false
				s.metrics.IncrementRestores(OutcomeInjected)
			}
			if r.timer != nil {
				r.timer.Stop()
				r.timer = nil
			}
			a.Show()
		})
	}))
	return r
}

func (s *Store) post(task func()) {
	if !s.loop.Post(task) {
		s.logger.Debug("event loop stopped, dropping restore callback")
	}
}
