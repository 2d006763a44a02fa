// Package pool owns the fixed set of pooled frames and reassigns them to the
// demo slots nearest the viewport center.
//
// A FramePool is not safe for concurrent use. Every method must run on the
// event loop that also receives the targets' callbacks.
package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickwarner/embedpool/internal/embed"
	"github.com/patrickwarner/embedpool/internal/logic/editstate"
	"github.com/patrickwarner/embedpool/internal/logic/proximity"
	"github.com/patrickwarner/embedpool/internal/models"
	"github.com/patrickwarner/embedpool/internal/observability"
	"github.com/patrickwarner/embedpool/internal/page"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	// ErrLayoutUnavailable wraps geometry read failures. A pass that hits
	// one is skipped without touching the mapping.
	ErrLayoutUnavailable = errors.New("layout unavailable")
	ErrNoFrames          = errors.New("pool needs at least one frame")
	ErrUnknownSlot       = errors.New("unknown slot")
)

// Frame transition kinds reported to metrics.
const (
	TransitionAttach = "attach"
	TransitionDetach = "detach"
	TransitionReload = "reload"
	TransitionShow   = "show"
)

// Deps are the collaborators of a FramePool.
type Deps struct {
	Layout   page.Layout
	Elements []page.SlotElement
	Store    *editstate.Store
	Factory  embed.Factory

	Ranker    proximity.Ranker
	Indicator embed.Indicator
	Logger    *zap.Logger
	Metrics   observability.MetricsRegistry
	Sampler   *observability.Sampler
}

// Config sizes the pool.
type Config struct {
	Size         int
	EditorHeight float64
}

// FramePool is the frame/slot arena.
type FramePool struct {
	layout    page.Layout
	store     *editstate.Store
	ranker    proximity.Ranker
	indicator embed.Indicator
	logger    *zap.Logger
	metrics   observability.MetricsRegistry
	sampler   *observability.Sampler
	tracer    trace.Tracer

	editorHeight float64

	elements []page.SlotElement
	slots    []models.Slot
	frames   []models.Frame
	targets  []embed.Target
	// restores holds the pending restoration of each frame.
	restores []*editstate.Restoration
	// warned remembers slots already reported for a missing source.
	warned map[models.SlotID]bool

	viewport models.Viewport
	passes   uint64
}

// New scans the given slot elements and creates cfg.Size frames, all free
// and collapsed. A geometry failure here is fatal.
func New(deps Deps, cfg Config) (*FramePool, error) {
	if cfg.Size < 1 {
		return nil, ErrNoFrames
	}
	if deps.Layout == nil || deps.Store == nil || deps.Factory == nil {
		return nil, errors.New("pool requires a layout, a store and a target factory")
	}

	p := &FramePool{
		layout:       deps.Layout,
		store:        deps.Store,
		ranker:       deps.Ranker,
		indicator:    deps.Indicator,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		sampler:      deps.Sampler,
		tracer:       observability.Tracer("embedpool/pool"),
		editorHeight: cfg.EditorHeight,
		elements:     deps.Elements,
		warned:       make(map[models.SlotID]bool),
	}
	if p.ranker == nil {
		p.ranker = proximity.CenterRanker{}
	}
	if p.indicator == nil {
		p.indicator = embed.NopIndicator{}
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.metrics == nil {
		p.metrics = observability.NewNoOpRegistry()
	}

	p.slots = make([]models.Slot, len(deps.Elements))
	for i, el := range deps.Elements {
		r, err := p.layout.Geometry(el)
		if err != nil {
			return nil, fmt.Errorf("%w: scan slot %s: %w", ErrLayoutUnavailable, el.Name(), err)
		}
		src, _ := el.Attr(page.AttrSource)
		p.slots[i] = models.Slot{
			ID:       models.SlotID(i),
			Name:     el.Name(),
			Geometry: r,
			Source:   src,
			Frame:    models.NoFrame,
		}
	}

	p.frames = make([]models.Frame, cfg.Size)
	p.targets = make([]embed.Target, cfg.Size)
	p.restores = make([]*editstate.Restoration, cfg.Size)
	for i := range p.frames {
		id := models.FrameID(i)
		p.frames[i] = models.Frame{ID: id, Slot: models.NoSlot, Visibility: models.Hidden, Collapsed: true}
		p.targets[i] = deps.Factory(id)
		p.targets[i].Collapse()
	}

	p.logger.Info("frame pool created",
		zap.Int("frames", len(p.frames)),
		zap.Int("slots", len(p.slots)),
		zap.Float64("editor_height", p.editorHeight))
	return p, nil
}

// SizeFor derives the pool size from how many editors fit in the viewport,
// clamped to [1, maxFrames].
func SizeFor(viewportHeight, editorHeight float64, maxFrames int) int {
	if maxFrames < 1 {
		maxFrames = 1
	}
	if editorHeight <= 0 {
		return 1
	}
	n := int(viewportHeight / editorHeight)
	if n < 1 {
		return 1
	}
	if n > maxFrames {
		return maxFrames
	}
	return n
}

// Reconcile moves frames so the slots nearest the viewport center hold them.
func (p *FramePool) Reconcile(ctx context.Context, vp models.Viewport) error {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "pool.Reconcile", trace.WithAttributes(
		attribute.Float64("viewport.scroll_top", vp.ScrollTop),
		attribute.Float64("viewport.height", vp.Height),
	))
	defer span.End()
	defer func() { p.metrics.RecordReconcileLatency(time.Since(start)) }()

	// 1. refresh geometry before mutating anything
	geoms := make([]models.Rect, len(p.slots))
	for i, el := range p.elements {
		r, err := p.layout.Geometry(el)
		if err != nil {
			p.metrics.IncrementReconciles("layout_error")
			span.RecordError(err)
			span.SetStatus(codes.Error, "layout unavailable")
			return fmt.Errorf("%w: slot %s: %w", ErrLayoutUnavailable, el.Name(), err)
		}
		geoms[i] = r
	}

	eligible := make([]models.Slot, 0, len(p.slots))
	for i := range p.slots {
		s := &p.slots[i]
		s.Geometry = geoms[i]
		s.Source, _ = p.elements[i].Attr(page.AttrSource)
		if s.Source == "" {
			p.reportMissingSource(s)
			continue
		}
		delete(p.warned, s.ID)
		eligible = append(eligible, *s)
	}

	ranked := p.ranker.Rank(eligible, vp)
	winners := proximity.Winners(ranked, len(p.frames))
	isWinner := make(map[models.SlotID]bool, len(winners))
	for _, id := range winners {
		isWinner[id] = true
	}

	// 2. detach losers first so their frames are free for step 4
	detached := 0
	for i := range p.slots {
		s := &p.slots[i]
		if s.Attached() && !isWinner[s.ID] {
			p.evict(ctx, s.ID)
			detached++
		}
	}

	// 3 and 4, in rank order
	attached, reloaded := 0, 0
	for _, id := range winners {
		s := &p.slots[id]
		if s.Attached() {
			if p.stuckHidden(s.Frame) {
				p.reload(ctx, s.Frame)
				reloaded++
			}
			continue
		}
		fid, ok := p.freeFrame()
		if !ok {
			// unreachable while len(winners) <= len(frames)
			p.logger.Error("no free frame for winner", zap.String("slot", s.Name))
			continue
		}
		p.attach(ctx, id, fid)
		attached++
	}

	p.viewport = vp
	p.passes++
	p.metrics.IncrementReconciles("ok")
	p.metrics.SetFramesAttached(len(winners))
	span.SetAttributes(
		attribute.Int("slots.eligible", len(eligible)),
		attribute.Int("frames.attached", attached),
		attribute.Int("frames.detached", detached),
		attribute.Int("frames.reloaded", reloaded),
	)

	if p.sampler.ShouldSample() {
		p.logger.Debug("reconcile pass",
			zap.Uint64("pass", p.passes),
			zap.Float64("center", vp.Center()),
			zap.Int("attached", attached),
			zap.Int("detached", detached),
			zap.Int("reloaded", reloaded),
			zap.Duration("took", time.Since(start)))
	}
	return nil
}

func (p *FramePool) reportMissingSource(s *models.Slot) {
	p.metrics.IncrementSlotSkips("missing_source")
	if p.warned[s.ID] {
		return
	}
	p.warned[s.ID] = true
	p.logger.Warn("slot has no source descriptor, skipping", zap.String("slot", s.Name))
}

func (p *FramePool) freeFrame() (models.FrameID, bool) {
	for i := range p.frames {
		if p.frames[i].Free() {
			return p.frames[i].ID, true
		}
	}
	return models.NoFrame, false
}

// evict saves the slot's edit state and frees its frame.
func (p *FramePool) evict(ctx context.Context, sid models.SlotID) {
	s := &p.slots[sid]
	fid := s.Frame
	fr := &p.frames[fid]
	tgt := p.targets[fid]
	el := p.elements[sid]

	if p.restores[fid].AwaitingInjection() {
		// the editor still shows the default scene; keep the stored payload
		p.logger.Debug("restore pending, keeping stored payload", zap.String("slot", s.Name))
		p.metrics.IncrementCaptures(editstate.OutcomePending)
	} else if payload, ok := p.store.Capture(tgt); ok {
		if err := p.store.Persist(ctx, el, &payload); err != nil {
			p.logger.Warn("persist on evict failed", zap.String("slot", s.Name), zap.Error(err))
		}
	}

	tgt.Collapse()
	fr.Visibility = models.Hidden
	fr.Collapsed = true
	p.cancelPending(fid)

	fr.Slot = models.NoSlot
	fr.PendingLoad = false
	fr.Generation++
	s.Frame = models.NoFrame
	p.indicator.HideLoading(s.Name)
	p.metrics.IncrementFrameTransition(TransitionDetach)
}

// attach moves a free frame onto a slot and starts loading it.
func (p *FramePool) attach(ctx context.Context, sid models.SlotID, fid models.FrameID) {
	s := &p.slots[sid]
	fr := &p.frames[fid]

	fr.Slot = sid
	s.Frame = fid
	p.targets[fid].Place(s.Geometry)
	p.indicator.ShowLoading(s.Name)
	p.navigate(ctx, fid, s.Source)
	p.metrics.IncrementFrameTransition(TransitionAttach)
}

// stuckHidden reports a frame whose document finished loading while the
// frame stayed collapsed and no load signal arrived. A signalled load whose
// callback is still queued, or one waiting for its payload, is not stuck.
func (p *FramePool) stuckHidden(fid models.FrameID) bool {
	return p.frames[fid].Collapsed &&
		p.targets[fid].Loaded() &&
		!p.restores[fid].LoadSignalled()
}

func (p *FramePool) reload(ctx context.Context, fid models.FrameID) {
	s := &p.slots[p.frames[fid].Slot]
	p.logger.Info("frame loaded but hidden, reloading",
		zap.Int("frame", int(fid)), zap.String("slot", s.Name))
	p.cancelPending(fid)
	p.indicator.ShowLoading(s.Name)
	p.navigate(ctx, fid, s.Source)
	p.metrics.IncrementStuckReloads()
	p.metrics.IncrementFrameTransition(TransitionReload)
}

// navigate points the frame's target at source under a new generation and
// arranges for restoration. Navigation happens before subscribing so the
// callbacks only see the new document.
func (p *FramePool) navigate(ctx context.Context, fid models.FrameID, source string) {
	fr := &p.frames[fid]
	sid := fr.Slot
	fr.Generation++
	gen := fr.Generation
	fr.Source = source
	fr.PendingLoad = true

	tgt := p.targets[fid]
	tgt.Navigate(source)

	name := p.slots[sid].Name
	p.restores[fid] = p.store.Restore(ctx, editstate.Attachment{
		Slot:   p.elements[sid],
		Target: tgt,
		Current: func() bool {
			f := p.frames[fid]
			return f.Slot == sid && f.Generation == gen
		},
		Loaded: func() { p.frames[fid].PendingLoad = false },
		Show: func() {
			p.indicator.HideLoading(name)
			p.show(fid)
		},
	})
}

func (p *FramePool) show(fid models.FrameID) {
	fr := &p.frames[fid]
	if fr.Visibility == models.Shown && !fr.Collapsed {
		return
	}
	p.targets[fid].Show(p.editorHeight)
	fr.Visibility = models.Shown
	fr.Collapsed = false
	p.metrics.IncrementFrameTransition(TransitionShow)
}

func (p *FramePool) cancelPending(fid models.FrameID) {
	p.restores[fid].Cancel()
	p.restores[fid] = nil
}
