package pool

import (
	"context"
	"fmt"

	"github.com/patrickwarner/embedpool/internal/embed"
	"github.com/patrickwarner/embedpool/internal/models"
	"github.com/patrickwarner/embedpool/internal/page"
	"go.uber.org/zap"
)

// Size returns the number of frames.
func (p *FramePool) Size() int { return len(p.frames) }

// Viewport returns the viewport of the last successful pass.
func (p *FramePool) Viewport() models.Viewport { return p.viewport }

// Target returns the target of a frame.
func (p *FramePool) Target(fid models.FrameID) embed.Target { return p.targets[fid] }

// Snapshot copies the arenas.
func (p *FramePool) Snapshot(ctx context.Context) models.PoolSnapshot {
	snap := models.PoolSnapshot{
		Viewport: p.viewport,
		Slots:    make([]models.SlotState, len(p.slots)),
		Frames:   make([]models.Frame, len(p.frames)),
		Passes:   p.passes,
	}
	for i, s := range p.slots {
		_, has, err := p.store.Payload(ctx, p.elements[i])
		if err != nil {
			p.logger.Debug("payload lookup failed", zap.String("slot", s.Name), zap.Error(err))
		}
		snap.Slots[i] = models.SlotState{Slot: s, HasPayload: has}
	}
	copy(snap.Frames, p.frames)
	for i := range snap.Frames {
		snap.Frames[i].RestorePending = p.restores[i].AwaitingInjection()
	}
	return snap
}

func (p *FramePool) slotByName(name string) (models.SlotID, error) {
	for i := range p.slots {
		if p.slots[i].Name == name {
			return p.slots[i].ID, nil
		}
	}
	return models.NoSlot, fmt.Errorf("%w: %s", ErrUnknownSlot, name)
}

// liveEditor returns the ready editor attached to sid, if any. An editor
// still waiting for its payload is not live: it shows the default scene.
func (p *FramePool) liveEditor(sid models.SlotID) (embed.Editor, bool) {
	s := p.slots[sid]
	if !s.Attached() || p.restores[s.Frame].AwaitingInjection() {
		return nil, false
	}
	return p.targets[s.Frame].Editor()
}

// SlotText returns the text of a slot: the live editor text when its frame
// is ready, otherwise the persisted payload. live reports which one.
func (p *FramePool) SlotText(ctx context.Context, name string) (text string, live bool, err error) {
	sid, err := p.slotByName(name)
	if err != nil {
		return "", false, err
	}
	if ed, ok := p.liveEditor(sid); ok {
		text, err := ed.Text()
		if err != nil {
			return "", true, fmt.Errorf("read editor of %s: %w", name, err)
		}
		return text, true, nil
	}
	text, _, err = p.store.Payload(ctx, p.elements[sid])
	return text, false, err
}

// SetSlotText replaces the text of a slot, typing into the live editor when
// there is one and persisting it otherwise. An attached frame whose editor
// is not live is navigated again so its restoration picks up the new text.
func (p *FramePool) SetSlotText(ctx context.Context, name, text string) (live bool, err error) {
	sid, err := p.slotByName(name)
	if err != nil {
		return false, err
	}
	if ed, ok := p.liveEditor(sid); ok {
		if err := ed.SetText(text); err != nil {
			return true, fmt.Errorf("write editor of %s: %w", name, err)
		}
		return true, nil
	}
	if err := p.store.Persist(ctx, p.elements[sid], &text); err != nil {
		return false, err
	}
	p.reloadSlot(ctx, sid)
	return false, nil
}

// ResetSlot discards the persisted payload of a slot. An attached frame is
// reloaded from the slot's source so the editor shows the original scene.
func (p *FramePool) ResetSlot(ctx context.Context, name string) error {
	sid, err := p.slotByName(name)
	if err != nil {
		return err
	}
	if err := p.store.Persist(ctx, p.elements[sid], nil); err != nil {
		return err
	}
	p.reloadSlot(ctx, sid)
	return nil
}

// reloadSlot refreshes the slot's source and, when it holds a frame,
// navigates the frame again so restoration reads the current payload.
func (p *FramePool) reloadSlot(ctx context.Context, sid models.SlotID) {
	s := &p.slots[sid]
	s.Source, _ = p.elements[sid].Attr(page.AttrSource)
	if !s.Attached() || s.Source == "" {
		return
	}
	fid := s.Frame
	p.cancelPending(fid)
	p.targets[fid].Collapse()
	p.frames[fid].Visibility = models.Hidden
	p.frames[fid].Collapsed = true
	p.indicator.ShowLoading(s.Name)
	p.navigate(ctx, fid, s.Source)
	p.metrics.IncrementFrameTransition(TransitionReload)
}
