// Package page models the host document that carries demo slots: elements
// with offset geometry, a scrollable viewport and a YAML manifest loader.
package page

import (
	"errors"
	"fmt"
	"sync"

	"github.com/patrickwarner/embedpool/internal/models"
)

// SlotClass marks elements that host a demo.
const SlotClass = "demo"

var (
	ErrDetached    = errors.New("element is not attached to the document")
	ErrOffsetCycle = errors.New("offset parent chain does not terminate")
	ErrMissingID   = errors.New("slot element has no id")
	ErrDuplicateID = errors.New("duplicate element id")
)

// Layout provides geometry recomputed on every reconcile pass.
type Layout interface {
	Viewport() models.Viewport
	Geometry(el SlotElement) (models.Rect, error)
}

// Document is an in-memory host document. It is safe for concurrent use:
// the scroll simulator and API move the viewport while the event loop reads
// geometry.
type Document struct {
	mu       sync.RWMutex
	elements []*Element
	byID     map[string]*Element
	viewport models.Viewport
}

var _ Layout = (*Document)(nil)

// NewDocument creates an empty document with the given viewport.
func NewDocument(vp models.Viewport) *Document {
	return &Document{byID: make(map[string]*Element), viewport: vp}
}

// Append adds el at the end of document order.
func (d *Document) Append(el *Element) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el.ID != "" {
		if _, ok := d.byID[el.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, el.ID)
		}
		d.byID[el.ID] = el
	}
	el.setDetached(false)
	d.elements = append(d.elements, el)
	return nil
}

// Remove detaches el. Geometry reads for it, or for anything offset from it,
// fail afterwards.
func (d *Document) Remove(el *Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.elements {
		if e == el {
			d.elements = append(d.elements[:i], d.elements[i+1:]...)
			break
		}
	}
	if el.ID != "" && d.byID[el.ID] == el {
		delete(d.byID, el.ID)
	}
	el.setDetached(true)
}

// ByID looks an element up by id.
func (d *Document) ByID(id string) (*Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	el, ok := d.byID[id]
	return el, ok
}

// Scan returns the elements carrying class in document order. Every match
// must have an id and readable geometry.
func (d *Document) Scan(class string) ([]*Element, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*Element
	for _, el := range d.elements {
		if !el.HasClass(class) {
			continue
		}
		if el.ID == "" {
			return nil, fmt.Errorf("scan %q at index %d: %w", class, len(out), ErrMissingID)
		}
		if _, err := el.Absolute(); err != nil {
			return nil, fmt.Errorf("scan %q: %s: %w", class, el.ID, err)
		}
		out = append(out, el)
	}
	return out, nil
}

// Slots scans for SlotClass elements.
func (d *Document) Slots() ([]*Element, error) {
	return d.Scan(SlotClass)
}

// Viewport returns the current viewport.
func (d *Document) Viewport() models.Viewport {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.viewport
}

// SetViewport replaces the viewport, e.g. after a resize.
func (d *Document) SetViewport(vp models.Viewport) {
	d.mu.Lock()
	d.viewport = vp
	d.mu.Unlock()
}

// ScrollTo moves the viewport top, clamped to the scrollable range, and
// returns the new viewport.
func (d *Document) ScrollTo(top float64) models.Viewport {
	d.mu.Lock()
	defer d.mu.Unlock()
	maxTop := d.heightLocked() - d.viewport.Height
	if top > maxTop {
		top = maxTop
	}
	if top < 0 {
		top = 0
	}
	d.viewport.ScrollTop = top
	return d.viewport
}

// Height is the bottom edge of the lowest element.
func (d *Document) Height() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.heightLocked()
}

func (d *Document) heightLocked() float64 {
	var h float64
	for _, el := range d.elements {
		r, err := el.Absolute()
		if err != nil {
			continue
		}
		if b := r.Top + r.Height; b > h {
			h = b
		}
	}
	return h
}

// Geometry returns the absolute rectangle of a slot element.
func (d *Document) Geometry(se SlotElement) (models.Rect, error) {
	el, ok := se.(*Element)
	if !ok {
		return models.Rect{}, fmt.Errorf("geometry of %s: not a document element", se.Name())
	}
	return el.Absolute()
}
