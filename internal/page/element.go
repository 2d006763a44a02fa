package page

import (
	"sync"

	"github.com/patrickwarner/embedpool/internal/models"
)

// Attribute names read from slot elements.
const (
	AttrSource  = "source"
	AttrPayload = "payload"
)

// SlotElement is the part of a document element the pool and the edit state
// store touch: its name and its attributes.
type SlotElement interface {
	Name() string
	Attr(name string) (string, bool)
	SetAttr(name, value string)
	RemoveAttr(name string)
}

// Element is a node of the host document. Offsets are relative to Parent,
// the element's offset parent; a nil Parent means the document body.
type Element struct {
	ID      string
	Classes []string
	Parent  *Element

	OffsetTop    float64
	OffsetLeft   float64
	OffsetHeight float64
	OffsetWidth  float64

	mu       sync.RWMutex
	attrs    map[string]string
	detached bool
}

var _ SlotElement = (*Element)(nil)

// NewElement creates an element with the given id and classes.
func NewElement(id string, classes ...string) *Element {
	return &Element{ID: id, Classes: classes, attrs: make(map[string]string)}
}

// Name returns the element id.
func (e *Element) Name() string { return e.ID }

// HasClass reports whether class is on the element.
func (e *Element) HasClass(class string) bool {
	for _, c := range e.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// Attr returns an attribute value.
func (e *Element) Attr(name string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.attrs[name]
	return v, ok
}

// SetAttr sets an attribute value.
func (e *Element) SetAttr(name, value string) {
	e.mu.Lock()
	if e.attrs == nil {
		e.attrs = make(map[string]string)
	}
	e.attrs[name] = value
	e.mu.Unlock()
}

// RemoveAttr deletes an attribute.
func (e *Element) RemoveAttr(name string) {
	e.mu.Lock()
	delete(e.attrs, name)
	e.mu.Unlock()
}

// Detached reports whether the element was removed from its document.
func (e *Element) Detached() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.detached
}

func (e *Element) setDetached(v bool) {
	e.mu.Lock()
	e.detached = v
	e.mu.Unlock()
}

// Absolute resolves the element's rectangle in document space by summing
// offsets along the offset-parent chain.
func (e *Element) Absolute() (models.Rect, error) {
	r := models.Rect{Height: e.OffsetHeight, Width: e.OffsetWidth}
	depth := 0
	for el := e; el != nil; el = el.Parent {
		if el.Detached() {
			return models.Rect{}, ErrDetached
		}
		if depth > maxOffsetDepth {
			return models.Rect{}, ErrOffsetCycle
		}
		r.Top += el.OffsetTop
		r.Left += el.OffsetLeft
		depth++
	}
	return r, nil
}

const maxOffsetDepth = 256
