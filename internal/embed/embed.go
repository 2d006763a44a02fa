// Package embed defines the contract between the frame pool and the embedded
// editor application running inside each pooled frame.
//
// The editor itself is opaque. The pool only navigates a frame to a source
// descriptor, waits for the load-completed signal, and, once the editor has
// finished its own initialization, reads or replaces the editable text.
package embed

import "github.com/patrickwarner/embedpool/internal/models"

// Editor is the editable document exposed by a ready target.
type Editor interface {
	Text() (string, error)
	SetText(text string) error
}

// Target is the embedded application hosted by one pooled frame.
//
// Navigate and Reload reset Loaded and readiness synchronously, so
// subscriptions made right after them only observe the new document.
// Callbacks may be invoked on any goroutine.
type Target interface {
	// Navigate starts loading source.
	Navigate(source string)
	// Reload reloads the current source.
	Reload()
	// Loaded reports whether the current document finished loading.
	Loaded() bool
	// OnLoad calls fn once, when the current navigation completes.
	OnLoad(fn func()) (cancel func())
	// OnReady calls fn once, as soon as the editor is ready. It fires
	// immediately if the editor is already ready.
	OnReady(fn func(Editor)) (cancel func())
	// Editor returns the editor if it is ready.
	Editor() (Editor, bool)

	// Place positions the frame over a slot.
	Place(r models.Rect)
	// Show expands the frame to the given height and makes it visible.
	Show(height float64)
	// Collapse squashes the frame so it stops rendering.
	Collapse()
}

// Indicator shows a loading placeholder inside a slot while its frame loads.
// It is purely cosmetic.
type Indicator interface {
	ShowLoading(slot string)
	HideLoading(slot string)
}

// NopIndicator is an Indicator that does nothing.
type NopIndicator struct{}

func (NopIndicator) ShowLoading(string) {}
func (NopIndicator) HideLoading(string) {}

// Factory builds the target for one pooled frame.
type Factory func(id models.FrameID) Target
