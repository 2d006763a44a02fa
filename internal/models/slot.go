package models

// SlotID indexes a slot in the pool's slot arena. IDs follow document order,
// which is also the tie-break order when two slots are equally far from the
// viewport center.
type SlotID int

// NoSlot marks a frame that is not attached to any slot.
const NoSlot SlotID = -1

// Slot is one demo placement in the host document. Slots are created by the
// startup document scan and live for the whole page session; only their
// geometry, source descriptor and frame attachment change.
type Slot struct {
	ID SlotID `json:"id"`
	// Name is the element id of the slot in the host document (e.g. "demo6").
	Name string `json:"name"`
	// Geometry is the absolute document-space box, refreshed every reconcile pass.
	Geometry Rect `json:"geometry"`
	// Source is the URI an attached frame loads. Empty means the slot is
	// misconfigured and is skipped by reconcile.
	Source string `json:"source"`
	// Frame is the attached frame, or NoFrame.
	Frame FrameID `json:"frame"`
}

// Attached reports whether the slot currently holds a frame.
func (s Slot) Attached() bool {
	return s.Frame != NoFrame
}

// Center returns the vertical document-space center of the slot.
func (s Slot) Center() float64 {
	return s.Geometry.Top + s.Geometry.Height/2
}

// RankedSlot pairs a slot with its distance from the viewport center for a
// single reconcile pass.
type RankedSlot struct {
	Slot     SlotID  `json:"slot"`
	Distance float64 `json:"distance"`
}
