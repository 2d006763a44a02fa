package models

// FrameID indexes a frame in the pool's frame arena.
type FrameID int

// NoFrame marks a slot without an attached frame.
const NoFrame FrameID = -1

// Visibility is the shown/hidden state of a pooled frame.
type Visibility string

const (
	Hidden Visibility = "hidden"
	Shown  Visibility = "shown"
)

// Frame is one reusable embed instance. The pool creates all frames once at
// startup and only ever reassigns them.
type Frame struct {
	ID   FrameID `json:"id"`
	Slot SlotID  `json:"slot"`
	// Visibility and Collapsed track what the host renders. A collapsed frame
	// is squashed to a 1px strip instead of the full editor height.
	Visibility Visibility `json:"visibility"`
	Collapsed  bool       `json:"collapsed"`
	// PendingLoad is set between navigation and the load-completed signal.
	PendingLoad bool `json:"pending_load"`
	// RestorePending is set while a persisted payload waits to be injected.
	// It is filled in by snapshots only.
	RestorePending bool `json:"restore_pending"`
	// Source is the descriptor the frame was last navigated to.
	Source string `json:"source"`
	// Generation increases on every attach and detach. Asynchronous callbacks
	// capture it and bail out when it no longer matches.
	Generation uint64 `json:"generation"`
}

// Free reports whether the frame is available for attachment.
func (f Frame) Free() bool {
	return f.Slot == NoSlot
}
