package models

// PoolSnapshot is a point-in-time copy of the pool's arenas, safe to hand to
// readers outside the event loop.
type PoolSnapshot struct {
	Viewport Viewport    `json:"viewport"`
	Slots    []SlotState `json:"slots"`
	Frames   []Frame     `json:"frames"`
	Passes   uint64      `json:"passes"`
}

// SlotState is a Slot plus whether it has persisted edit state.
type SlotState struct {
	Slot
	HasPayload bool `json:"has_payload"`
}

// AttachedSlots returns the names of all slots holding a frame, in document order.
func (p PoolSnapshot) AttachedSlots() []string {
	var names []string
	for _, s := range p.Slots {
		if s.Attached() {
			names = append(names, s.Name)
		}
	}
	return names
}
