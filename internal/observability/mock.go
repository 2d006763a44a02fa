package observability

import (
	"sync"
	"time"
)

// RecordingRegistry is a MetricsRegistry for tests that counts every call by
// metric and label so assertions can check what a component reported.
type RecordingRegistry struct {
	mu       sync.Mutex
	counts   map[string]int
	attached int
}

// NewRecordingRegistry creates an empty RecordingRegistry.
func NewRecordingRegistry() *RecordingRegistry {
	return &RecordingRegistry{counts: make(map[string]int)}
}

func (m *RecordingRegistry) inc(key string) {
	m.mu.Lock()
	m.counts[key]++
	m.mu.Unlock()
}

// Count returns how often the metric/label pair was recorded, e.g. "restores/injected".
func (m *RecordingRegistry) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

// Attached returns the last value passed to SetFramesAttached.
func (m *RecordingRegistry) Attached() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached
}

func (m *RecordingRegistry) IncrementRequests(endpoint, method, status string) {
	m.inc("requests/" + endpoint + "/" + status)
}
func (m *RecordingRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *RecordingRegistry) IncrementReconciles(outcome string)                                   { m.inc("reconciles/" + outcome) }
func (m *RecordingRegistry) RecordReconcileLatency(duration time.Duration)                        {}
func (m *RecordingRegistry) IncrementFrameTransition(kind string)                                 { m.inc("transitions/" + kind) }
func (m *RecordingRegistry) IncrementStuckReloads()                                               { m.inc("stuck_reloads") }
func (m *RecordingRegistry) IncrementSlotSkips(reason string)                                     { m.inc("slot_skips/" + reason) }
func (m *RecordingRegistry) IncrementCaptures(outcome string)                                     { m.inc("captures/" + outcome) }
func (m *RecordingRegistry) IncrementRestores(outcome string)                                     { m.inc("restores/" + outcome) }
func (m *RecordingRegistry) IncrementPersistErrors()                                              { m.inc("persist_errors") }
func (m *RecordingRegistry) IncrementScrollEvents(decision string)                                { m.inc("scroll/" + decision) }
func (m *RecordingRegistry) IncrementRateLimitHits(client string)                                 { m.inc("ratelimit_hits") }

func (m *RecordingRegistry) SetFramesAttached(n int) {
	m.mu.Lock()
	m.attached = n
	m.mu.Unlock()
}
