package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// so components never touch the global Prometheus collectors directly.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Reconcile metrics
	IncrementReconciles(outcome string)
	RecordReconcileLatency(duration time.Duration)
	IncrementFrameTransition(kind string)
	SetFramesAttached(n int)
	IncrementStuckReloads()
	IncrementSlotSkips(reason string)

	// Edit state metrics
	IncrementCaptures(outcome string)
	IncrementRestores(outcome string)
	IncrementPersistErrors()

	// Scheduling metrics
	IncrementScrollEvents(decision string)

	// Rate limiting metrics
	IncrementRateLimitHits(client string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementReconciles(outcome string) {
	ReconcileCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordReconcileLatency(duration time.Duration) {
	ReconcileLatency.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementFrameTransition(kind string) {
	FrameTransitions.WithLabelValues(kind).Inc()
}

func (r *PrometheusRegistry) SetFramesAttached(n int) {
	FramesAttached.Set(float64(n))
}

func (r *PrometheusRegistry) IncrementStuckReloads() {
	StuckReloads.Inc()
}

func (r *PrometheusRegistry) IncrementSlotSkips(reason string) {
	SlotSkips.WithLabelValues(reason).Inc()
}

func (r *PrometheusRegistry) IncrementCaptures(outcome string) {
	CaptureCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementRestores(outcome string) {
	RestoreCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementPersistErrors() {
	PersistErrors.Inc()
}

func (r *PrometheusRegistry) IncrementScrollEvents(decision string) {
	ScrollEvents.WithLabelValues(decision).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(client string) {
	RateLimitHits.WithLabelValues(client).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementReconciles(outcome string)                                   {}
func (r *NoOpRegistry) RecordReconcileLatency(duration time.Duration)                        {}
func (r *NoOpRegistry) IncrementFrameTransition(kind string)                                 {}
func (r *NoOpRegistry) SetFramesAttached(n int)                                              {}
func (r *NoOpRegistry) IncrementStuckReloads()                                               {}
func (r *NoOpRegistry) IncrementSlotSkips(reason string)                                     {}
func (r *NoOpRegistry) IncrementCaptures(outcome string)                                     {}
func (r *NoOpRegistry) IncrementRestores(outcome string)                                     {}
func (r *NoOpRegistry) IncrementPersistErrors()                                              {}
func (r *NoOpRegistry) IncrementScrollEvents(decision string)                                {}
func (r *NoOpRegistry) IncrementRateLimitHits(client string)                                 {}
