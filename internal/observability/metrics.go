package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total API requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedpool_requests_total",
			Help: "Total debug API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embedpool_request_duration_seconds",
			Help:    "Histogram of debug API request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// reconcile passes labelled by outcome (ok, skipped)
	ReconcileCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedpool_reconcile_total",
			Help: "Total reconcile passes",
		},
		[]string{"outcome"},
	)

	// duration of a single reconcile pass
	ReconcileLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embedpool_reconcile_duration_seconds",
			Help:    "Duration of reconcile passes",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// frame attach/detach transitions
	FrameTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedpool_frame_transitions_total",
			Help: "Frame attach and detach operations",
		},
		[]string{"kind"},
	)

	// frames currently attached to a slot
	FramesAttached = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "embedpool_frames_attached",
			Help: "Number of pool frames attached to a slot",
		},
	)

	// forced reloads of frames stuck in the collapsed state
	StuckReloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "embedpool_stuck_reloads_total",
			Help: "Frames reloaded because they were loaded but still collapsed",
		},
	)

	// slots skipped for lacking a source descriptor
	SlotSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedpool_slot_skips_total",
			Help: "Slots skipped during reconcile",
		},
		[]string{"reason"},
	)

	// edit state captures labelled by outcome (captured, absent, failed)
	CaptureCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedpool_captures_total",
			Help: "Edit state captures on eviction",
		},
		[]string{"outcome"},
	)

	// restorations labelled by outcome (injected, shown, abandoned, failed)
	RestoreCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedpool_restores_total",
			Help: "Edit state restorations on attach",
		},
		[]string{"outcome"},
	)

	// errors persisting payloads to the configured backend
	PersistErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "embedpool_persist_errors_total",
			Help: "Total payload persistence errors",
		},
	)

	// scroll events seen by the scheduler, labelled immediate/deferred/coalesced
	ScrollEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedpool_scroll_events_total",
			Help: "Scroll and resize events by throttle decision",
		},
		[]string{"decision"},
	)

	// rate limit hits per API client
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedpool_ratelimit_hits_total",
			Help: "Total rate limit hits per API client",
		},
		[]string{"client"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		ReconcileCount,
		ReconcileLatency,
		FrameTransitions,
		FramesAttached,
		StuckReloads,
		SlotSkips,
		CaptureCount,
		RestoreCount,
		PersistErrors,
		ScrollEvents,
		RateLimitHits,
	)
}
