package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickwarner/embedpool/internal/config"
	"github.com/patrickwarner/embedpool/internal/eventloop"
	"github.com/patrickwarner/embedpool/internal/logic/pool"
	"github.com/patrickwarner/embedpool/internal/logic/ratelimit"
	"github.com/patrickwarner/embedpool/internal/logic/scheduler"
	"github.com/patrickwarner/embedpool/internal/middleware"
	"github.com/patrickwarner/embedpool/internal/models"
	"github.com/patrickwarner/embedpool/internal/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// loopTimeout bounds how long a handler waits for the event loop.
const loopTimeout = 2 * time.Second

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Pool      *pool.FramePool
	Loop      eventloop.Poster
	Scheduler *scheduler.Scheduler
	Page      Scroller
	Limiter   *ratelimit.ClientLimiter
	Metrics   observability.MetricsRegistry
	Config    config.Config
}

// Scroller moves the host document's viewport.
type Scroller interface {
	Viewport() models.Viewport
	SetViewport(vp models.Viewport)
	ScrollTo(top float64) models.Viewport
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, p *pool.FramePool, loop eventloop.Poster, sched *scheduler.Scheduler, page Scroller, limiter *ratelimit.ClientLimiter, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if limiter == nil {
		limiter = ratelimit.NewClientLimiter(ratelimit.Config{Enabled: false}, metrics)
	}
	return &Server{
		Logger:    logger,
		Pool:      p,
		Loop:      loop,
		Scheduler: sched,
		Page:      page,
		Limiter:   limiter,
		Metrics:   metrics,
		Config:    cfg,
	}
}

// Router builds the HTTP routes. Mutating routes are rate limited per client.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))

	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	// metrics endpoint (includes rate limiting metrics)
	r.Handle("/metrics", promhttp.Handler())

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.StateHandler).Methods("GET")
	api.HandleFunc("/ratelimit", s.RateLimitStatsHandler).Methods("GET")
	api.HandleFunc("/slots/{name}/text", s.GetSlotTextHandler).Methods("GET")

	limited := middleware.RateLimit(s.Limiter, s.Logger)
	api.Handle("/scroll", limited(http.HandlerFunc(s.ScrollHandler))).Methods("POST")
	api.Handle("/slots/{name}/text", limited(http.HandlerFunc(s.SetSlotTextHandler))).Methods("PUT")
	api.Handle("/slots/{name}/payload", limited(http.HandlerFunc(s.ResetSlotHandler))).Methods("DELETE")

	return otelhttp.NewHandler(r, "embedpool-api")
}

// onLoop runs fn on the event loop and waits for it.
func (s *Server) onLoop(ctx context.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, loopTimeout)
	defer cancel()
	return eventloop.Do(ctx, s.Loop, fn)
}

func (s *Server) observe(endpoint, method string, status int, start time.Time) {
	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// helper function to write JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
