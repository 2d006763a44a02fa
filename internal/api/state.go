package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/patrickwarner/embedpool/internal/middleware"
	"github.com/patrickwarner/embedpool/internal/models"
	"go.uber.org/zap"
)

// StateHandler returns a snapshot of the pool.
func (s *Server) StateHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "state"

	var snap models.PoolSnapshot
	if err := s.onLoop(r.Context(), func() { snap = s.Pool.Snapshot(r.Context()) }); err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Error("snapshot", zap.Error(err))
		http.Error(w, "event loop unavailable", http.StatusServiceUnavailable)
		s.observe(endpoint, r.Method, http.StatusServiceUnavailable, start)
		return
	}
	writeJSON(w, http.StatusOK, snap)
	s.observe(endpoint, r.Method, http.StatusOK, start)
}

// ScrollRequest moves the viewport. Height and Width are optional and, when
// set, resize it first.
type ScrollRequest struct {
	ScrollTop float64 `json:"scroll_top"`
	Height    float64 `json:"height,omitempty"`
	Width     float64 `json:"width,omitempty"`
}

// ScrollResponse reports the resulting viewport and what the scheduler did.
type ScrollResponse struct {
	Viewport models.Viewport `json:"viewport"`
	Decision string          `json:"decision"`
}

// ScrollHandler scrolls the document and notifies the scheduler.
func (s *Server) ScrollHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "scroll"

	var req ScrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		s.observe(endpoint, r.Method, http.StatusBadRequest, start)
		return
	}
	if req.Height < 0 || req.Width < 0 {
		http.Error(w, "viewport size must not be negative", http.StatusBadRequest)
		s.observe(endpoint, r.Method, http.StatusBadRequest, start)
		return
	}

	if req.Height > 0 || req.Width > 0 {
		vp := s.Page.Viewport()
		if req.Height > 0 {
			vp.Height = req.Height
		}
		if req.Width > 0 {
			vp.Width = req.Width
		}
		s.Page.SetViewport(vp)
	}
	vp := s.Page.ScrollTo(req.ScrollTop)
	decision := s.Scheduler.Notify(vp)

	middleware.LoggerFromRequest(r, s.Logger).Debug("scroll",
		zap.Float64("scroll_top", vp.ScrollTop),
		zap.String("decision", string(decision)))
	writeJSON(w, http.StatusOK, ScrollResponse{Viewport: vp, Decision: string(decision)})
	s.observe(endpoint, r.Method, http.StatusOK, start)
}

// RateLimitStatsHandler lists per-client rate limiting statistics.
func (s *Server) RateLimitStatsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeJSON(w, http.StatusOK, s.Limiter.GetStats())
	s.observe("ratelimit", r.Method, http.StatusOK, start)
}
