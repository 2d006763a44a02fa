package api

import (
	"net/http"
	"time"

	"github.com/patrickwarner/embedpool/internal/middleware"
	"go.uber.org/zap"
)

// Health is the body of /health.
type Health struct {
	Status   string `json:"status"`
	Frames   int    `json:"frames"`
	Attached int    `json:"attached"`
	Passes   uint64 `json:"passes"`
}

// HealthHandler reports whether the event loop is serving tasks, with a
// summary of the pool.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"

	var h Health
	err := s.onLoop(r.Context(), func() {
		snap := s.Pool.Snapshot(r.Context())
		h = Health{
			Status:   "ok",
			Frames:   len(snap.Frames),
			Attached: len(snap.AttachedSlots()),
			Passes:   snap.Passes,
		}
	})
	if err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Warn("health check", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, Health{Status: "event loop unavailable"})
		s.observe(endpoint, r.Method, http.StatusServiceUnavailable, start)
		return
	}
	writeJSON(w, http.StatusOK, h)
	s.observe(endpoint, r.Method, http.StatusOK, start)
}
