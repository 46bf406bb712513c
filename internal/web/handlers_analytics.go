package web

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/gradebook/internal/logging"
)

// handleAnalytics returns the summary over the whole working set. Table
// filters do not apply.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Analytics())
}

// handleReload lists the store again and replaces the working set.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	n, err := s.service.Reload(r.Context())
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	logging.FromContext(r.Context()).Info("working set reloaded on request",
		"records", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, map[string]int{"records": n})
}
