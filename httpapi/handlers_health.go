package httpapi

import (
	"net/http"

	"github.com/Skryldev/apikit/db"
)

// Health probes deliberately convert storage failures into structured
// payloads instead of propagating them: a probe always answers, it never
// fails the transport.

// GET /
func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    a.cfg.AppName,
		"version": a.cfg.AppVersion,
		"status":  "running",
	})
}

// GET /health — root-level probe for load balancers.
func (a *API) handleRootHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GET /api/v1/health
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "healthy",
		"version":     a.cfg.AppVersion,
		"environment": a.cfg.Environment,
	})
}

// GET /api/v1/health/db
func (a *API) handleHealthDB(w http.ResponseWriter, r *http.Request) {
	if err := a.probeDB(r); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "unhealthy",
			"database": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "connected",
	})
}

// GET /api/v1/health/ready
func (a *API) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{
		"database": a.probeDB(r) == nil,
	}

	status := "ready"
	for _, ok := range checks {
		if !ok {
			status = "not_ready"
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"checks": checks,
	})
}

// probeDB runs a trivial statement through a full session scope, so the
// probe exercises the same acquire/commit/release path as real requests.
func (a *API) probeDB(r *http.Request) error {
	return a.mgr.Scope(r.Context(), func(s *db.Session) error {
		var one int
		return s.QueryRow(r.Context(), "SELECT 1").Scan(&one)
	})
}
