package server

import (
	"io"
	"log"
	"net/http"

	"github.com/sweepvault/spinwheel-server/catalog"
)

// GET /admin/wheel/{wheelID}/validate
// Runs catalog validation: weight sum near 100, no inactive-only wheels,
// no nonpositive amounts. Issues are advisory; the wheel keeps serving.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	wheelID := r.PathValue("wheelID")
	v, err := s.engine.Validate(wheelID)
	if err != nil {
		writeError(w, http.StatusNotFound, "wheel not found", "WHEEL_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GET /admin/wheel/stats
// Audit aggregation over the full draw ledger plus the most recent draws.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Stats(r.Context(), s.cfg.RecentDraws)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to load stats", "STATS_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// POST /admin/wheel/{wheelID}/catalog
// Replaces a wheel's catalog from an uploaded wheel.json body. The new
// catalog takes effect for draws performed after the swap; earlier draws
// keep their recorded denormalized reward.
func (s *Server) handleCatalogImport(w http.ResponseWriter, r *http.Request) {
	wheelID := r.PathValue("wheelID")
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body", "INVALID_REQUEST")
		return
	}
	cat, err := catalog.ParseWheelFile(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_WHEEL_FILE")
		return
	}
	cat.WheelID = wheelID
	v := cat.Validate()
	if !v.Valid {
		for _, issue := range v.Issues {
			log.Printf("wheel %s: import issue: %s", wheelID, issue)
		}
	}
	if err := s.catalogs.Register(cat); err != nil {
		writeError(w, http.StatusBadGateway, "failed to store catalog", "STORE_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wheelId":    wheelID,
		"rewards":    len(cat.Rewards),
		"validation": v,
	})
}
