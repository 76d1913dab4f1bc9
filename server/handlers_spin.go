package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sweepvault/spinwheel-server/ledger"
	"github.com/sweepvault/spinwheel-server/metrics"
	"github.com/sweepvault/spinwheel-server/spin"
)

// GET /wheel/{wheelID}/catalog
// Public reward list for one wheel: amounts, currencies, rarities,
// descriptions. Never includes probability weights.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	wheelID := r.PathValue("wheelID")
	rewards, err := s.engine.Catalog(wheelID)
	if err != nil {
		writeError(w, http.StatusNotFound, "wheel not found", "WHEEL_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wheelId": wheelID,
		"rewards": rewards,
	})
}

type spinRequest struct {
	AccountID string `json:"accountId"`
}

type spinResponse struct {
	Allowed   bool             `json:"allowed"`
	Source    string           `json:"source,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Remaining int              `json:"remaining"`
	Draw      *spin.DrawResult `json:"draw,omitempty"`
}

// POST /wheel/{wheelID}/spin
// Consumes one eligibility spin and performs a weighted draw. A denied
// spin is a 200 with allowed=false, not an error. If the draw fails to
// persist the consumed spin is refunded.
func (s *Server) handleSpin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ip := clientIP(r)
	if !s.limiter.allow(ip) {
		writeError(w, http.StatusTooManyRequests, "too many requests", "RATE_LIMITED")
		return
	}
	var req spinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "accountId is required", "INVALID_REQUEST")
		return
	}
	wheelID := r.PathValue("wheelID")
	if s.catalogs.Get(wheelID) == nil {
		writeError(w, http.StatusNotFound, "wheel not found", "WHEEL_NOT_FOUND")
		return
	}

	cons, err := s.tracker.CheckAndConsumeOneSpin(r.Context(), req.AccountID)
	if err != nil {
		metrics.RecordSpinDuration("failure", time.Since(start).Seconds())
		writeError(w, http.StatusBadGateway, "eligibility check failed", "ELIGIBILITY_ERROR")
		return
	}
	if !cons.Allowed {
		metrics.RecordSpinDuration("denied", time.Since(start).Seconds())
		writeJSON(w, http.StatusOK, spinResponse{
			Allowed:   false,
			Reason:    cons.Reason,
			Remaining: cons.Remaining,
		})
		return
	}

	draw, err := s.engine.PerformDraw(r.Context(), wheelID, req.AccountID, spin.Metadata{
		IP:        ip,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		// The spin was consumed but nothing was drawn: give it back.
		if rerr := s.tracker.RefundOneSpin(r.Context(), req.AccountID, cons.Source); rerr != nil {
			// Leaves the account one spin short; surfaced for manual repair.
			writeError(w, http.StatusBadGateway, "draw failed and refund failed", "DRAW_ERROR")
			metrics.RecordSpinDuration("failure", time.Since(start).Seconds())
			return
		}
		metrics.RecordSpinDuration("failure", time.Since(start).Seconds())
		writeError(w, http.StatusBadGateway, "draw failed, spin refunded", "DRAW_ERROR")
		return
	}

	metrics.SpinsTotal.WithLabelValues(wheelID, string(draw.Rarity)).Inc()
	metrics.RecordSpinDuration("success", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, spinResponse{
		Allowed:   true,
		Source:    string(cons.Source),
		Remaining: cons.Remaining,
		Draw:      draw,
	})
}

type claimRequest struct {
	AccountID string `json:"accountId"`
	DrawID    string `json:"drawId"`
}

// POST /wheel/claim
// Converts one unclaimed draw into a balance credit, at most once. A draw
// belonging to another account is indistinguishable from a missing one.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many requests", "RATE_LIMITED")
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" || req.DrawID == "" {
		writeError(w, http.StatusBadRequest, "accountId and drawId are required", "INVALID_REQUEST")
		return
	}
	res, err := s.engine.Claim(r.Context(), req.AccountID, req.DrawID)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		metrics.ClaimsTotal.WithLabelValues("not_found").Inc()
		writeError(w, http.StatusNotFound, "draw not found", "NOT_FOUND")
		return
	case errors.Is(err, ledger.ErrAlreadyClaimed):
		metrics.ClaimsTotal.WithLabelValues("already_claimed").Inc()
		writeError(w, http.StatusConflict, "reward already claimed", "ALREADY_CLAIMED")
		return
	case err != nil:
		metrics.ClaimsTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusBadGateway, "claim failed", "CLAIM_ERROR")
		return
	}
	metrics.ClaimsTotal.WithLabelValues("credited").Inc()
	writeJSON(w, http.StatusOK, res)
}

// GET /wheel/history?accountId=...&limit=20&offset=0
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "accountId is required", "INVALID_REQUEST")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	draws, total, err := s.engine.History(r.Context(), accountID, limit, offset)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to load history", "HISTORY_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"draws":  draws,
		"total":  total,
		"offset": offset,
	})
}

// GET /wallet/balance?accountId=...
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "accountId is required", "INVALID_REQUEST")
		return
	}
	bal, err := s.wallet.Balances(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to load balances", "WALLET_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

type grantRequest struct {
	AccountID      string  `json:"accountId"`
	Type           string  `json:"type"` // first_time, threshold, random
	Count          int     `json:"count"`
	ThresholdID    string  `json:"thresholdId"`
	SpendThreshold float64 `json:"spendThreshold"`
	Probability    float64 `json:"probability"`
	CooldownHours  int     `json:"cooldownHours"`
}

// POST /eligibility/grant
// Called by the platform when an account registers, crosses a spend
// threshold, or rolls for a random grant.
func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "accountId is required", "INVALID_REQUEST")
		return
	}
	switch req.Type {
	case "first_time":
		if req.Count <= 0 {
			req.Count = 1
		}
		if err := s.tracker.GrantFirstTime(r.Context(), req.AccountID, req.Count); err != nil {
			writeError(w, http.StatusBadGateway, "grant failed", "GRANT_ERROR")
			return
		}
	case "threshold":
		if req.ThresholdID == "" || req.Count <= 0 {
			writeError(w, http.StatusBadRequest, "thresholdId and count are required", "INVALID_REQUEST")
			return
		}
		if err := s.tracker.GrantThreshold(r.Context(), req.AccountID, req.ThresholdID, req.SpendThreshold, req.Count); err != nil {
			writeError(w, http.StatusBadGateway, "grant failed", "GRANT_ERROR")
			return
		}
	case "random":
		granted, err := s.tracker.GrantRandomIfEligible(r.Context(), req.AccountID, req.Probability, req.CooldownHours)
		if err != nil {
			writeError(w, http.StatusBadGateway, "grant failed", "GRANT_ERROR")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"granted": granted})
		return
	default:
		writeError(w, http.StatusBadRequest, "unknown grant type", "INVALID_REQUEST")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"granted": true})
}

// GET /eligibility?accountId=...
func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "accountId is required", "INVALID_REQUEST")
		return
	}
	st, err := s.tracker.Get(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to load eligibility", "ELIGIBILITY_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
