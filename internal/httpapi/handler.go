// Package httpapi exposes the acquisition core over HTTP for the Gateway and
// for operators.
//
// Routes:
//
//	GET /health                                          → liveness + database reachability
//	GET /exists?url=…&searchContext=…&profileIdentity=…  → composite-key membership
//	GET /savings?searchContext=…&since=…                 → early-exit savings report
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"jobmate/acquisition-service/internal/identity"
	"jobmate/acquisition-service/internal/ledger"
	"jobmate/acquisition-service/internal/store"
)

// Version is reported by /health.
const Version = "1.0.0"

// Checker answers composite-key membership for a raw or canonical URL.
type Checker interface {
	ExistsForContext(ctx context.Context, url, searchContext, profileIdentity string) (bool, error)
}

// SavingsReporter aggregates the acquisition ledger.
type SavingsReporter interface {
	Savings(ctx context.Context, q ledger.SavingsQuery, costs ledger.Costs) (ledger.SavingsReport, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the HTTP routes.
type Handler struct {
	checker Checker
	savings SavingsReporter
	db      Pinger
	costs   ledger.Costs
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(checker Checker, savings SavingsReporter, db Pinger, costs ledger.Costs, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		checker: checker,
		savings: savings,
		db:      db,
		costs:   costs,
		logger:  logger.With("component", "http"),
		now:     time.Now,
	}
}

// RegisterRoutes attaches all routes to mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /exists", h.exists)
	mux.HandleFunc("GET /savings", h.savingsReport)
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Service: "acquisition-service", Version: Version}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.WarnContext(r.Context(), "health check: database unreachable", "err", err)
			resp.Status = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	jsonOK(w, resp)
}

type existsResponse struct {
	Exists          bool   `json:"exists"`
	SearchContext   string `json:"searchContext"`
	ProfileIdentity string `json:"profileIdentity"`
}

func (h *Handler) exists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawURL := strings.TrimSpace(q.Get("url"))
	searchContext := strings.TrimSpace(q.Get("searchContext"))
	profileIdentity := strings.TrimSpace(q.Get("profileIdentity"))
	if rawURL == "" || searchContext == "" || profileIdentity == "" {
		jsonError(w, "url, searchContext and profileIdentity are required", http.StatusBadRequest)
		return
	}

	ok, err := h.checker.ExistsForContext(r.Context(), rawURL, searchContext, profileIdentity)
	switch {
	case errors.Is(err, identity.ErrNormalization):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case errors.Is(err, store.ErrUnavailable):
		h.logger.ErrorContext(r.Context(), "exists lookup failed", "err", err)
		jsonError(w, "existence store unavailable", http.StatusServiceUnavailable)
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "exists lookup failed", "err", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	jsonOK(w, existsResponse{Exists: ok, SearchContext: searchContext, ProfileIdentity: profileIdentity})
}

// savingsReport accepts since as RFC 3339 or as a lookback duration ("168h").
// The default window is the last 30 days.
func (h *Handler) savingsReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since := h.now().Add(-30 * 24 * time.Hour)
	if s := strings.TrimSpace(q.Get("since")); s != "" {
		parsed, err := parseSince(s, h.now())
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		since = parsed
	}

	report, err := h.savings.Savings(r.Context(), ledger.SavingsQuery{
		SearchContext: strings.TrimSpace(q.Get("searchContext")),
		Since:         since,
	}, h.costs)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "savings query failed", "err", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, report)
}

func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, errors.New("since must be an RFC 3339 time or a positive duration")
	}
	return now.Add(-d), nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
