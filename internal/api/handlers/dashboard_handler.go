package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"callcrm/internal/engine/metrics"
	"callcrm/internal/pkg/errors"
	"callcrm/internal/platform/repositories"
)

type DashboardHandler struct {
	aggregator *metrics.Aggregator
	calls      *repositories.CallRepository
}

func NewDashboardHandler(aggregator *metrics.Aggregator, calls *repositories.CallRepository) *DashboardHandler {
	return &DashboardHandler{aggregator: aggregator, calls: calls}
}

func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	today, err := h.aggregator.SummaryForDays(1)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}
	weekly, err := h.aggregator.SummaryForDays(7)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}
	monthly, err := h.aggregator.SummaryForDays(30)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}

	recent, err := h.calls.CountStartedSince(time.Now().Add(-24 * time.Hour).Unix())
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}
	active, err := h.calls.CountActive()
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}
	customers, err := h.calls.CountCustomers()
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"today":            today,
		"weekly":           weekly,
		"monthly":          monthly,
		"recent_calls_24h": recent,
		"active_calls":     active,
		"total_customers":  customers,
		"last_updated":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *DashboardHandler) Hourly(w http.ResponseWriter, r *http.Request) {
	date := time.Now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "date must be YYYY-MM-DD", nil)
			return
		}
		date = parsed
	}

	stats, err := h.aggregator.Hourly(date)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (h *DashboardHandler) FailureReasons(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days < 1 || days > 90 {
		days = 7
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	reasons, err := h.aggregator.TopFailureReasons(days, limit)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"days":    days,
		"reasons": reasons,
	})
}

func (h *DashboardHandler) DurationDistribution(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days < 1 || days > 90 {
		days = 7
	}

	buckets, err := h.aggregator.DurationBuckets(days)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(buckets)
}
