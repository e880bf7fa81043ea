package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	apiContext "callcrm/internal/api/context"
	"callcrm/internal/pkg/errors"
	"callcrm/internal/platform/repositories"
)

type CallHandler struct {
	calls *repositories.CallRepository
}

func NewCallHandler(calls *repositories.CallRepository) *CallHandler {
	return &CallHandler{calls: calls}
}

func (h *CallHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("per_page"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	filter := repositories.CallFilter{
		Status: q.Get("status"),
		Phone:  q.Get("phone"),
		Name:   q.Get("customer_name"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if v, err := strconv.ParseInt(q.Get("from_ts"), 10, 64); err == nil {
		filter.FromTS = v
	}
	if v, err := strconv.ParseInt(q.Get("to_ts"), 10, 64); err == nil {
		filter.ToTS = v
	}

	calls, total, err := h.calls.List(filter)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"calls":    calls,
		"total":    total,
		"page":     page,
		"per_page": limit,
	})
}

func (h *CallHandler) Get(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	callID := params.ByName("call_id")

	call, err := h.calls.FindByCallID(callID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}
	if call == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Call not found", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(call)
}

func (h *CallHandler) Events(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	callID := params.ByName("call_id")

	events, err := h.calls.EventsByCallID(callID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"call_id": callID,
		"events":  events,
	})
}
