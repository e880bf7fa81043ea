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

type CustomerHandler struct {
	calls *repositories.CallRepository
}

func NewCustomerHandler(calls *repositories.CallRepository) *CustomerHandler {
	return &CustomerHandler{calls: calls}
}

func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	customers, err := h.calls.ListCustomers(limit, (page-1)*limit)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}

	total, err := h.calls.CountCustomers()
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"customers": customers,
		"total":     total,
		"page":      page,
		"per_page":  limit,
	})
}

// Calls returns a customer's full call history, matched by phone number.
func (h *CustomerHandler) Calls(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	customerID := params.ByName("customer_id")

	customer, err := h.calls.FindCustomerByID(customerID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}
	if customer == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Customer not found", nil)
		return
	}

	calls, err := h.calls.CallsByPhone(customer.Phone)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"customer": customer,
		"calls":    calls,
	})
}
