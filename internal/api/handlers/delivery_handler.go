package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"callcrm/internal/pkg/errors"
	"callcrm/internal/platform/repositories"
)

type DeliveryHandler struct {
	deliveries *repositories.DeliveryRepository
}

func NewDeliveryHandler(deliveries *repositories.DeliveryRepository) *DeliveryHandler {
	return &DeliveryHandler{deliveries: deliveries}
}

// Failed surfaces deliveries that exhausted their retry budget, for
// operator visibility. They are never retried automatically.
func (h *DeliveryHandler) Failed(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	deliveries, err := h.deliveries.ListFailed(limit)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"deliveries": deliveries,
	})
}
