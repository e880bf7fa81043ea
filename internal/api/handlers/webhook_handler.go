package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"callcrm/internal/engine/events"
	"callcrm/internal/engine/notify"
	apierrors "callcrm/internal/pkg/errors"
)

// WebhookHandler is the ingestion endpoint for provider call events. It
// accepts both recognized payload shapes, applies them through the state
// machine, and forwards applied lifecycle events downstream.
type WebhookHandler struct {
	processor *events.Processor
	notifier  *notify.Notifier
}

func NewWebhookHandler(processor *events.Processor, notifier *notify.Notifier) *WebhookHandler {
	return &WebhookHandler{processor: processor, notifier: notifier}
}

func (h *WebhookHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeInvalidInput, "Invalid JSON body", nil)
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "webhook"
	}

	event, err := events.Normalize(raw, source)
	if err != nil {
		var normErr *events.NormalizeError
		if errors.As(err, &normErr) {
			code := apierrors.ErrCodeUnknownShape
			if normErr.Kind == events.MissingCallID {
				code = apierrors.ErrCodeMissingCallID
			}
			apierrors.WriteError(w, http.StatusBadRequest, code, "Payload could not be normalized", nil)
			return
		}
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	result, err := h.processor.Apply(event)
	if err != nil {
		// Transaction rolled back; the sender may safely redeliver.
		log.Error().Err(err).Str("call_id", event.CallID).Msg("failed to apply event")
		apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeStoreFailure, "Event not applied", nil)
		return
	}

	if result.Applied && h.notifier != nil && event.Type != events.EventUnknown {
		h.notifier.Send(event.RawType, event.CallID, event.Data)
	}

	status := http.StatusOK
	if event.Type == events.EventUnknown {
		// Unknown tags are accepted and audit-logged, whether or not a
		// placeholder record was created for them.
		status = http.StatusAccepted
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}
