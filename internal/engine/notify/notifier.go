package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"callcrm/internal/platform/config"
	"callcrm/internal/platform/models"
	"callcrm/internal/platform/repositories"
)

// Event is the derived payload pushed to downstream consumers.
type Event struct {
	EventType string                 `json:"event_type"`
	CallID    string                 `json:"call_id"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Notifier forwards derived events to the configured targets with HMAC
// signing, a hard request timeout, and exponential-backoff retry
// bookkeeping in the delivery log. Timeouts and network errors count the
// same as non-2xx responses.
type Notifier struct {
	deliveries *repositories.DeliveryRepository
	client     *http.Client
	cfg        config.OutboundConfig
	publisher  *Publisher // optional MQTT fan-out
}

func NewNotifier(deliveries *repositories.DeliveryRepository, cfg config.OutboundConfig, publisher *Publisher) *Notifier {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Notifier{
		deliveries: deliveries,
		client:     &http.Client{Timeout: timeout},
		cfg:        cfg,
		publisher:  publisher,
	}
}

// Send records one pending delivery per target and attempts each
// asynchronously. Failures are scheduled for retry by the sweep worker.
func (n *Notifier) Send(eventType, callID string, data map[string]interface{}) {
	event := &Event{
		EventType: eventType,
		CallID:    callID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("call_id", callID).Msg("failed to marshal outbound event")
		return
	}

	if n.publisher != nil {
		n.publisher.Publish(eventType, payload)
	}

	for _, target := range n.cfg.Targets {
		delivery, err := n.deliveries.RecordAttempt(target, eventType, callID, string(payload), n.cfg.MaxRetries)
		if err != nil {
			log.Error().Err(err).Str("target", target).Msg("failed to record delivery attempt")
			continue
		}
		go n.attempt(delivery)
	}
}

// Retry re-attempts a previously failed delivery picked up by the sweep.
func (n *Notifier) Retry(delivery *models.Delivery) {
	if err := n.deliveries.ClearRetry(delivery.ID); err != nil {
		log.Error().Err(err).Str("delivery_id", delivery.ID).Msg("failed to clear retry schedule")
		return
	}
	n.attempt(delivery)
}

func (n *Notifier) attempt(delivery *models.Delivery) {
	statusCode, body, err := n.post(delivery.Target, []byte(delivery.Payload), delivery.ID)

	if err != nil {
		log.Warn().Err(err).
			Str("delivery_id", delivery.ID).
			Str("target", delivery.Target).
			Msg("delivery failed")
		n.deliveries.MarkResult(delivery.ID, 0, err.Error(), false)
		n.scheduleRetry(delivery.ID)
		return
	}

	delivered := statusCode >= 200 && statusCode < 300
	n.deliveries.MarkResult(delivery.ID, statusCode, body, delivered)

	if delivered {
		log.Info().
			Str("delivery_id", delivery.ID).
			Str("target", delivery.Target).
			Msg("delivery succeeded")
		return
	}

	log.Warn().
		Int("status", statusCode).
		Str("delivery_id", delivery.ID).
		Str("target", delivery.Target).
		Msg("delivery rejected")
	n.scheduleRetry(delivery.ID)
}

func (n *Notifier) post(target string, payload []byte, deliveryID string) (int, string, error) {
	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "callcrm-webhook/1.0")
	req.Header.Set("X-Callcrm-Delivery", deliveryID)
	if n.cfg.Secret != "" {
		req.Header.Set("X-Callcrm-Signature", "sha256="+Sign(n.cfg.Secret, payload))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, string(body), nil
}

func (n *Notifier) scheduleRetry(deliveryID string) {
	baseDelay := n.cfg.BaseRetryDelay
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if err := n.deliveries.ScheduleRetry(deliveryID, baseDelay); err != nil {
		log.Error().Err(err).Str("delivery_id", deliveryID).Msg("failed to schedule retry")
	}
}
