package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"callcrm/internal/platform/models"
)

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// RecordAttempt creates a pending delivery row before the first HTTP attempt
// is made, so a crash mid-delivery still leaves a visible record.
func (r *DeliveryRepository) RecordAttempt(target, eventType, callID, payload string, maxRetries int) (*models.Delivery, error) {
	now := time.Now().Unix()
	delivery := &models.Delivery{
		ID:         "dlv_" + uuid.New().String(),
		Target:     target,
		CallID:     callID,
		EventType:  eventType,
		Payload:    payload,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := r.db.Exec(`
		INSERT INTO webhook_deliveries (id, target, call_id, event_type, payload, max_retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, delivery.ID, delivery.Target, delivery.CallID, delivery.EventType, delivery.Payload,
		delivery.MaxRetries, delivery.CreatedAt, delivery.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

// MarkResult records the outcome of one attempt. Response bodies are
// truncated to keep rows bounded.
func (r *DeliveryRepository) MarkResult(id string, statusCode int, responseBody string, delivered bool) error {
	if len(responseBody) > 1000 {
		responseBody = responseBody[:1000]
	}
	_, err := r.db.Exec(`
		UPDATE webhook_deliveries
		SET status_code = ?, response_body = ?, delivered = ?, updated_at = ?
		WHERE id = ?
	`, statusCode, responseBody, delivered, time.Now().Unix(), id)
	return err
}

// ScheduleRetry bumps the retry count and sets the next attempt time using
// exponential backoff: baseDelay * 2^retryCount. Once the cap is reached the
// record is left undelivered with no next_retry_at, and is never picked up
// again.
func (r *DeliveryRepository) ScheduleRetry(id string, baseDelay time.Duration) error {
	delivery, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if delivery == nil {
		return sql.ErrNoRows
	}

	if delivery.RetryCount >= delivery.MaxRetries {
		_, err = r.db.Exec(`
			UPDATE webhook_deliveries SET next_retry_at = NULL, updated_at = ? WHERE id = ?
		`, time.Now().Unix(), id)
		return err
	}

	retryCount := delivery.RetryCount + 1
	delay := baseDelay * (1 << uint(retryCount))
	nextRetryAt := time.Now().Add(delay).Unix()

	_, err = r.db.Exec(`
		UPDATE webhook_deliveries SET retry_count = ?, next_retry_at = ?, updated_at = ? WHERE id = ?
	`, retryCount, nextRetryAt, time.Now().Unix(), id)
	return err
}

// ClearRetry resets next_retry_at before re-attempting, so a slow sweep
// cannot pick the same row up twice.
func (r *DeliveryRepository) ClearRetry(id string) error {
	_, err := r.db.Exec(`
		UPDATE webhook_deliveries SET next_retry_at = NULL, updated_at = ? WHERE id = ?
	`, time.Now().Unix(), id)
	return err
}

func (r *DeliveryRepository) GetByID(id string) (*models.Delivery, error) {
	row := r.db.QueryRow(`
		SELECT id, target, call_id, event_type, payload, status_code, response_body,
		       retry_count, max_retries, next_retry_at, delivered, created_at, updated_at
		FROM webhook_deliveries WHERE id = ?
	`, id)
	return scanDelivery(row)
}

func (r *DeliveryRepository) DueForRetry(now time.Time) ([]*models.Delivery, error) {
	rows, err := r.db.Query(`
		SELECT id, target, call_id, event_type, payload, status_code, response_body,
		       retry_count, max_retries, next_retry_at, delivered, created_at, updated_at
		FROM webhook_deliveries
		WHERE delivered = 0 AND next_retry_at IS NOT NULL AND next_retry_at <= ?
		      AND retry_count <= max_retries
		ORDER BY next_retry_at ASC
	`, now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

// ListFailed returns deliveries that exhausted their retry budget without
// succeeding, for operator visibility.
func (r *DeliveryRepository) ListFailed(limit int) ([]*models.Delivery, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, target, call_id, event_type, payload, status_code, response_body,
		       retry_count, max_retries, next_retry_at, delivered, created_at, updated_at
		FROM webhook_deliveries
		WHERE delivered = 0 AND retry_count >= max_retries AND next_retry_at IS NULL
		ORDER BY updated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

func collectDeliveries(rows *sql.Rows) ([]*models.Delivery, error) {
	var deliveries []*models.Delivery
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries, rows.Err()
}

func scanDelivery(s interface {
	Scan(dest ...interface{}) error
}) (*models.Delivery, error) {
	var d models.Delivery
	var statusCode sql.NullInt64
	var nextRetryAt sql.NullInt64

	err := s.Scan(
		&d.ID,
		&d.Target,
		&d.CallID,
		&d.EventType,
		&d.Payload,
		&statusCode,
		&d.ResponseBody,
		&d.RetryCount,
		&d.MaxRetries,
		&nextRetryAt,
		&d.Delivered,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if statusCode.Valid {
		code := int(statusCode.Int64)
		d.StatusCode = &code
	}
	if nextRetryAt.Valid {
		d.NextRetryAt = &nextRetryAt.Int64
	}

	return &d, nil
}
