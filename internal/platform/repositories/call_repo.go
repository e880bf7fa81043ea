package repositories

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"callcrm/internal/platform/models"
)

type CallRepository struct {
	db *sql.DB
}

func NewCallRepository(db *sql.DB) *CallRepository {
	return &CallRepository{db: db}
}

const callColumns = `call_id, room_name, dispatch_id, customer_name, customer_phone,
	customer_email, customer_query, status, call_started_at, call_connected_at,
	call_ended_at, duration_seconds, recording_url, transcript_url, error_details,
	created_at, updated_at`

func (r *CallRepository) FindByCallID(callID string) (*models.Call, error) {
	row := r.db.QueryRow(`SELECT `+callColumns+` FROM calls WHERE call_id = ?`, callID)
	return scanCall(row)
}

func (r *CallRepository) FindByCallIDTx(tx *sql.Tx, callID string) (*models.Call, error) {
	row := tx.QueryRow(`SELECT `+callColumns+` FROM calls WHERE call_id = ?`, callID)
	return scanCall(row)
}

func (r *CallRepository) CreateTx(tx *sql.Tx, call *models.Call) error {
	now := time.Now().Unix()
	call.CreatedAt = now
	call.UpdatedAt = now

	_, err := tx.Exec(`
		INSERT INTO calls (`+callColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, call.CallID, call.RoomName, call.DispatchID, call.CustomerName, call.CustomerPhone,
		call.CustomerEmail, call.CustomerQuery, call.Status, call.StartedAt, call.ConnectedAt,
		call.EndedAt, call.Duration, call.RecordingURL, call.TranscriptURL, call.ErrorDetails,
		call.CreatedAt, call.UpdatedAt)
	return err
}

func (r *CallRepository) UpdateTx(tx *sql.Tx, call *models.Call) error {
	call.UpdatedAt = time.Now().Unix()

	_, err := tx.Exec(`
		UPDATE calls SET
			room_name = ?, dispatch_id = ?, customer_name = ?, customer_phone = ?,
			customer_email = ?, customer_query = ?, status = ?, call_started_at = ?,
			call_connected_at = ?, call_ended_at = ?, duration_seconds = ?,
			recording_url = ?, transcript_url = ?, error_details = ?, updated_at = ?
		WHERE call_id = ?
	`, call.RoomName, call.DispatchID, call.CustomerName, call.CustomerPhone,
		call.CustomerEmail, call.CustomerQuery, call.Status, call.StartedAt,
		call.ConnectedAt, call.EndedAt, call.Duration,
		call.RecordingURL, call.TranscriptURL, call.ErrorDetails, call.UpdatedAt,
		call.CallID)
	return err
}

// UpsertCustomerTx deduplicates customers by phone number. Name and email are
// filled in non-destructively: a new non-empty value replaces an empty one,
// never the other way around.
func (r *CallRepository) UpsertCustomerTx(tx *sql.Tx, name, phone, email string) (*models.Customer, error) {
	customer := &models.Customer{}
	err := tx.QueryRow(`
		SELECT id, name, phone, email, created_at, updated_at
		FROM customers WHERE phone = ?
	`, phone).Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.Email, &customer.CreatedAt, &customer.UpdatedAt)

	now := time.Now().Unix()

	if err == sql.ErrNoRows {
		customer = &models.Customer{
			ID:        "cus_" + uuid.New().String(),
			Name:      name,
			Phone:     phone,
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err = tx.Exec(`
			INSERT INTO customers (id, name, phone, email, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, customer.ID, customer.Name, customer.Phone, customer.Email, customer.CreatedAt, customer.UpdatedAt)
		if err != nil {
			return nil, err
		}
		return customer, nil
	}
	if err != nil {
		return nil, err
	}

	changed := false
	if customer.Name == "" && name != "" {
		customer.Name = name
		changed = true
	}
	if customer.Email == "" && email != "" {
		customer.Email = email
		changed = true
	}
	if changed {
		customer.UpdatedAt = now
		_, err = tx.Exec(`UPDATE customers SET name = ?, email = ?, updated_at = ? WHERE id = ?`,
			customer.Name, customer.Email, customer.UpdatedAt, customer.ID)
		if err != nil {
			return nil, err
		}
	}
	return customer, nil
}

// AppendEventTx writes one audit trail row. Rows are never updated or
// deleted.
func (r *CallRepository) AppendEventTx(tx *sql.Tx, event *models.CallEvent) error {
	event.ID = "evt_" + uuid.New().String()
	event.CreatedAt = time.Now().Unix()

	dataJSON := "{}"
	if event.EventData != nil {
		if b, err := json.Marshal(event.EventData); err == nil {
			dataJSON = string(b)
		}
	}

	_, err := tx.Exec(`
		INSERT INTO call_events (id, call_id, event_type, event_data, source, validation_note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.CallID, event.EventType, dataJSON, event.Source, event.ValidationNote, event.CreatedAt)
	return err
}

func (r *CallRepository) EventsByCallID(callID string) ([]*models.CallEvent, error) {
	// rowid reflects insertion order; created_at is second-granularity and
	// cannot break ties between events applied within the same second.
	rows, err := r.db.Query(`
		SELECT id, call_id, event_type, event_data, source, validation_note, created_at
		FROM call_events WHERE call_id = ? ORDER BY rowid ASC
	`, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.CallEvent
	for rows.Next() {
		var e models.CallEvent
		var dataRaw string
		if err := rows.Scan(&e.ID, &e.CallID, &e.EventType, &dataRaw, &e.Source, &e.ValidationNote, &e.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(dataRaw), &e.EventData)
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *CallRepository) CountEventsByCallID(callID string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM call_events WHERE call_id = ?`, callID).Scan(&count)
	return count, err
}

type CallFilter struct {
	Status string
	Phone  string
	Name   string
	FromTS int64
	ToTS   int64
	Limit  int
	Offset int
}

func (r *CallRepository) List(filter CallFilter) ([]*models.Call, int, error) {
	var conds []string
	var args []interface{}

	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Phone != "" {
		conds = append(conds, "customer_phone LIKE ?")
		args = append(args, "%"+filter.Phone+"%")
	}
	if filter.Name != "" {
		conds = append(conds, "customer_name LIKE ?")
		args = append(args, "%"+filter.Name+"%")
	}
	if filter.FromTS > 0 {
		conds = append(conds, "call_started_at >= ?")
		args = append(args, filter.FromTS)
	}
	if filter.ToTS > 0 {
		conds = append(conds, "call_started_at <= ?")
		args = append(args, filter.ToTS)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM calls`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `SELECT ` + callColumns + ` FROM calls` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.Query(query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var calls []*models.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		calls = append(calls, call)
	}
	return calls, total, rows.Err()
}

func (r *CallRepository) CountActive() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM calls WHERE status IN (?, ?, ?)`,
		models.StatusInitiated, models.StatusConnected, models.StatusAnswered).Scan(&count)
	return count, err
}

func (r *CallRepository) CountStartedSince(ts int64) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM calls WHERE call_started_at >= ?`, ts).Scan(&count)
	return count, err
}

func (r *CallRepository) ListCustomers(limit, offset int) ([]*models.Customer, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT id, name, phone, email, created_at, updated_at
		FROM customers ORDER BY created_at DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, &c)
	}
	return customers, rows.Err()
}

func (r *CallRepository) FindCustomerByID(id string) (*models.Customer, error) {
	var c models.Customer
	err := r.db.QueryRow(`
		SELECT id, name, phone, email, created_at, updated_at
		FROM customers WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// CallsByPhone returns a customer's full call history, newest first.
func (r *CallRepository) CallsByPhone(phone string) ([]*models.Call, error) {
	rows, err := r.db.Query(`SELECT `+callColumns+` FROM calls
		WHERE customer_phone = ? ORDER BY call_started_at DESC`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []*models.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

func (r *CallRepository) CountCustomers() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM customers`).Scan(&count)
	return count, err
}

func scanCall(s interface {
	Scan(dest ...interface{}) error
}) (*models.Call, error) {
	var call models.Call
	var startedAt, connectedAt, endedAt, duration sql.NullInt64

	err := s.Scan(
		&call.CallID,
		&call.RoomName,
		&call.DispatchID,
		&call.CustomerName,
		&call.CustomerPhone,
		&call.CustomerEmail,
		&call.CustomerQuery,
		&call.Status,
		&startedAt,
		&connectedAt,
		&endedAt,
		&duration,
		&call.RecordingURL,
		&call.TranscriptURL,
		&call.ErrorDetails,
		&call.CreatedAt,
		&call.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if startedAt.Valid {
		call.StartedAt = &startedAt.Int64
	}
	if connectedAt.Valid {
		call.ConnectedAt = &connectedAt.Int64
	}
	if endedAt.Valid {
		call.EndedAt = &endedAt.Int64
	}
	if duration.Valid {
		call.Duration = &duration.Int64
	}

	return &call, nil
}
