package metrics

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"callcrm/internal/platform/models"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Summary holds derived aggregates for one time window. Reads see committed
// data only; the repository never opens a write transaction.
type Summary struct {
	From            int64   `json:"from"`
	To              int64   `json:"to"`
	TotalCalls      int     `json:"total_calls"`
	SuccessfulCalls int     `json:"successful_calls"`
	FailedCalls     int     `json:"failed_calls"`
	ConnectedCalls  int     `json:"connected_calls"`
	ConnectionRate  float64 `json:"connection_rate"`
	CompletionRate  float64 `json:"completion_rate"`
	AverageDuration float64 `json:"average_duration"`
	TotalDuration   int64   `json:"total_duration"`
	UniqueCustomers int     `json:"unique_customers"`
	PeakHour        int     `json:"peak_hour"`
}

func (r *Repository) ComputeSummary(from, to int64) (*Summary, error) {
	s := &Summary{From: from, To: to, PeakHour: -1}

	err := r.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status IN ('failed', 'cancelled', 'no_answer', 'busy') THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN call_connected_at IS NOT NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(duration_seconds), 0),
		       COALESCE(AVG(duration_seconds), 0),
		       COUNT(DISTINCT CASE WHEN customer_phone != '' THEN customer_phone END)
		FROM calls
		WHERE call_started_at >= ? AND call_started_at < ?
	`, from, to).Scan(&s.TotalCalls, &s.SuccessfulCalls, &s.FailedCalls, &s.ConnectedCalls,
		&s.TotalDuration, &s.AverageDuration, &s.UniqueCustomers)
	if err != nil {
		return nil, err
	}

	if s.TotalCalls > 0 {
		s.ConnectionRate = round2(float64(s.ConnectedCalls) / float64(s.TotalCalls) * 100)
	}
	if s.ConnectedCalls > 0 {
		s.CompletionRate = round2(float64(s.SuccessfulCalls) / float64(s.ConnectedCalls) * 100)
	}
	s.AverageDuration = round2(s.AverageDuration)

	// Peak hour: the UTC hour of day with the most call starts in the window.
	var peakHour sql.NullInt64
	err = r.db.QueryRow(`
		SELECT CAST(strftime('%H', call_started_at, 'unixepoch') AS INTEGER) AS hour
		FROM calls
		WHERE call_started_at >= ? AND call_started_at < ?
		GROUP BY hour ORDER BY COUNT(*) DESC, hour ASC LIMIT 1
	`, from, to).Scan(&peakHour)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if peakHour.Valid {
		s.PeakHour = int(peakHour.Int64)
	}

	return s, nil
}

type HourlyStat struct {
	Hour            int `json:"hour"`
	TotalCalls      int `json:"total_calls"`
	SuccessfulCalls int `json:"successful_calls"`
	FailedCalls     int `json:"failed_calls"`
}

func (r *Repository) ComputeHourly(from, to int64) ([]HourlyStat, error) {
	rows, err := r.db.Query(`
		SELECT CAST(strftime('%H', call_started_at, 'unixepoch') AS INTEGER) AS hour,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status IN ('failed', 'cancelled', 'no_answer', 'busy') THEN 1 ELSE 0 END), 0)
		FROM calls
		WHERE call_started_at >= ? AND call_started_at < ?
		GROUP BY hour ORDER BY hour ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byHour := make(map[int]HourlyStat)
	for rows.Next() {
		var h HourlyStat
		if err := rows.Scan(&h.Hour, &h.TotalCalls, &h.SuccessfulCalls, &h.FailedCalls); err != nil {
			return nil, err
		}
		byHour[h.Hour] = h
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := make([]HourlyStat, 24)
	for hour := 0; hour < 24; hour++ {
		stat := byHour[hour]
		stat.Hour = hour
		stats[hour] = stat
	}
	return stats, nil
}

// Duration distribution buckets, matching the dashboard's fixed ranges.
var durationBuckets = []struct {
	Label string
	Max   int64 // inclusive upper bound in seconds, 0 = unbounded
}{
	{"0-30s", 30},
	{"30s-1m", 60},
	{"1-2m", 120},
	{"2-5m", 300},
	{"5-10m", 600},
	{"10m+", 0},
}

func (r *Repository) ComputeDurationBuckets(from, to int64) (map[string]int, error) {
	rows, err := r.db.Query(`
		SELECT duration_seconds FROM calls
		WHERE call_started_at >= ? AND call_started_at < ? AND duration_seconds IS NOT NULL
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := make(map[string]int, len(durationBuckets))
	for _, b := range durationBuckets {
		buckets[b.Label] = 0
	}

	for rows.Next() {
		var duration int64
		if err := rows.Scan(&duration); err != nil {
			return nil, err
		}
		for _, b := range durationBuckets {
			if b.Max == 0 || duration <= b.Max {
				buckets[b.Label]++
				break
			}
		}
	}
	return buckets, rows.Err()
}

// FailureReason is one grouped error_details value among failed calls.
type FailureReason struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

func (r *Repository) TopFailureReasons(from, to int64, limit int) ([]FailureReason, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	rows, err := r.db.Query(`
		SELECT error_details, COUNT(*) AS cnt
		FROM calls
		WHERE call_started_at >= ? AND call_started_at < ?
		      AND status IN ('failed', 'cancelled', 'no_answer', 'busy')
		      AND error_details != ''
		GROUP BY error_details
		ORDER BY cnt DESC, error_details ASC
		LIMIT ?
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reasons []FailureReason
	for rows.Next() {
		var reason FailureReason
		if err := rows.Scan(&reason.Reason, &reason.Count); err != nil {
			return nil, err
		}
		reasons = append(reasons, reason)
	}
	return reasons, rows.Err()
}

// UpsertSnapshot persists one daily aggregate row, replacing any existing
// row for the same date.
func (r *Repository) UpsertSnapshot(snapshot *models.MetricsSnapshot) error {
	now := time.Now().Unix()
	_, err := r.db.Exec(`
		INSERT INTO call_metrics (id, date, total_calls, successful_calls, failed_calls,
			connected_calls, average_duration, total_duration, connection_rate, completion_rate,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_calls=excluded.total_calls,
			successful_calls=excluded.successful_calls,
			failed_calls=excluded.failed_calls,
			connected_calls=excluded.connected_calls,
			average_duration=excluded.average_duration,
			total_duration=excluded.total_duration,
			connection_rate=excluded.connection_rate,
			completion_rate=excluded.completion_rate,
			updated_at=excluded.updated_at
	`, "met_"+uuid.New().String(), snapshot.Date, snapshot.TotalCalls, snapshot.SuccessfulCalls,
		snapshot.FailedCalls, snapshot.ConnectedCalls, snapshot.AverageDuration, snapshot.TotalDuration,
		snapshot.ConnectionRate, snapshot.CompletionRate, now, now)
	return err
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
