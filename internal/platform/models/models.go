package models

// Call statuses. Terminal statuses never move forward again; enrichment
// fields (recording, transcript, error details) stay writable.
const (
	StatusInitiated = "initiated"
	StatusConnected = "connected"
	StatusAnswered  = "answered"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusNoAnswer  = "no_answer"
	StatusBusy      = "busy"
)

func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusNoAnswer, StatusBusy:
		return true
	}
	return false
}

type Call struct {
	CallID        string `json:"call_id"`
	RoomName      string `json:"room_name,omitempty"`
	DispatchID    string `json:"dispatch_id,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerQuery string `json:"customer_query,omitempty"`
	Status        string `json:"status"`
	StartedAt     *int64 `json:"call_started_at,omitempty"`
	ConnectedAt   *int64 `json:"call_connected_at,omitempty"`
	EndedAt       *int64 `json:"call_ended_at,omitempty"`
	Duration      *int64 `json:"duration_seconds,omitempty"`
	RecordingURL  string `json:"recording_url,omitempty"`
	TranscriptURL string `json:"transcript_url,omitempty"`
	ErrorDetails  string `json:"error_details,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// Customer is deduplicated by phone number.
type Customer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// CallEvent is the append-only audit trail. One row per processed inbound
// event, whether or not it mutated the call.
type CallEvent struct {
	ID             string                 `json:"id"`
	CallID         string                 `json:"call_id"`
	EventType      string                 `json:"event_type"`
	EventData      map[string]interface{} `json:"event_data,omitempty"`
	Source         string                 `json:"source,omitempty"`
	ValidationNote string                 `json:"validation_note,omitempty"`
	CreatedAt      int64                  `json:"created_at"`
}

// Delivery tracks one attempted outbound notification.
type Delivery struct {
	ID           string `json:"id"`
	Target       string `json:"target"`
	CallID       string `json:"call_id"`
	EventType    string `json:"event_type"`
	Payload      string `json:"payload"` // JSON as sent
	StatusCode   *int   `json:"status_code,omitempty"`
	ResponseBody string `json:"response_body,omitempty"`
	RetryCount   int    `json:"retry_count"`
	MaxRetries   int    `json:"max_retries"`
	NextRetryAt  *int64 `json:"next_retry_at,omitempty"`
	Delivered    bool   `json:"delivered"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// MetricsSnapshot is one persisted daily aggregate row.
type MetricsSnapshot struct {
	ID              string  `json:"id"`
	Date            string  `json:"date"` // YYYY-MM-DD
	TotalCalls      int     `json:"total_calls"`
	SuccessfulCalls int     `json:"successful_calls"`
	FailedCalls     int     `json:"failed_calls"`
	ConnectedCalls  int     `json:"connected_calls"`
	AverageDuration float64 `json:"average_duration"`
	TotalDuration   int64   `json:"total_duration"`
	ConnectionRate  float64 `json:"connection_rate"`
	CompletionRate  float64 `json:"completion_rate"`
	CreatedAt       int64   `json:"created_at"`
	UpdatedAt       int64   `json:"updated_at"`
}
