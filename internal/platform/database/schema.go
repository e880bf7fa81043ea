package database

import "database/sql"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS calls (
		call_id TEXT PRIMARY KEY,
		room_name TEXT NOT NULL DEFAULT '',
		dispatch_id TEXT NOT NULL DEFAULT '',
		customer_name TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		customer_email TEXT NOT NULL DEFAULT '',
		customer_query TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'initiated',
		call_started_at INTEGER,
		call_connected_at INTEGER,
		call_ended_at INTEGER,
		duration_seconds INTEGER,
		recording_url TEXT NOT NULL DEFAULT '',
		transcript_url TEXT NOT NULL DEFAULT '',
		error_details TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calls_status ON calls(status)`,
	`CREATE INDEX IF NOT EXISTS idx_calls_started_at ON calls(call_started_at)`,
	`CREATE TABLE IF NOT EXISTS call_events (
		id TEXT PRIMARY KEY,
		call_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_data TEXT NOT NULL DEFAULT '{}',
		source TEXT NOT NULL DEFAULT '',
		validation_note TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_call_events_call_id ON call_events(call_id)`,
	`CREATE TABLE IF NOT EXISTS webhook_deliveries (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		call_id TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		status_code INTEGER,
		response_body TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		next_retry_at INTEGER,
		delivered INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_pending ON webhook_deliveries(delivered, next_retry_at)`,
	`CREATE TABLE IF NOT EXISTS call_metrics (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL UNIQUE,
		total_calls INTEGER NOT NULL DEFAULT 0,
		successful_calls INTEGER NOT NULL DEFAULT 0,
		failed_calls INTEGER NOT NULL DEFAULT 0,
		connected_calls INTEGER NOT NULL DEFAULT 0,
		average_duration REAL NOT NULL DEFAULT 0,
		total_duration INTEGER NOT NULL DEFAULT 0,
		connection_rate REAL NOT NULL DEFAULT 0,
		completion_rate REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

// Migrate creates all tables. Statements are idempotent so this is safe to
// run on every startup and in test setup.
func Migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
