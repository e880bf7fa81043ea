package events

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"callcrm/internal/pkg/phone"
	"callcrm/internal/platform/database"
	"callcrm/internal/platform/models"
	"callcrm/internal/platform/repositories"
)

func setupProcessor(t *testing.T) (*Processor, *repositories.CallRepository, *sql.DB) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	repo := repositories.NewCallRepository(db)
	processor := NewProcessor(db, repo, phone.NewValidator("US"))
	return processor, repo, db
}

func event(eventType, callID string, ts time.Time, data map[string]interface{}) *CanonicalEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &CanonicalEvent{
		Type:      ParseEventType(eventType),
		RawType:   eventType,
		CallID:    callID,
		Timestamp: ts,
		Data:      data,
		Source:    "webhook",
	}
}

func TestProcessor_InitiatedCreatesCall(t *testing.T) {
	processor, repo, db := setupProcessor(t)
	defer db.Close()

	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	result, err := processor.Apply(event("call.initiated", "call_1", ts, map[string]interface{}{
		"customer_name":  "Ada Lovelace",
		"customer_phone": "+16502530000",
		"customer_query": "billing question",
		"room_name":      "room-42",
	}))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !result.Applied || result.Outcome != OutcomeCreated {
		t.Errorf("Expected created, got %+v", result)
	}

	call, err := repo.FindByCallID("call_1")
	if err != nil {
		t.Fatalf("FindByCallID failed: %v", err)
	}
	if call == nil {
		t.Fatal("Expected call to exist")
	}
	if call.Status != models.StatusInitiated {
		t.Errorf("Expected status initiated, got %s", call.Status)
	}
	if call.StartedAt == nil || *call.StartedAt != ts.Unix() {
		t.Errorf("Expected started_at %d, got %v", ts.Unix(), call.StartedAt)
	}
	if call.CustomerPhone != "+16502530000" {
		t.Errorf("Expected E.164 phone, got %s", call.CustomerPhone)
	}
	if call.RoomName != "room-42" {
		t.Errorf("Expected room name, got %s", call.RoomName)
	}

	customers, err := repo.ListCustomers(10, 0)
	if err != nil {
		t.Fatalf("ListCustomers failed: %v", err)
	}
	if len(customers) != 1 || customers[0].Phone != "+16502530000" {
		t.Errorf("Expected one customer keyed by phone, got %v", customers)
	}

	events, err := repo.EventsByCallID("call_1")
	if err != nil {
		t.Fatalf("EventsByCallID failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected one audit row, got %d", len(events))
	}
	if events[0].ValidationNote == "" {
		t.Error("Expected validation note on audit row")
	}
}

func TestProcessor_DuplicateInitiated(t *testing.T) {
	processor, repo, db := setupProcessor(t)
	defer db.Close()

	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	data := map[string]interface{}{"customer_phone": "+16502530000"}

	if _, err := processor.Apply(event("call.initiated", "call_1", ts, data)); err != nil {
		t.Fatalf("First apply failed: %v", err)
	}
	result, err := processor.Apply(event("call.initiated", "call_1", ts.Add(time.Second), data))
	if err != nil {
		t.Fatalf("Second apply failed: %v", err)
	}
	if result.Outcome != OutcomeUpdated {
		t.Errorf("Expected updated on duplicate, got %s", result.Outcome)
	}

	call, _ := repo.FindByCallID("call_1")
	if *call.StartedAt != ts.Unix() {
		t.Errorf("Duplicate must not overwrite started_at, got %d", *call.StartedAt)
	}

	count, err := repo.CountEventsByCallID("call_1")
	if err != nil {
		t.Fatalf("CountEventsByCallID failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected two audit rows, got %d", count)
	}

	total, err := repo.CountCustomers()
	if err != nil {
		t.Fatalf("CountCustomers failed: %v", err)
	}
	if total != 1 {
		t.Errorf("Expected customer dedup by phone, got %d rows", total)
	}
}

func TestProcessor_Lifecycle(t *testing.T) {
	processor, repo, db := setupProcessor(t)
	defer db.Close()

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	processor.Apply(event("call.initiated", "call_1", start, nil))
	processor.Apply(event("call.connected", "call_1", start.Add(10*time.Second), nil))
	processor.Apply(event("call.completed", "call_1", start.Add(2*time.Minute), nil))

	call, err := repo.FindByCallID("call_1")
	if err != nil {
		t.Fatalf("FindByCallID failed: %v", err)
	}
	if call.Status != models.StatusCompleted {
		t.Errorf("Expected completed, got %s", call.Status)
	}
	if call.ConnectedAt == nil || *call.ConnectedAt != start.Add(10*time.Second).Unix() {
		t.Errorf("Expected connected_at set, got %v", call.ConnectedAt)
	}
	if call.Duration == nil || *call.Duration != 120 {
		t.Errorf("Expected duration 120, got %v", call.Duration)
	}
}

func TestProcessor_TerminalStatusGuard(t *testing.T) {
	processor, repo, db := setupProcessor(t)
	defer db.Close()

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	processor.Apply(event("call.initiated", "call_1", start, nil))
	processor.Apply(event("call.completed", "call_1", start.Add(time.Minute), nil))

	// Late status event against a terminal record.
	result, err := processor.Apply(event("call.connected", "call_1", start.Add(2*time.Minute), nil))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Applied || result.Outcome != OutcomeIgnoredTerminal {
		t.Errorf("Expected ignored_terminal, got %+v", result)
	}

	call, _ := repo.FindByCallID("call_1")
	if call.Status != models.StatusCompleted {
		t.Errorf("Terminal status must not change, got %s", call.Status)
	}

	count, _ := repo.CountEventsByCallID("call_1")
	if count != 3 {
		t.Errorf("Ignored event must still be audit-logged, got %d rows", count)
	}
}

func TestProcessor_OutOfOrderCompletedFirst(t *testing.T) {
	processor, repo, db := setupProcessor(t)
	defer db.Close()

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	// completed arrives before initiated
	result, err := processor.Apply(event("call.completed", "call_1", end, nil))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Errorf("Expected placeholder creation, got %s", result.Outcome)
	}

	call, _ := repo.FindByCallID("call_1")
	if call.Status != models.StatusCompleted {
		t.Errorf("Expected placeholder status completed, got %s", call.Status)
	}
	if call.Duration != nil {
		t.Errorf("Duration cannot be derived without a start time, got %v", call.Duration)
	}

	// the initiated event catches up
	result, err = processor.Apply(event("call.initiated", "call_1", start, map[string]interface{}{
		"customer_phone": "+16502530000",
	}))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Outcome != OutcomeUpdated {
		t.Errorf("Expected update of existing record, got %s", result.Outcome)
	}

	call, _ = repo.FindByCallID("call_1")
	if call.Status != models.StatusCompleted {
		t.Errorf("Late initiated must not regress status, got %s", call.Status)
	}
	if call.StartedAt == nil || *call.StartedAt != start.Unix() {
		t.Errorf("Expected started_at filled in, got %v", call.StartedAt)
	}
	if call.Duration == nil || *call.Duration != 90 {
		t.Errorf("Expected duration 90 once both timestamps known, got %v", call.Duration)
	}

	count, _ := repo.CountEventsByCallID("call_1")
	if count != 2 {
		t.Errorf("Expected two audit rows, got %d", count)
	}
}

func TestProcessor_EndBeforeStartLeavesDurationUnset(t *testing.T) {
	processor, repo, db := setupProcessor(t)
	defer db.Close()

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	processor.Apply(event("call.initiated", "call_1", start, nil))
	processor.Apply(event("call.completed", "call_1", start.Add(-time.Minute), nil))

	call, _ := repo.FindByCallID("call_1")
	if call.Duration != nil {
		t.Errorf("Negative interval must not produce a duration, got %v", call.Duration)
	}
}

func TestProcessor_FailureRecordsErrorDetails(t *testing.T) {
	processor, repo, db := setupProcessor(t)
	defer db.Close()

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	processor.Apply(event("call.initiated", "call_1", start, nil))
	processor.Apply(event("call.failed", "call_1", start.Add(time.Second), map[string]interface{}{
		"error": "carrier rejected",
	}))

	call, _ := repo.FindByCallID("call_1")
	if call.Status != models.StatusFailed {
		t.Errorf("Expected failed, got %s", call.Status)
	}
	if call.ErrorDetails != "carrier rejected" {
		t.Errorf("Expected error details, got %q", call.ErrorDetails)
	}
}

func TestProcessor_EnrichmentAfterTerminal(t *testing.T) {
	processor, repo, db := setupProcessor(t)
	defer db.Close()

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	processor.Apply(event("call.initiated", "call_1", start, nil))
	processor.Apply(event("call.completed", "call_1", start.Add(time.Minute), nil))

	result, err := processor.Apply(event("recording.ready", "call_1", start.Add(5*time.Minute), map[string]interface{}{
		"recording_url": "https://cdn.example.com/rec/call_1.mp3",
	}))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !result.Applied || result.Outcome != OutcomeUpdated {
		t.Errorf("Enrichment must apply after terminal status, got %+v", result)
	}

	call, _ := repo.FindByCallID("call_1")
	if call.RecordingURL != "https://cdn.example.com/rec/call_1.mp3" {
		t.Errorf("Expected recording URL, got %q", call.RecordingURL)
	}
	if call.Status != models.StatusCompleted {
		t.Errorf("Enrichment must not change status, got %s", call.Status)
	}
}

func TestProcessor_UnknownTypeIsLogOnly(t *testing.T) {
	processor, repo, db := setupProcessor(t)
	defer db.Close()

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	processor.Apply(event("call.initiated", "call_1", start, nil))

	result, err := processor.Apply(event("call.transferred", "call_1", start.Add(time.Second), nil))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Applied || result.Outcome != OutcomeIgnoredUnknown {
		t.Errorf("Expected ignored_unknown_type, got %+v", result)
	}

	events, _ := repo.EventsByCallID("call_1")
	if len(events) != 2 {
		t.Fatalf("Expected audit row for unknown type, got %d rows", len(events))
	}
	if events[1].EventType != "call.transferred" {
		t.Errorf("Expected raw tag preserved in audit trail, got %s", events[1].EventType)
	}
}

func TestProcessor_InvalidPhoneStoredAsReceived(t *testing.T) {
	processor, repo, db := setupProcessor(t)
	defer db.Close()

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	processor.Apply(event("call.initiated", "call_1", start, map[string]interface{}{
		"customer_phone": "12345",
	}))

	call, _ := repo.FindByCallID("call_1")
	if call.CustomerPhone != "12345" {
		t.Errorf("Invalid phone must be stored as received, got %q", call.CustomerPhone)
	}

	events, _ := repo.EventsByCallID("call_1")
	if len(events) != 1 || events[0].ValidationNote == "" {
		t.Error("Expected validation note recording the invalid number")
	}
}
