package repositories

import (
	"testing"
	"time"
)

func TestDeliveryRepository_RecordAndMark(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewDeliveryRepository(db)

	delivery, err := repo.RecordAttempt("https://crm.example.com/hook", "call.completed", "call_1", `{"x":1}`, 3)
	if err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if delivery.ID == "" || delivery.Delivered {
		t.Errorf("Expected pending delivery row, got %+v", delivery)
	}

	if err := repo.MarkResult(delivery.ID, 200, "ok", true); err != nil {
		t.Fatalf("MarkResult failed: %v", err)
	}

	fetched, err := repo.GetByID(delivery.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !fetched.Delivered || fetched.StatusCode == nil || *fetched.StatusCode != 200 {
		t.Errorf("Expected delivered with status 200, got %+v", fetched)
	}
}

func TestDeliveryRepository_MarkResultTruncatesBody(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewDeliveryRepository(db)
	delivery, _ := repo.RecordAttempt("https://crm.example.com/hook", "call.failed", "call_1", `{}`, 3)

	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	repo.MarkResult(delivery.ID, 500, string(long), false)

	fetched, _ := repo.GetByID(delivery.ID)
	if len(fetched.ResponseBody) != 1000 {
		t.Errorf("Expected body truncated to 1000, got %d", len(fetched.ResponseBody))
	}
}

func TestDeliveryRepository_ScheduleRetryBackoff(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewDeliveryRepository(db)
	delivery, _ := repo.RecordAttempt("https://crm.example.com/hook", "call.completed", "call_1", `{}`, 3)

	if err := repo.ScheduleRetry(delivery.ID, time.Minute); err != nil {
		t.Fatalf("ScheduleRetry failed: %v", err)
	}

	fetched, _ := repo.GetByID(delivery.ID)
	if fetched.RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", fetched.RetryCount)
	}
	if fetched.NextRetryAt == nil {
		t.Fatal("Expected next_retry_at set")
	}
	// First retry is base * 2^1 away.
	expected := time.Now().Add(2 * time.Minute).Unix()
	if *fetched.NextRetryAt < expected-2 || *fetched.NextRetryAt > expected+2 {
		t.Errorf("Expected next retry around %d, got %d", expected, *fetched.NextRetryAt)
	}

	repo.ScheduleRetry(delivery.ID, time.Minute)
	fetched, _ = repo.GetByID(delivery.ID)
	if fetched.RetryCount != 2 {
		t.Errorf("Expected retry count 2, got %d", fetched.RetryCount)
	}
	expected = time.Now().Add(4 * time.Minute).Unix()
	if *fetched.NextRetryAt < expected-2 || *fetched.NextRetryAt > expected+2 {
		t.Errorf("Expected doubled backoff around %d, got %d", expected, *fetched.NextRetryAt)
	}
}

func TestDeliveryRepository_RetryCapAndFailedList(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewDeliveryRepository(db)
	delivery, _ := repo.RecordAttempt("https://crm.example.com/hook", "call.completed", "call_1", `{}`, 2)

	repo.ScheduleRetry(delivery.ID, time.Second)
	repo.ScheduleRetry(delivery.ID, time.Second)
	// Budget exhausted: this one terminates the record instead of scheduling.
	repo.ScheduleRetry(delivery.ID, time.Second)

	fetched, _ := repo.GetByID(delivery.ID)
	if fetched.RetryCount != 2 {
		t.Errorf("Expected retry count capped at 2, got %d", fetched.RetryCount)
	}
	if fetched.NextRetryAt != nil {
		t.Errorf("Expected terminal record with no next retry, got %v", *fetched.NextRetryAt)
	}

	failed, err := repo.ListFailed(10)
	if err != nil {
		t.Fatalf("ListFailed failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != delivery.ID {
		t.Errorf("Expected exhausted delivery in failed list, got %v", failed)
	}
}

func TestDeliveryRepository_DueForRetry(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewDeliveryRepository(db)
	due, _ := repo.RecordAttempt("https://crm.example.com/hook", "call.completed", "call_1", `{}`, 3)
	notYet, _ := repo.RecordAttempt("https://crm.example.com/hook", "call.completed", "call_2", `{}`, 3)

	past := time.Now().Add(-time.Minute).Unix()
	future := time.Now().Add(time.Hour).Unix()
	db.Exec(`UPDATE webhook_deliveries SET retry_count = 1, next_retry_at = ? WHERE id = ?`, past, due.ID)
	db.Exec(`UPDATE webhook_deliveries SET retry_count = 1, next_retry_at = ? WHERE id = ?`, future, notYet.ID)

	picked, err := repo.DueForRetry(time.Now())
	if err != nil {
		t.Fatalf("DueForRetry failed: %v", err)
	}
	if len(picked) != 1 || picked[0].ID != due.ID {
		t.Errorf("Expected only the overdue delivery, got %v", picked)
	}

	// ClearRetry takes it back off the schedule.
	if err := repo.ClearRetry(due.ID); err != nil {
		t.Fatalf("ClearRetry failed: %v", err)
	}
	picked, _ = repo.DueForRetry(time.Now())
	if len(picked) != 0 {
		t.Errorf("Expected nothing due after clear, got %v", picked)
	}
}
