package events

import (
	"testing"
	"time"
)

func TestNormalize_ShapeA(t *testing.T) {
	raw := map[string]interface{}{
		"event_type": "call.initiated",
		"call_id":    "call_123",
		"timestamp":  "2025-06-01T10:30:00Z",
		"data": map[string]interface{}{
			"customer_phone": "+14155551234",
		},
	}

	event, err := Normalize(raw, "webhook")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if event.Type != EventCallInitiated {
		t.Errorf("Expected type %s, got %s", EventCallInitiated, event.Type)
	}
	if event.CallID != "call_123" {
		t.Errorf("Expected call_id call_123, got %s", event.CallID)
	}
	if event.Source != "webhook" {
		t.Errorf("Expected source webhook, got %s", event.Source)
	}
	expected := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	if !event.Timestamp.Equal(expected) {
		t.Errorf("Expected timestamp %v, got %v", expected, event.Timestamp)
	}
	if event.Data["customer_phone"] != "+14155551234" {
		t.Errorf("Expected data to carry customer_phone, got %v", event.Data)
	}
}

func TestNormalize_ShapeB(t *testing.T) {
	raw := map[string]interface{}{
		"type":      "call.completed",
		"callId":    "call_456",
		"createdAt": "2025-06-01T11:00:00.000000Z",
		"payload": map[string]interface{}{
			"duration": "120",
		},
	}

	event, err := Normalize(raw, "provider")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if event.Type != EventCallCompleted {
		t.Errorf("Expected type %s, got %s", EventCallCompleted, event.Type)
	}
	if event.CallID != "call_456" {
		t.Errorf("Expected call_id call_456, got %s", event.CallID)
	}
	if event.Data["duration"] != "120" {
		t.Errorf("Expected payload to become data, got %v", event.Data)
	}
}

func TestNormalize_ShapeBAliases(t *testing.T) {
	// call_id and timestamp are accepted as fallbacks for the camelCase keys,
	// and a missing payload means the whole map becomes the data.
	raw := map[string]interface{}{
		"type":      "call.connected",
		"call_id":   "call_789",
		"timestamp": "2025-06-01 12:00:00",
	}

	event, err := Normalize(raw, "webhook")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if event.CallID != "call_789" {
		t.Errorf("Expected call_id call_789, got %s", event.CallID)
	}
	expected := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !event.Timestamp.Equal(expected) {
		t.Errorf("Expected timestamp %v, got %v", expected, event.Timestamp)
	}
	if event.Data["type"] != "call.connected" {
		t.Errorf("Expected raw map as data fallback, got %v", event.Data)
	}
}

func TestNormalize_UnknownEventType(t *testing.T) {
	raw := map[string]interface{}{
		"event_type": "call.transferred",
		"call_id":    "call_123",
	}

	event, err := Normalize(raw, "webhook")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if event.Type != EventUnknown {
		t.Errorf("Expected EventUnknown, got %s", event.Type)
	}
	if event.RawType != "call.transferred" {
		t.Errorf("Expected raw type preserved, got %s", event.RawType)
	}
}

func TestNormalize_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]interface{}
		kind NormalizeErrorKind
	}{
		{
			name: "shape A without call id",
			raw:  map[string]interface{}{"event_type": "call.initiated"},
			kind: MissingCallID,
		},
		{
			name: "shape B without call id",
			raw:  map[string]interface{}{"type": "call.initiated"},
			kind: MissingCallID,
		},
		{
			name: "no shape key and no call id",
			raw:  map[string]interface{}{"foo": "bar"},
			kind: MissingCallID,
		},
		{
			name: "no shape key but call id present",
			raw:  map[string]interface{}{"call_id": "call_123"},
			kind: UnknownShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, "webhook")
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			normErr, ok := err.(*NormalizeError)
			if !ok {
				t.Fatalf("Expected NormalizeError, got %T", err)
			}
			if normErr.Kind != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, normErr.Kind)
			}
		})
	}
}

func TestNormalize_TimestampFormats(t *testing.T) {
	formats := []string{
		"2025-06-01T10:30:00.123456789Z",
		"2025-06-01T10:30:00Z",
		"2025-06-01T10:30:00.000000Z",
		"2025-06-01 10:30:00",
	}

	for _, ts := range formats {
		raw := map[string]interface{}{
			"event_type": "call.initiated",
			"call_id":    "call_123",
			"timestamp":  ts,
		}
		event, err := Normalize(raw, "webhook")
		if err != nil {
			t.Fatalf("Normalize failed for %q: %v", ts, err)
		}
		if event.Timestamp.Year() != 2025 || event.Timestamp.Hour() != 10 {
			t.Errorf("Timestamp %q parsed as %v", ts, event.Timestamp)
		}
	}
}

func TestNormalize_BadTimestampFallsBackToNow(t *testing.T) {
	raw := map[string]interface{}{
		"event_type": "call.initiated",
		"call_id":    "call_123",
		"timestamp":  "not-a-timestamp",
	}

	before := time.Now().UTC()
	event, err := Normalize(raw, "webhook")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	after := time.Now().UTC()

	if event.Timestamp.Before(before) || event.Timestamp.After(after) {
		t.Errorf("Expected ingestion-time fallback, got %v", event.Timestamp)
	}
}
