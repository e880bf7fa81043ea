package events

import (
	"fmt"
	"time"
)

// NormalizeErrorKind classifies why a payload could not be mapped onto a
// CanonicalEvent.
type NormalizeErrorKind string

const (
	MissingCallID NormalizeErrorKind = "missing_call_id"
	UnknownShape  NormalizeErrorKind = "unknown_shape"
)

type NormalizeError struct {
	Kind NormalizeErrorKind
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize: %s", e.Kind)
}

// Timestamp formats tried in order. On total failure the event keeps the
// ingestion time instead of being rejected.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
}

// Normalize parses one of the two recognized webhook payload shapes into a
// CanonicalEvent.
//
//	Shape A: {"event_type": ..., "call_id": ..., "timestamp": ..., "data": {...}}
//	Shape B: {"type": ..., "callId": ..., "createdAt": ..., "payload": {...}}
//
// It is a pure function: no store access, no side effects.
func Normalize(raw map[string]interface{}, source string) (*CanonicalEvent, error) {
	var rawType, callID, timestampStr string
	var data map[string]interface{}

	if v, ok := raw["event_type"]; ok {
		rawType, _ = v.(string)
		callID = stringValue(raw, "call_id")
		data = mapValue(raw, "data")
		timestampStr = stringValue(raw, "timestamp")
	} else if v, ok := raw["type"]; ok {
		rawType, _ = v.(string)
		callID = stringValue(raw, "callId")
		if callID == "" {
			callID = stringValue(raw, "call_id")
		}
		data = mapValue(raw, "payload")
		if data == nil {
			data = raw
		}
		timestampStr = stringValue(raw, "createdAt")
		if timestampStr == "" {
			timestampStr = stringValue(raw, "timestamp")
		}
	} else {
		// No recognized shape key at all. A call id may still be findable
		// under an alias, but without an event type the payload is unusable.
		if stringValue(raw, "call_id") == "" && stringValue(raw, "callId") == "" {
			return nil, &NormalizeError{Kind: MissingCallID}
		}
		return nil, &NormalizeError{Kind: UnknownShape}
	}

	if callID == "" {
		return nil, &NormalizeError{Kind: MissingCallID}
	}

	if data == nil {
		data = map[string]interface{}{}
	}

	timestamp := parseTimestamp(timestampStr)

	return &CanonicalEvent{
		Type:      ParseEventType(rawType),
		RawType:   rawType,
		CallID:    callID,
		Timestamp: timestamp,
		Data:      data,
		Source:    source,
	}, nil
}

func parseTimestamp(s string) time.Time {
	if s != "" {
		for _, format := range timestampFormats {
			if t, err := time.Parse(format, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Now().UTC()
}

func stringValue(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func mapValue(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key]; ok {
		if mv, ok := v.(map[string]interface{}); ok {
			return mv
		}
	}
	return nil
}
