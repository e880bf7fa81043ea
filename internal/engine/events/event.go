package events

import (
	"time"

	"callcrm/internal/platform/models"
)

// EventType enumerates the inbound provider event tags. Unrecognized tags
// map to EventUnknown and are audit-logged without touching call state.
type EventType string

const (
	EventCallInitiated     EventType = "call.initiated"
	EventCallConnected     EventType = "call.connected"
	EventCallAnswered      EventType = "call.answered"
	EventCallCompleted     EventType = "call.completed"
	EventCallFailed        EventType = "call.failed"
	EventCallCancelled     EventType = "call.cancelled"
	EventCallNoAnswer      EventType = "call.no_answer"
	EventCallBusy          EventType = "call.busy"
	EventRecordingReady    EventType = "recording.ready"
	EventTranscriptReady   EventType = "transcript.ready"
	EventParticipantJoined EventType = "participant.joined"
	EventParticipantLeft   EventType = "participant.left"
	EventErrorOccurred     EventType = "error.occurred"
	EventUnknown           EventType = "unknown"
)

var knownTypes = map[string]EventType{
	string(EventCallInitiated):     EventCallInitiated,
	string(EventCallConnected):     EventCallConnected,
	string(EventCallAnswered):      EventCallAnswered,
	string(EventCallCompleted):     EventCallCompleted,
	string(EventCallFailed):        EventCallFailed,
	string(EventCallCancelled):     EventCallCancelled,
	string(EventCallNoAnswer):      EventCallNoAnswer,
	string(EventCallBusy):          EventCallBusy,
	string(EventRecordingReady):    EventRecordingReady,
	string(EventTranscriptReady):   EventTranscriptReady,
	string(EventParticipantJoined): EventParticipantJoined,
	string(EventParticipantLeft):   EventParticipantLeft,
	string(EventErrorOccurred):     EventErrorOccurred,
}

// ParseEventType maps a raw provider tag onto the enum. The raw tag is
// preserved separately on the event so unknown tags still land in the audit
// trail verbatim.
func ParseEventType(raw string) EventType {
	if t, ok := knownTypes[raw]; ok {
		return t
	}
	return EventUnknown
}

// CanonicalEvent is the normalized representation of one inbound webhook
// occurrence, independent of which payload shape it arrived in.
type CanonicalEvent struct {
	Type      EventType
	RawType   string
	CallID    string
	Timestamp time.Time
	Data      map[string]interface{}
	Source    string
}

// statusFor returns the call status a status-changing event maps to, or ""
// for events that never change status.
func (t EventType) statusFor() string {
	switch t {
	case EventCallInitiated:
		return models.StatusInitiated
	case EventCallConnected:
		return models.StatusConnected
	case EventCallAnswered:
		return models.StatusAnswered
	case EventCallCompleted:
		return models.StatusCompleted
	case EventCallFailed:
		return models.StatusFailed
	case EventCallCancelled:
		return models.StatusCancelled
	case EventCallNoAnswer:
		return models.StatusNoAnswer
	case EventCallBusy:
		return models.StatusBusy
	}
	return ""
}

// Outcome of applying one event.
type Outcome string

const (
	OutcomeCreated         Outcome = "created"
	OutcomeUpdated         Outcome = "updated"
	OutcomeIgnoredTerminal Outcome = "ignored_terminal"
	OutcomeIgnoredUnknown  Outcome = "ignored_unknown_type"
)

type ApplyResult struct {
	Applied bool    `json:"applied"`
	Outcome Outcome `json:"outcome"`
	CallID  string  `json:"call_id"`
}

func (e *CanonicalEvent) stringField(keys ...string) string {
	for _, key := range keys {
		if v, ok := e.Data[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
