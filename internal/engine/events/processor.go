package events

import (
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog/log"

	"callcrm/internal/pkg/phone"
	"callcrm/internal/platform/database"
	"callcrm/internal/platform/models"
)

// Processor applies canonical events to durable call records. Each Apply
// runs in a single transaction: the call mutation and the audit log append
// either both persist or neither does. A per-call-id lock serializes
// concurrent deliveries for the same call.
type Processor struct {
	db     *sql.DB
	calls  CallStore
	phones *phone.Validator
	locks  [64]sync.Mutex
}

// CallStore is the slice of the call repository the processor needs.
type CallStore interface {
	FindByCallIDTx(tx *sql.Tx, callID string) (*models.Call, error)
	CreateTx(tx *sql.Tx, call *models.Call) error
	UpdateTx(tx *sql.Tx, call *models.Call) error
	UpsertCustomerTx(tx *sql.Tx, name, phone, email string) (*models.Customer, error)
	AppendEventTx(tx *sql.Tx, event *models.CallEvent) error
}

func NewProcessor(db *sql.DB, calls CallStore, phones *phone.Validator) *Processor {
	return &Processor{db: db, calls: calls, phones: phones}
}

func (p *Processor) Apply(event *CanonicalEvent) (*ApplyResult, error) {
	mu := p.lockFor(event.CallID)
	mu.Lock()
	defer mu.Unlock()

	var result *ApplyResult
	err := database.WithTx(p.db, func(tx *sql.Tx) error {
		r, err := p.applyTx(tx, event)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("call_id", event.CallID).
		Str("event_type", event.RawType).
		Str("outcome", string(result.Outcome)).
		Msg("event applied")

	return result, nil
}

func (p *Processor) applyTx(tx *sql.Tx, event *CanonicalEvent) (*ApplyResult, error) {
	call, err := p.calls.FindByCallIDTx(tx, event.CallID)
	if err != nil {
		return nil, err
	}

	logEntry := &models.CallEvent{
		CallID:    event.CallID,
		EventType: event.RawType,
		EventData: event.Data,
		Source:    event.Source,
	}

	result := &ApplyResult{CallID: event.CallID}

	switch event.Type {
	case EventCallInitiated:
		if call == nil {
			call = p.newCallFromInitiated(event, logEntry)
			if err := p.calls.CreateTx(tx, call); err != nil {
				return nil, err
			}
			result.Applied = true
			result.Outcome = OutcomeCreated
		} else {
			p.reconcileInitiated(call, event, logEntry)
			if err := p.calls.UpdateTx(tx, call); err != nil {
				return nil, err
			}
			result.Applied = true
			result.Outcome = OutcomeUpdated
		}
		if call.CustomerPhone != "" {
			if _, err := p.calls.UpsertCustomerTx(tx, call.CustomerName, call.CustomerPhone, call.CustomerEmail); err != nil {
				return nil, err
			}
		}

	case EventCallConnected, EventCallAnswered,
		EventCallCompleted,
		EventCallFailed, EventCallCancelled, EventCallNoAnswer, EventCallBusy:
		if call == nil {
			call = p.newPlaceholder(event)
			if err := p.calls.CreateTx(tx, call); err != nil {
				return nil, err
			}
			result.Applied = true
			result.Outcome = OutcomeCreated
			log.Warn().
				Str("call_id", event.CallID).
				Str("event_type", event.RawType).
				Msg("event arrived before call.initiated, created placeholder record")
		} else if models.IsTerminalStatus(call.Status) {
			// Terminal statuses never change again. The event still lands in
			// the audit trail below.
			result.Applied = false
			result.Outcome = OutcomeIgnoredTerminal
		} else {
			applyStatusEvent(call, event)
			if err := p.calls.UpdateTx(tx, call); err != nil {
				return nil, err
			}
			result.Applied = true
			result.Outcome = OutcomeUpdated
		}

	case EventRecordingReady, EventTranscriptReady, EventErrorOccurred:
		// Enrichment applies even after a terminal status, for late-arriving
		// metadata.
		if call == nil {
			call = p.newPlaceholder(event)
			applyEnrichment(call, event)
			if err := p.calls.CreateTx(tx, call); err != nil {
				return nil, err
			}
			result.Applied = true
			result.Outcome = OutcomeCreated
			log.Warn().
				Str("call_id", event.CallID).
				Str("event_type", event.RawType).
				Msg("enrichment arrived for unseen call, created placeholder record")
		} else {
			applyEnrichment(call, event)
			if err := p.calls.UpdateTx(tx, call); err != nil {
				return nil, err
			}
			result.Applied = true
			result.Outcome = OutcomeUpdated
		}

	case EventParticipantJoined, EventParticipantLeft, EventUnknown:
		// Log-only events: no status or field mutation.
		if call == nil {
			call = p.newPlaceholder(event)
			if err := p.calls.CreateTx(tx, call); err != nil {
				return nil, err
			}
			result.Applied = true
			result.Outcome = OutcomeCreated
			log.Warn().
				Str("call_id", event.CallID).
				Str("event_type", event.RawType).
				Msg("event arrived for unseen call, created placeholder record")
		} else {
			result.Applied = false
			result.Outcome = OutcomeIgnoredUnknown
		}

	default:
		return nil, fmt.Errorf("unhandled event type %q", event.Type)
	}

	// Every invocation appends exactly one audit row, applied or not.
	if err := p.calls.AppendEventTx(tx, logEntry); err != nil {
		return nil, err
	}

	return result, nil
}

func (p *Processor) newCallFromInitiated(event *CanonicalEvent, logEntry *models.CallEvent) *models.Call {
	startedAt := event.Timestamp.Unix()
	call := &models.Call{
		CallID:        event.CallID,
		RoomName:      event.stringField("room_name"),
		DispatchID:    event.stringField("dispatch_id"),
		CustomerName:  event.stringField("customer_name"),
		CustomerPhone: event.stringField("customer_phone", "to"),
		CustomerEmail: event.stringField("customer_email"),
		CustomerQuery: event.stringField("customer_query", "query"),
		Status:        models.StatusInitiated,
		StartedAt:     &startedAt,
	}
	call.CustomerPhone = p.validatePhone(call.CustomerPhone, logEntry)
	return call
}

// reconcileInitiated handles an initiated event for a record that already
// exists, either a duplicate delivery or an out-of-order arrival after a
// placeholder. It fills absent fields and never moves status backwards.
func (p *Processor) reconcileInitiated(call *models.Call, event *CanonicalEvent, logEntry *models.CallEvent) {
	if call.StartedAt == nil {
		startedAt := event.Timestamp.Unix()
		call.StartedAt = &startedAt
	}
	if call.RoomName == "" {
		call.RoomName = event.stringField("room_name")
	}
	if call.DispatchID == "" {
		call.DispatchID = event.stringField("dispatch_id")
	}
	if call.CustomerName == "" {
		call.CustomerName = event.stringField("customer_name")
	}
	if call.CustomerPhone == "" {
		call.CustomerPhone = p.validatePhone(event.stringField("customer_phone", "to"), logEntry)
	}
	if call.CustomerEmail == "" {
		call.CustomerEmail = event.stringField("customer_email")
	}
	if call.CustomerQuery == "" {
		call.CustomerQuery = event.stringField("customer_query", "query")
	}
	// The completed event may have arrived first; now that the start time is
	// known the duration can be derived.
	recomputeDuration(call)
}

// validatePhone prefers the E.164 form when the number validates, keeps the
// raw value otherwise, and records the outcome on the audit entry.
func (p *Processor) validatePhone(raw string, logEntry *models.CallEvent) string {
	if raw == "" {
		return ""
	}
	result := p.phones.Validate(raw, "")
	if result.IsValid {
		logEntry.ValidationNote = "phone validated: " + result.E164
		return result.E164
	}
	logEntry.ValidationNote = "phone invalid, stored as received: " + result.Err
	return raw
}

func (p *Processor) newPlaceholder(event *CanonicalEvent) *models.Call {
	status := event.Type.statusFor()
	if status == "" {
		status = models.StatusInitiated
	}
	call := &models.Call{
		CallID: event.CallID,
		Status: status,
	}
	ts := event.Timestamp.Unix()
	switch event.Type {
	case EventCallConnected, EventCallAnswered:
		call.ConnectedAt = &ts
	case EventCallCompleted:
		call.EndedAt = &ts
	case EventCallFailed, EventCallCancelled, EventCallNoAnswer, EventCallBusy:
		call.ErrorDetails = event.stringField("error", "error_message")
	}
	return call
}

func applyStatusEvent(call *models.Call, event *CanonicalEvent) {
	call.Status = event.Type.statusFor()
	ts := event.Timestamp.Unix()

	switch event.Type {
	case EventCallConnected, EventCallAnswered:
		if call.ConnectedAt == nil {
			call.ConnectedAt = &ts
		}
	case EventCallCompleted:
		if call.EndedAt == nil {
			call.EndedAt = &ts
		}
		recomputeDuration(call)
	case EventCallFailed, EventCallCancelled, EventCallNoAnswer, EventCallBusy:
		if details := event.stringField("error", "error_message"); details != "" {
			call.ErrorDetails = details
		}
	}
}

func applyEnrichment(call *models.Call, event *CanonicalEvent) {
	switch event.Type {
	case EventRecordingReady:
		if url := event.stringField("recording_url", "url"); url != "" {
			call.RecordingURL = url
		}
	case EventTranscriptReady:
		if url := event.stringField("transcript_url", "url"); url != "" {
			call.TranscriptURL = url
		}
	case EventErrorOccurred:
		if details := event.stringField("error", "error_message"); details != "" {
			call.ErrorDetails = details
		}
	}
}

// recomputeDuration derives duration from the start and end timestamps. It
// only sets a value when both exist and the end is not before the start, so
// the field is never negative and never zeroed by coercion.
func recomputeDuration(call *models.Call) {
	if call.Duration != nil || call.StartedAt == nil || call.EndedAt == nil {
		return
	}
	if *call.EndedAt < *call.StartedAt {
		return
	}
	duration := *call.EndedAt - *call.StartedAt
	call.Duration = &duration
}

func (p *Processor) lockFor(callID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(callID))
	return &p.locks[h.Sum32()%uint32(len(p.locks))]
}
