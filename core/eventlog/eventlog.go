// Package eventlog implements C1: the append-only event log every other
// component writes to, stored through out.EventRepository (Postgres in this
// build). There is no Redis-stream mirror for the out-of-scope
// dashboard/journal consumers; they would read the same repository.
package eventlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
)

// Log is the thin façade every producer calls instead of talking to
// out.EventRepository directly, so event construction (ID, timestamp) lives
// in one place.
type Log struct {
	repo out.EventRepository
}

func NewLog(repo out.EventRepository) *Log {
	return &Log{repo: repo}
}

// Append stamps and persists one event. emailID and processingTimeMs are
// optional per spec.md §3 (account-level events like HISTORY_SCAN_STARTED
// carry neither).
func (l *Log) Append(ctx context.Context, eventType domain.EventType, accountID string, emailID *string, payload map[string]interface{}, processingTimeMs *int64) (domain.Event, error) {
	event := domain.Event{
		EventID:          uuid.NewString(),
		Type:             eventType,
		Timestamp:        time.Now().UTC(),
		AccountID:        accountID,
		EmailID:          emailID,
		Payload:          payload,
		ProcessingTimeMs: processingTimeMs,
	}
	id, err := l.repo.Append(ctx, event)
	if err != nil {
		return domain.Event{}, err
	}
	event.EventID = id
	return event, nil
}

// AppendWithID persists an event under a caller-chosen ID. The orchestrator
// uses this for EMAIL_ANALYZED so the same ID can be threaded through as
// each extracted Task/Decision/Question's BackRef.ExtractionEventID before
// the event itself is appended.
func (l *Log) AppendWithID(ctx context.Context, eventID string, eventType domain.EventType, accountID string, emailID *string, payload map[string]interface{}) (domain.Event, error) {
	event := domain.Event{
		EventID:   eventID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		AccountID: accountID,
		EmailID:   emailID,
		Payload:   payload,
	}
	id, err := l.repo.Append(ctx, event)
	if err != nil {
		return domain.Event{}, err
	}
	event.EventID = id
	return event, nil
}

// Query runs a C1 read per spec.md §4.1.
func (l *Log) Query(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	return l.repo.Query(ctx, filter)
}
