// Package persistence provides PostgreSQL adapters for the core's outbound
// ports, grounded on the teacher's row-struct-and-toEntity idiom.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
)

// EventAdapter implements out.EventRepository using PostgreSQL as the
// system of record; a Redis-stream mirror for the dashboard/journal
// consumers named in spec.md §3 is out of this build's scope.
type EventAdapter struct {
	db *sqlx.DB
}

func NewEventAdapter(db *sqlx.DB) *EventAdapter {
	return &EventAdapter{db: db}
}

type eventRow struct {
	EventID          string         `db:"event_id"`
	Type             string         `db:"type"`
	Timestamp        time.Time      `db:"timestamp"`
	AccountID        string         `db:"account_id"`
	EmailID          sql.NullString `db:"email_id"`
	UserID           sql.NullString `db:"user_id"`
	Payload          []byte         `db:"payload"`
	ProcessingTimeMs sql.NullInt64  `db:"processing_time_ms"`
}

func (r eventRow) toEntity() (domain.Event, error) {
	e := domain.Event{
		EventID:   r.EventID,
		Type:      domain.EventType(r.Type),
		Timestamp: r.Timestamp,
		AccountID: r.AccountID,
	}
	if r.EmailID.Valid {
		e.EmailID = &r.EmailID.String
	}
	if r.UserID.Valid {
		e.UserID = &r.UserID.String
	}
	if r.ProcessingTimeMs.Valid {
		e.ProcessingTimeMs = &r.ProcessingTimeMs.Int64
	}
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &e.Payload); err != nil {
			return domain.Event{}, fmt.Errorf("decode event payload: %w", err)
		}
	}
	return e, nil
}

// Append inserts an immutable event row. event_log is append-only: there is
// no Update/Delete method on this adapter by design.
func (a *EventAdapter) Append(ctx context.Context, event domain.Event) (string, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return "", fmt.Errorf("encode event payload: %w", err)
	}

	const query = `
		INSERT INTO events (event_id, type, timestamp, account_id, email_id, user_id, payload, processing_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`

	_, err = a.db.ExecContext(ctx, query,
		event.EventID, string(event.Type), event.Timestamp, event.AccountID,
		event.EmailID, event.UserID, payload, event.ProcessingTimeMs,
	)
	if err != nil {
		return "", fmt.Errorf("append event: %w", err)
	}
	return event.EventID, nil
}

// Query supports C1's filtered reads (spec.md §4.1).
func (a *EventAdapter) Query(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	argIdx := 1

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, string(*filter.Type))
		argIdx++
	}
	if filter.AccountID != "" {
		conditions = append(conditions, fmt.Sprintf("account_id = $%d", argIdx))
		args = append(args, filter.AccountID)
		argIdx++
	}
	if filter.EmailID != "" {
		conditions = append(conditions, fmt.Sprintf("email_id = $%d", argIdx))
		args = append(args, filter.EmailID)
		argIdx++
	}
	if filter.StartAfter != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp > $%d", argIdx))
		args = append(args, *filter.StartAfter)
		argIdx++
	}
	if filter.EndBefore != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp < $%d", argIdx))
		args = append(args, *filter.EndBefore)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	query := fmt.Sprintf(`
		SELECT event_id, type, timestamp, account_id, email_id, user_id, payload, processing_time_ms
		FROM events
		WHERE %s
		ORDER BY timestamp ASC
		LIMIT $%d`, strings.Join(conditions, " AND "), argIdx)
	args = append(args, limit)

	rows, err := a.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var row eventRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		entity, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		events = append(events, entity)
	}
	return events, rows.Err()
}

var _ out.EventRepository = (*EventAdapter)(nil)
