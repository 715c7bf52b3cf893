package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
)

// ScanStateAdapter implements out.ScanStateRepository: the checkpoint store
// behind C11's pausable/resumable batch scans.
type ScanStateAdapter struct {
	db *sqlx.DB
}

func NewScanStateAdapter(db *sqlx.DB) *ScanStateAdapter {
	return &ScanStateAdapter{db: db}
}

type scanStateRow struct {
	ScanID               string         `db:"scan_id"`
	AccountID            string         `db:"account_id"`
	Config               []byte         `db:"config"`
	Status               string         `db:"status"`
	Processed            int            `db:"processed"`
	Skipped              int            `db:"skipped"`
	Failed               int            `db:"failed"`
	Total                int            `db:"total"`
	LastProcessedEmailID sql.NullString `db:"last_processed_email_id"`
	NextPageToken        sql.NullString `db:"next_page_token"`
	StartedAt            time.Time      `db:"started_at"`
	LastUpdatedAt        time.Time      `db:"last_updated_at"`
	Error                sql.NullString `db:"error"`
}

func (r scanStateRow) toEntity() (*domain.ScanState, error) {
	var cfg domain.ScanConfig
	if len(r.Config) > 0 {
		if err := json.Unmarshal(r.Config, &cfg); err != nil {
			return nil, fmt.Errorf("decode scan config: %w", err)
		}
	}
	state := &domain.ScanState{
		ScanID:    r.ScanID,
		AccountID: r.AccountID,
		Config:    cfg,
		Status:    domain.ScanStatus(r.Status),
		Counters: domain.ScanCounters{
			Processed: r.Processed,
			Skipped:   r.Skipped,
			Failed:    r.Failed,
			Total:     r.Total,
		},
		StartedAt:     r.StartedAt,
		LastUpdatedAt: r.LastUpdatedAt,
	}
	if r.LastProcessedEmailID.Valid {
		state.LastProcessedEmailID = r.LastProcessedEmailID.String
	}
	if r.NextPageToken.Valid {
		state.NextPageToken = r.NextPageToken.String
	}
	if r.Error.Valid {
		state.Error = &r.Error.String
	}
	return state, nil
}

func (a *ScanStateAdapter) Create(ctx context.Context, state *domain.ScanState) error {
	cfg, err := json.Marshal(state.Config)
	if err != nil {
		return fmt.Errorf("encode scan config: %w", err)
	}
	const query = `
		INSERT INTO scan_states (
			scan_id, account_id, config, status, processed, skipped, failed, total,
			last_processed_email_id, next_page_token, started_at, last_updated_at, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = a.db.ExecContext(ctx, query,
		state.ScanID, state.AccountID, cfg, string(state.Status),
		state.Counters.Processed, state.Counters.Skipped, state.Counters.Failed, state.Counters.Total,
		nullStr(state.LastProcessedEmailID), nullStr(state.NextPageToken), state.StartedAt, state.LastUpdatedAt, state.Error,
	)
	if err != nil {
		return fmt.Errorf("create scan state: %w", err)
	}
	return nil
}

func (a *ScanStateAdapter) Get(ctx context.Context, scanID string) (*domain.ScanState, error) {
	const query = `
		SELECT scan_id, account_id, config, status, processed, skipped, failed, total,
			last_processed_email_id, next_page_token, started_at, last_updated_at, error
		FROM scan_states WHERE scan_id = $1`

	var row scanStateRow
	if err := a.db.QueryRowxContext(ctx, query, scanID).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("scan %s not found", scanID)
		}
		return nil, fmt.Errorf("get scan state: %w", err)
	}
	return row.toEntity()
}

// Save persists status/counters/checkpoint, preserving the volatile
// RecentBatchDurations/ConsecutiveTransportErrors fields as in-process only
// (they carry `db:"-"` and are never read back).
func (a *ScanStateAdapter) Save(ctx context.Context, state *domain.ScanState) error {
	const query = `
		UPDATE scan_states SET
			status = $1, processed = $2, skipped = $3, failed = $4, total = $5,
			last_processed_email_id = $6, next_page_token = $7, last_updated_at = $8, error = $9
		WHERE scan_id = $10`

	_, err := a.db.ExecContext(ctx, query,
		string(state.Status), state.Counters.Processed, state.Counters.Skipped, state.Counters.Failed, state.Counters.Total,
		nullStr(state.LastProcessedEmailID), nullStr(state.NextPageToken), state.LastUpdatedAt, state.Error, state.ScanID,
	)
	if err != nil {
		return fmt.Errorf("save scan state: %w", err)
	}
	return nil
}

var _ out.ScanStateRepository = (*ScanStateAdapter)(nil)
