package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/pkg/apperr"
)

// ReviewQueueAdapter implements out.ReviewQueueRepository, enforcing the
// optimistic-lock version check spec.md §8 requires on every transition.
type ReviewQueueAdapter struct {
	db *sqlx.DB
}

func NewReviewQueueAdapter(db *sqlx.DB) *ReviewQueueAdapter {
	return &ReviewQueueAdapter{db: db}
}

type reviewQueueRow struct {
	ID                    string         `db:"id"`
	AccountID             string         `db:"account_id"`
	EmailID               string         `db:"email_id"`
	ProcessedEmailID      sql.NullString `db:"processed_email_id"`
	SuggestedCategory     string         `db:"suggested_category"`
	Importance            float64        `db:"importance"`
	Confidence            float64        `db:"confidence"`
	Reasoning             string         `db:"reasoning"`
	Status                string         `db:"status"`
	UserCorrectedCategory sql.NullString `db:"user_corrected_category"`
	UserFeedbackText      sql.NullString `db:"user_feedback_text"`
	AddedAt               time.Time      `db:"added_at"`
	ReviewedAt            sql.NullTime   `db:"reviewed_at"`
	Version               int            `db:"version"`
}

func (r reviewQueueRow) toEntity() domain.ReviewQueueItem {
	item := domain.ReviewQueueItem{
		ID:                r.ID,
		AccountID:         r.AccountID,
		EmailID:           r.EmailID,
		ProcessedEmailID:  r.ProcessedEmailID.String,
		SuggestedCategory: domain.Category(r.SuggestedCategory),
		Importance:        r.Importance,
		Confidence:        r.Confidence,
		Reasoning:         r.Reasoning,
		Status:            domain.ReviewStatus(r.Status),
		AddedAt:           r.AddedAt,
		Version:           r.Version,
	}
	if r.UserCorrectedCategory.Valid {
		c := domain.Category(r.UserCorrectedCategory.String)
		item.UserCorrectedCategory = &c
	}
	if r.UserFeedbackText.Valid {
		item.UserFeedbackText = &r.UserFeedbackText.String
	}
	if r.ReviewedAt.Valid {
		item.ReviewedAt = &r.ReviewedAt.Time
	}
	return item
}

func (a *ReviewQueueAdapter) Enqueue(ctx context.Context, item *domain.ReviewQueueItem) error {
	const query = `
		INSERT INTO review_queue_items (
			id, account_id, email_id, processed_email_id, suggested_category,
			importance, confidence, reasoning, status, added_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := a.db.ExecContext(ctx, query,
		item.ID, item.AccountID, item.EmailID, nullStr(item.ProcessedEmailID), string(item.SuggestedCategory),
		item.Importance, item.Confidence, item.Reasoning, string(item.Status), item.AddedAt, item.Version,
	)
	if err != nil {
		return fmt.Errorf("enqueue review item: %w", err)
	}
	return nil
}

func (a *ReviewQueueAdapter) Get(ctx context.Context, id string) (*domain.ReviewQueueItem, error) {
	const query = `
		SELECT id, account_id, email_id, processed_email_id, suggested_category,
			importance, confidence, reasoning, status, user_corrected_category,
			user_feedback_text, added_at, reviewed_at, version
		FROM review_queue_items WHERE id = $1`

	var row reviewQueueRow
	if err := a.db.QueryRowxContext(ctx, query, id).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("review queue item")
		}
		return nil, fmt.Errorf("get review item: %w", err)
	}
	item := row.toEntity()
	return &item, nil
}

func (a *ReviewQueueAdapter) List(ctx context.Context, filter out.ReviewListFilter) ([]domain.ReviewQueueItem, int, error) {
	conditions := []string{"account_id = $1"}
	args := []interface{}{filter.AccountID}
	argIdx := 2

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*filter.Status))
		argIdx++
	}
	if filter.AddedAfter != nil {
		conditions = append(conditions, fmt.Sprintf("added_at > $%d", argIdx))
		args = append(args, *filter.AddedAfter)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	// Ordered by (importance desc, added_at asc) per spec.md §4.8.
	query := fmt.Sprintf(`
		SELECT id, account_id, email_id, processed_email_id, suggested_category,
			importance, confidence, reasoning, status, user_corrected_category,
			user_feedback_text, added_at, reviewed_at, version, COUNT(*) OVER() as total_count
		FROM review_queue_items
		WHERE %s
		ORDER BY importance DESC, added_at ASC
		LIMIT $%d OFFSET $%d`, strings.Join(conditions, " AND "), argIdx, argIdx+1)
	args = append(args, limit, filter.Offset)

	rows, err := a.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list review items: %w", err)
	}
	defer rows.Close()

	var items []domain.ReviewQueueItem
	total := 0
	for rows.Next() {
		var row struct {
			reviewQueueRow
			TotalCount int `db:"total_count"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, 0, fmt.Errorf("scan review item: %w", err)
		}
		items = append(items, row.reviewQueueRow.toEntity())
		total = row.TotalCount
	}
	return items, total, rows.Err()
}

// Transition applies mutate to the current row, then writes it back under a
// version-checked UPDATE: a mismatch means someone transitioned the item
// first, and the caller gets a Conflict rather than a silently clobbered
// review decision.
func (a *ReviewQueueAdapter) Transition(ctx context.Context, id string, expectedVersion int, mutate func(*domain.ReviewQueueItem)) error {
	item, err := a.Get(ctx, id)
	if err != nil {
		return err
	}
	mutate(item)

	const query = `
		UPDATE review_queue_items SET
			status = $1, user_corrected_category = $2, user_feedback_text = $3,
			reviewed_at = $4, version = version + 1
		WHERE id = $5 AND version = $6`

	result, err := a.db.ExecContext(ctx, query,
		string(item.Status), nullCategory(item.UserCorrectedCategory), item.UserFeedbackText,
		item.ReviewedAt, id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("transition review item: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.Conflict("review item was modified concurrently")
	}
	return nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullCategory(c *domain.Category) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*c), Valid: true}
}

var _ out.ReviewQueueRepository = (*ReviewQueueAdapter)(nil)
