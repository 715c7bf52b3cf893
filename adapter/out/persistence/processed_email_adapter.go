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

// ProcessedEmailAdapter implements out.ProcessedEmailRepository.
type ProcessedEmailAdapter struct {
	db *sqlx.DB
}

func NewProcessedEmailAdapter(db *sqlx.DB) *ProcessedEmailAdapter {
	return &ProcessedEmailAdapter{db: db}
}

type processedEmailRow struct {
	ID                       string          `db:"id"`
	AccountID                string          `db:"account_id"`
	EmailID                  string          `db:"email_id"`
	ThreadID                 sql.NullString  `db:"thread_id"`
	Subject                  string          `db:"subject"`
	Sender                   string          `db:"sender"`
	SenderDomain             string          `db:"sender_domain"`
	ReceivedAt               time.Time       `db:"received_at"`
	Category                 string          `db:"category"`
	ImportanceScore          float64         `db:"importance_score"`
	ClassificationConfidence float64         `db:"classification_confidence"`
	LayerTrace               []byte          `db:"layer_trace"`
	StorageLevel             string          `db:"storage_level"`
	Summary                  sql.NullString  `db:"summary"`
	ThreadPosition           sql.NullInt64   `db:"thread_position"`
	HasAttachments           bool            `db:"has_attachments"`
	AttachmentMetadata       []byte          `db:"attachment_metadata"`
	UserCorrected            bool            `db:"user_corrected"`
	OriginalCategory         sql.NullString  `db:"original_category"`
	ProcessedAt              time.Time       `db:"processed_at"`
}

func (r processedEmailRow) toEntity() (*domain.ProcessedEmail, error) {
	e := &domain.ProcessedEmail{
		ID:                       r.ID,
		AccountID:                r.AccountID,
		EmailID:                  r.EmailID,
		Subject:                  r.Subject,
		Sender:                   r.Sender,
		SenderDomain:             r.SenderDomain,
		ReceivedAt:               r.ReceivedAt,
		Category:                 domain.Category(r.Category),
		ImportanceScore:          r.ImportanceScore,
		ClassificationConfidence: r.ClassificationConfidence,
		StorageLevel:             domain.StorageLevel(r.StorageLevel),
		HasAttachments:           r.HasAttachments,
		UserCorrected:            r.UserCorrected,
		ProcessedAt:              r.ProcessedAt,
	}
	if r.ThreadID.Valid {
		e.ThreadID = &r.ThreadID.String
	}
	if r.Summary.Valid {
		e.Summary = &r.Summary.String
	}
	if r.ThreadPosition.Valid {
		pos := int(r.ThreadPosition.Int64)
		e.ThreadPosition = &pos
	}
	if r.OriginalCategory.Valid {
		oc := domain.Category(r.OriginalCategory.String)
		e.OriginalCategory = &oc
	}
	if len(r.LayerTrace) > 0 {
		if err := json.Unmarshal(r.LayerTrace, &e.LayerTrace); err != nil {
			return nil, fmt.Errorf("decode layer_trace: %w", err)
		}
	}
	if len(r.AttachmentMetadata) > 0 {
		if err := json.Unmarshal(r.AttachmentMetadata, &e.AttachmentMetadata); err != nil {
			return nil, fmt.Errorf("decode attachment_metadata: %w", err)
		}
	}
	return e, nil
}

// Upsert keys on (account_id, email_id), satisfying the orchestrator's
// idempotent-reprocessing requirement (spec.md §4.10).
func (a *ProcessedEmailAdapter) Upsert(ctx context.Context, email *domain.ProcessedEmail) error {
	layerTrace, err := json.Marshal(email.LayerTrace)
	if err != nil {
		return fmt.Errorf("encode layer_trace: %w", err)
	}
	attachments, err := json.Marshal(email.AttachmentMetadata)
	if err != nil {
		return fmt.Errorf("encode attachment_metadata: %w", err)
	}

	var originalCategory *string
	if email.OriginalCategory != nil {
		s := string(*email.OriginalCategory)
		originalCategory = &s
	}

	const query = `
		INSERT INTO processed_emails (
			id, account_id, email_id, thread_id, subject, sender, sender_domain, received_at,
			category, importance_score, classification_confidence, layer_trace, storage_level,
			summary, thread_position, has_attachments, attachment_metadata,
			user_corrected, original_category, processed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
		ON CONFLICT (account_id, email_id) DO UPDATE SET
			category = EXCLUDED.category,
			importance_score = EXCLUDED.importance_score,
			classification_confidence = EXCLUDED.classification_confidence,
			layer_trace = EXCLUDED.layer_trace,
			summary = EXCLUDED.summary,
			user_corrected = EXCLUDED.user_corrected,
			original_category = EXCLUDED.original_category,
			processed_at = EXCLUDED.processed_at`

	_, err = a.db.ExecContext(ctx, query,
		email.ID, email.AccountID, email.EmailID, email.ThreadID, email.Subject, email.Sender, email.SenderDomain, email.ReceivedAt,
		string(email.Category), email.ImportanceScore, email.ClassificationConfidence, layerTrace, string(email.StorageLevel),
		email.Summary, email.ThreadPosition, email.HasAttachments, attachments,
		email.UserCorrected, originalCategory, email.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert processed_email: %w", err)
	}
	return nil
}

func (a *ProcessedEmailAdapter) GetByAccountAndEmailID(ctx context.Context, accountID, emailID string) (*domain.ProcessedEmail, error) {
	const query = `
		SELECT id, account_id, email_id, thread_id, subject, sender, sender_domain, received_at,
			category, importance_score, classification_confidence, layer_trace, storage_level,
			summary, thread_position, has_attachments, attachment_metadata,
			user_corrected, original_category, processed_at
		FROM processed_emails WHERE account_id = $1 AND email_id = $2`

	var row processedEmailRow
	if err := a.db.QueryRowxContext(ctx, query, accountID, emailID).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get processed_email: %w", err)
	}
	return row.toEntity()
}

func (a *ProcessedEmailAdapter) Exists(ctx context.Context, accountID, emailID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM processed_emails WHERE account_id = $1 AND email_id = $2)`
	if err := a.db.QueryRowxContext(ctx, query, accountID, emailID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check processed_email existence: %w", err)
	}
	return exists, nil
}

var _ out.ProcessedEmailRepository = (*ProcessedEmailAdapter)(nil)
