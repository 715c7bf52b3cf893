package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
)

// MemoryAdapter implements out.MemoryRepository, persisting the extractor's
// (C7) Task/Decision/Question output. Each save upserts the items one at a
// time, keyed on the item's own ID, which the extractor always mints fresh, so these are
// always plain inserts in practice; ON CONFLICT DO UPDATE only guards
// against a retried extraction re-submitting the same IDs.
type MemoryAdapter struct {
	db *sqlx.DB
}

func NewMemoryAdapter(db *sqlx.DB) *MemoryAdapter {
	return &MemoryAdapter{db: db}
}

func (a *MemoryAdapter) SaveTasks(ctx context.Context, tasks []domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	const query = `
		INSERT INTO tasks (
			id, account_id, email_id, extraction_event_id, description, deadline,
			priority, requires_action_from_me, assignee, status, source_context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`

	for _, t := range tasks {
		if _, err := a.db.ExecContext(ctx, query,
			t.ID, t.AccountID, t.EmailID, t.ExtractionEventID, t.Description, t.Deadline,
			string(t.Priority), t.RequiresActionFromMe, t.Assignee, string(t.Status), t.SourceContext,
		); err != nil {
			return fmt.Errorf("save task %s: %w", t.ID, err)
		}
	}
	return nil
}

func (a *MemoryAdapter) SaveDecisions(ctx context.Context, decisions []domain.Decision) error {
	if len(decisions) == 0 {
		return nil
	}
	const query = `
		INSERT INTO decisions (
			id, account_id, email_id, extraction_event_id, question, options,
			recommendation, urgency, requires_my_input, status, chosen_option, source_context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`

	for _, d := range decisions {
		if _, err := a.db.ExecContext(ctx, query,
			d.ID, d.AccountID, d.EmailID, d.ExtractionEventID, d.Question, pq.Array(d.Options),
			d.Recommendation, string(d.Urgency), d.RequiresMyInput, string(d.Status), d.ChosenOption, d.SourceContext,
		); err != nil {
			return fmt.Errorf("save decision %s: %w", d.ID, err)
		}
	}
	return nil
}

func (a *MemoryAdapter) SaveQuestions(ctx context.Context, questions []domain.Question) error {
	if len(questions) == 0 {
		return nil
	}
	const query = `
		INSERT INTO questions (
			id, account_id, email_id, extraction_event_id, question_text, question_type,
			urgency, requires_response, status, answer, source_context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`

	for _, q := range questions {
		if _, err := a.db.ExecContext(ctx, query,
			q.ID, q.AccountID, q.EmailID, q.ExtractionEventID, q.QuestionText, string(q.QuestionType),
			string(q.Urgency), q.RequiresResponse, string(q.Status), q.Answer, q.SourceContext,
		); err != nil {
			return fmt.Errorf("save question %s: %w", q.ID, err)
		}
	}
	return nil
}

var _ out.MemoryRepository = (*MemoryAdapter)(nil)
