package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
)

// SubscriptionAdapter implements out.SubscriptionRepository: C12's
// per-account push watermark.
type SubscriptionAdapter struct {
	db *sqlx.DB
}

func NewSubscriptionAdapter(db *sqlx.DB) *SubscriptionAdapter {
	return &SubscriptionAdapter{db: db}
}

type subscriptionRow struct {
	AccountID      string       `db:"account_id"`
	ProviderTopic  string       `db:"provider_topic"`
	ExpiresAt      time.Time    `db:"expires_at"`
	LastHistoryID  string       `db:"last_history_id"`
	LastNotifiedAt sql.NullTime `db:"last_notification_at"`
}

func (r subscriptionRow) toEntity() *domain.Subscription {
	sub := &domain.Subscription{
		AccountID:     r.AccountID,
		ProviderTopic: r.ProviderTopic,
		ExpiresAt:     r.ExpiresAt,
		LastHistoryID: r.LastHistoryID,
	}
	if r.LastNotifiedAt.Valid {
		sub.LastNotifiedAt = &r.LastNotifiedAt.Time
	}
	return sub
}

func (a *SubscriptionAdapter) Get(ctx context.Context, accountID string) (*domain.Subscription, error) {
	const query = `
		SELECT account_id, provider_topic, expires_at, last_history_id, last_notification_at
		FROM subscriptions WHERE account_id = $1`

	var row subscriptionRow
	if err := a.db.QueryRowxContext(ctx, query, accountID).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return row.toEntity(), nil
}

func (a *SubscriptionAdapter) Save(ctx context.Context, sub *domain.Subscription) error {
	const query = `
		INSERT INTO subscriptions (account_id, provider_topic, expires_at, last_history_id, last_notification_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id) DO UPDATE SET
			provider_topic = EXCLUDED.provider_topic,
			expires_at = EXCLUDED.expires_at,
			last_history_id = EXCLUDED.last_history_id,
			last_notification_at = EXCLUDED.last_notification_at`

	_, err := a.db.ExecContext(ctx, query, sub.AccountID, sub.ProviderTopic, sub.ExpiresAt, sub.LastHistoryID, sub.LastNotifiedAt)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

var _ out.SubscriptionRepository = (*SubscriptionAdapter)(nil)
