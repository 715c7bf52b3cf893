package domain

import "time"

// Subscription tracks one account's push-notification registration with the
// mail provider. Renewal is driven by an external scheduler; the core only
// reads/writes the watermark fields as notifications are processed.
type Subscription struct {
	AccountID        string    `db:"account_id" json:"account_id"`
	ProviderTopic    string    `db:"provider_topic" json:"provider_topic"`
	ExpiresAt        time.Time `db:"expires_at" json:"expires_at"`
	LastHistoryID    string    `db:"last_history_id" json:"last_history_id"`
	LastNotifiedAt   *time.Time `db:"last_notification_at" json:"last_notification_at,omitempty"`
}

// Expired reports whether the subscription's watermark has lapsed as of now.
func (s Subscription) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
