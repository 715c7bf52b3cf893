package domain

import "time"

// EventType is the closed set of domain events the system appends to the
// event log (C1). No producer may emit a value outside this set.
type EventType string

const (
	EventEmailFetched      EventType = "EMAIL_FETCHED"
	EventEmailClassified   EventType = "EMAIL_CLASSIFIED"
	EventEmailAnalyzed     EventType = "EMAIL_ANALYZED"
	EventTaskExtracted     EventType = "TASK_EXTRACTED"
	EventDecisionExtracted EventType = "DECISION_EXTRACTED"
	EventQuestionExtracted EventType = "QUESTION_EXTRACTED"
	EventReviewEnqueued    EventType = "REVIEW_ENQUEUED"
	EventReviewApproved    EventType = "REVIEW_APPROVED"
	EventReviewRejected    EventType = "REVIEW_REJECTED"
	EventReviewModified    EventType = "REVIEW_MODIFIED"
	EventUserFeedback      EventType = "USER_FEEDBACK"

	EventHistoryScanStarted   EventType = "HISTORY_SCAN_STARTED"
	EventHistoryScanPaused    EventType = "HISTORY_SCAN_PAUSED"
	EventHistoryScanResumed   EventType = "HISTORY_SCAN_RESUMED"
	EventHistoryScanCompleted EventType = "HISTORY_SCAN_COMPLETED"
	EventHistoryScanCancelled EventType = "HISTORY_SCAN_CANCELLED"
	EventHistoryScanError     EventType = "HISTORY_SCAN_ERROR"

	EventWebhookSubscriptionCreated EventType = "WEBHOOK_SUBSCRIPTION_CREATED"
	EventWebhookSubscriptionRenewed EventType = "WEBHOOK_SUBSCRIPTION_RENEWED"
	EventWebhookSubscriptionStopped EventType = "WEBHOOK_SUBSCRIPTION_STOPPED"
	EventWebhookNotificationReceived EventType = "WEBHOOK_NOTIFICATION_RECEIVED"

	// EventError is the payload event the orchestrator emits when a
	// retryable pipeline step fails, before re-raising to its driver (§4.10).
	EventError EventType = "ERROR"
)

// Event is one immutable entry in the append-only event log. Events are
// never updated or deleted once appended.
type Event struct {
	EventID           string                 `db:"event_id" json:"event_id"`
	Type              EventType              `db:"type" json:"type"`
	Timestamp         time.Time              `db:"timestamp" json:"timestamp"`
	AccountID         string                 `db:"account_id" json:"account_id"`
	EmailID           *string                `db:"email_id" json:"email_id,omitempty"`
	UserID            *string                `db:"user_id" json:"user_id,omitempty"`
	Payload           map[string]interface{} `db:"payload" json:"payload,omitempty"`
	ProcessingTimeMs  *int64                 `db:"processing_time_ms" json:"processing_time_ms,omitempty"`
}

// EventFilter constrains a C1 query. Zero-value fields are not applied as
// filters. StartAfter, when set, restricts results strictly to events
// appended after that instant, which is what lets tests isolate their own
// emissions per spec.md §4.1.
type EventFilter struct {
	Type       *EventType
	AccountID  string
	EmailID    string
	StartAfter *time.Time
	EndBefore  *time.Time
	Limit      int
}
