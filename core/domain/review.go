package domain

import "time"

// ReviewStatus is the terminal-transition state machine for a
// ReviewQueueItem: status moves from pending to exactly one of the other
// three values and never again.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
	ReviewModified ReviewStatus = "modified"
)

// ReviewQueueItem is a persisted, low/medium-confidence verdict awaiting a
// human-in-the-loop decision. Ordered for listing by (importance desc,
// added_at asc) at the repository layer.
type ReviewQueueItem struct {
	ID                   string       `db:"id" json:"id"`
	AccountID            string       `db:"account_id" json:"account_id"`
	EmailID              string       `db:"email_id" json:"email_id"`
	ProcessedEmailID     string       `db:"processed_email_id" json:"processed_email_id"`
	SuggestedCategory    Category     `db:"suggested_category" json:"suggested_category"`
	Importance           float64      `db:"importance" json:"importance"`
	Confidence           float64      `db:"confidence" json:"confidence"`
	Reasoning            string       `db:"reasoning" json:"reasoning"`
	Status               ReviewStatus `db:"status" json:"status"`
	UserCorrectedCategory *Category   `db:"user_corrected_category" json:"user_corrected_category,omitempty"`
	UserFeedbackText     *string      `db:"user_feedback_text" json:"user_feedback_text,omitempty"`
	AddedAt              time.Time    `db:"added_at" json:"added_at"`
	ReviewedAt           *time.Time   `db:"reviewed_at" json:"reviewed_at,omitempty"`
	// Version supports optimistic-locking on status transitions (§5).
	Version int `db:"version" json:"-"`
}

// Valid checks the invariant that status = pending iff reviewed_at is null.
func (r ReviewQueueItem) Valid() bool {
	if r.Status == ReviewPending {
		return r.ReviewedAt == nil
	}
	return r.ReviewedAt != nil
}

// Terminal reports whether the item has already left the pending state;
// transitions out of a terminal status are rejected by the review queue.
func (r ReviewQueueItem) Terminal() bool {
	return r.Status != ReviewPending
}
