package domain

import "time"

// FeedbackAction is the closed set of signals C9 translates into preference
// updates, whether observed implicitly on provider state or reported
// explicitly through a review-queue transition.
type FeedbackAction string

const (
	FeedbackReply         FeedbackAction = "reply"
	FeedbackArchive       FeedbackAction = "archive"
	FeedbackDelete        FeedbackAction = "delete"
	FeedbackStar          FeedbackAction = "star"
	FeedbackUnstar        FeedbackAction = "unstar"
	FeedbackLabelChange   FeedbackAction = "label_change"
	FeedbackMove          FeedbackAction = "move"
	FeedbackReviewApprove FeedbackAction = "review_approve"
	FeedbackReviewReject  FeedbackAction = "review_reject"
	FeedbackReviewModify  FeedbackAction = "review_modify"
)

// FeedbackSource distinguishes signals detected on provider state from
// those originating in an explicit review-queue transition.
type FeedbackSource string

const (
	FeedbackSourceImplicit    FeedbackSource = "implicit"
	FeedbackSourceReviewQueue FeedbackSource = "review_queue"
)

// FeedbackEvent is one observation C9 consumes to update sender/domain
// preference state.
type FeedbackEvent struct {
	Action          FeedbackAction `json:"action"`
	AccountID       string         `json:"account_id"`
	EmailID         string         `json:"email_id"`
	Sender          string         `json:"sender"`
	SenderDomain    string         `json:"sender_domain"`
	PriorCategory   Category       `json:"prior_category"`
	NewCategory     *Category      `json:"new_category,omitempty"`
	PriorImportance float64        `json:"prior_importance"`
	Timestamp       time.Time      `json:"timestamp"`
	Source          FeedbackSource `json:"source"`
}

// replyActions, archiveActions and deleteActions say, for each action that
// is itself an observation of one of the three EMA-tracked rates, whether
// observing that action means x=1 for that rate. Actions outside these sets
// (star/unstar/label_change/move/review_*) are not rate observations here;
// core/feedback decides their effect (star/unstar nudge importance, review
// reject/modify feed the rates through their own mapping).
var replyActions = map[FeedbackAction]bool{FeedbackReply: true}
var archiveActions = map[FeedbackAction]bool{FeedbackArchive: true}
var deleteActions = map[FeedbackAction]bool{FeedbackDelete: true}

// IsReplySignal, IsArchiveSignal, IsDeleteSignal report whether this action
// is itself an observation for the corresponding EMA rate.
func (f FeedbackEvent) IsReplySignal() bool   { return replyActions[f.Action] }
func (f FeedbackEvent) IsArchiveSignal() bool { return archiveActions[f.Action] }
func (f FeedbackEvent) IsDeleteSignal() bool  { return deleteActions[f.Action] }
