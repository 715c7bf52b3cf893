package domain

import "time"

// AttachmentStatus tracks the outcome of storing one attachment, a detail
// the distilled spec names the field for but not its value set.
type AttachmentStatus string

const (
	AttachmentPending AttachmentStatus = "pending"
	AttachmentStored  AttachmentStatus = "stored"
	AttachmentFailed  AttachmentStatus = "failed"
	AttachmentSkipped AttachmentStatus = "skipped"
)

// AttachmentMetadata is the persisted record of one attachment belonging to
// a ProcessedEmail.
type AttachmentMetadata struct {
	Filename   string           `json:"filename"`
	Size       int64            `json:"size"`
	MIME       string           `json:"mime"`
	Hash       string           `json:"hash"`
	StoredPath string           `json:"stored_path,omitempty"`
	Status     AttachmentStatus `json:"status"`
}

// StorageLevel is retained for forward compatibility; only StorageFull is
// ever written (see SPEC_FULL.md's resolution of the storage-level open
// question).
type StorageLevel string

const StorageFull StorageLevel = "full"

// ProcessedEmail is the durable record of one fully processed message.
// Created once by the orchestrator (C10) on first processing; thereafter
// mutated only by re-processing (idempotent replace of verdict/extraction)
// or by C9 recording a user correction.
type ProcessedEmail struct {
	ID                      string               `db:"id" json:"id"`
	AccountID               string               `db:"account_id" json:"account_id"`
	EmailID                 string               `db:"email_id" json:"email_id"`
	ThreadID                *string              `db:"thread_id" json:"thread_id,omitempty"`
	Subject                 string               `db:"subject" json:"subject"`
	Sender                  string               `db:"sender" json:"sender"`
	SenderDomain            string               `db:"sender_domain" json:"sender_domain"`
	ReceivedAt              time.Time            `db:"received_at" json:"received_at"`
	Category                Category             `db:"category" json:"category"`
	ImportanceScore         float64              `db:"importance_score" json:"importance_score"`
	ClassificationConfidence float64             `db:"classification_confidence" json:"classification_confidence"`
	LayerTrace              []LayerScore         `db:"layer_trace" json:"layer_trace"`
	StorageLevel            StorageLevel         `db:"storage_level" json:"storage_level"`
	BodyText                *string              `db:"-" json:"body_text,omitempty"`
	BodyHTML                *string              `db:"-" json:"body_html,omitempty"`
	Summary                 *string              `db:"summary" json:"summary,omitempty"`
	ThreadPosition          *int                 `db:"thread_position" json:"thread_position,omitempty"`
	HasAttachments          bool                 `db:"has_attachments" json:"has_attachments"`
	AttachmentMetadata      []AttachmentMetadata `db:"attachment_metadata" json:"attachment_metadata,omitempty"`
	UserCorrected           bool                 `db:"user_corrected" json:"user_corrected"`
	OriginalCategory        *Category            `db:"original_category" json:"original_category,omitempty"`
	ProcessedAt             time.Time            `db:"processed_at" json:"processed_at"`
}

// ApplyCorrection records a HITL correction per the invariant that
// user_corrected implies a non-null, differing original_category.
func (p *ProcessedEmail) ApplyCorrection(newCategory Category) {
	if newCategory == p.Category {
		return
	}
	prior := p.Category
	p.OriginalCategory = &prior
	p.Category = newCategory
	p.UserCorrected = true
}

// Valid reports the two scalar invariants spec.md §8 requires of every
// ProcessedEmail.
func (p ProcessedEmail) Valid() bool {
	return p.ImportanceScore >= 0 && p.ImportanceScore <= 1 &&
		p.ClassificationConfidence >= 0 && p.ClassificationConfidence <= 1
}
