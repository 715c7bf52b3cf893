package domain

import "time"

// RawMessageRef is the minimal reference the fetch subsystem hands to the
// core for a single fetched message. Body and attachment bytes live in the
// fetch subsystem's own medium; the core never owns them directly.
type RawMessageRef struct {
	AccountID string `json:"account_id"`
	EmailID   string `json:"email_id"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// AttachmentRef describes one attachment as reported by the fetch path,
// before the orchestrator has decided whether/how it was stored.
type AttachmentRef struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MIME     string `json:"mime"`
	Hash     string `json:"hash"`
}

// EmailToClassify is the normalized view the orchestrator builds from a raw
// fetched message before handing it to the ensemble. It is the single input
// shape every classifier layer agrees on; no layer touches provider-specific
// fields directly.
type EmailToClassify struct {
	AccountID     string
	EmailID       string
	ThreadID      string
	Subject       string
	Sender        string
	SenderDomain  string
	ReceivedAt    time.Time
	BodyText      string
	BodyHTML      string
	ThreadPos     *int
	Attachments   []AttachmentRef
	HasAttachment bool
}
