package domain

import "time"

// ScanStatus is the history-scan controller's state machine (C11).
type ScanStatus string

const (
	ScanInProgress ScanStatus = "in_progress"
	ScanPaused     ScanStatus = "paused"
	ScanCompleted  ScanStatus = "completed"
	ScanCancelled  ScanStatus = "cancelled"
	ScanFailed     ScanStatus = "failed"
)

// ScanConfig parameterizes one history-scan run.
type ScanConfig struct {
	AccountID             string `json:"account_id"`
	Query                 string `json:"query"`
	BatchSize             int    `json:"batch_size"`
	SkipAlreadyProcessed  bool   `json:"skip_already_processed"`
}

// ScanCounters tallies per-scan progress for reporting and ETA computation.
type ScanCounters struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// ScanState is the volatile, periodically checkpointed state of one
// history-scan run.
type ScanState struct {
	ScanID              string       `db:"scan_id" json:"scan_id"`
	AccountID            string       `db:"account_id" json:"account_id"`
	Config               ScanConfig   `db:"config" json:"config"`
	Status               ScanStatus   `db:"status" json:"status"`
	Counters             ScanCounters `db:"counters" json:"counters"`
	LastProcessedEmailID string       `db:"last_processed_email_id" json:"last_processed_email_id,omitempty"`
	NextPageToken        string       `db:"next_page_token" json:"next_page_token,omitempty"`
	StartedAt            time.Time    `db:"started_at" json:"started_at"`
	LastUpdatedAt        time.Time    `db:"last_updated_at" json:"last_updated_at"`
	Error                *string      `db:"error" json:"error,omitempty"`
	// ConsecutiveTransportErrors counts consecutive failed batches for the
	// circuit-breaker-backed abort rule (§4.11: fail after 5 consecutive).
	ConsecutiveTransportErrors int `db:"-" json:"-"`
	// RecentBatchDurations holds up to the last K=5 batch durations, used to
	// compute a moving-rate ETA.
	RecentBatchDurations []time.Duration `db:"-" json:"-"`
}

// ETAWindow is the number of most recent batches the ETA is averaged over.
const ETAWindow = 5

// Resumable reports whether a scan in this status may be resumed. A
// cancelled scan is terminal; resume after cancel is always rejected.
func (s ScanState) Resumable() bool {
	return s.Status == ScanPaused
}
