package domain

import "time"

// ProviderKind identifies the kind of mailbox transport an Account was
// onboarded through. The core never dials either transport itself; the
// value is carried for routing decisions made by external collaborators.
type ProviderKind string

const (
	ProviderOAuth ProviderKind = "oauth-provider"
	ProviderIMAP  ProviderKind = "imap"
)

// Account is a logical mailbox identity. It is created and owned by an
// external onboarding flow; the core only ever reads it.
type Account struct {
	AccountID    string       `db:"account_id" json:"account_id"`
	ProviderKind ProviderKind `db:"provider_kind" json:"provider_kind"`
	Address      string       `db:"address" json:"address"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

// BootstrapWindow is the age below which an account is in its bootstrap
// phase per the ensemble's weighting rule (C6).
const BootstrapWindow = 14 * 24 * time.Hour

// InBootstrapPhase reports whether the account should still receive
// bootstrap-phase ensemble weights as of now.
func (a Account) InBootstrapPhase(now time.Time) bool {
	return now.Sub(a.CreatedAt) < BootstrapWindow
}
