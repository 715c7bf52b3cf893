// Package out defines outbound ports: the repository and provider
// interfaces core components depend on but never implement themselves.
package out

import (
	"context"
	"time"

	"mailtriage/core/domain"
)

// EventRepository is the durable substrate behind C1: append-only,
// ordered per account, queryable by the filters EventFilter names.
type EventRepository interface {
	Append(ctx context.Context, event domain.Event) (string, error)
	Query(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error)
}

// ProcessedEmailRepository backs ProcessedEmail persistence. Upsert is
// keyed on (account_id, email_id) to satisfy the orchestrator's
// idempotency requirement.
type ProcessedEmailRepository interface {
	Upsert(ctx context.Context, email *domain.ProcessedEmail) error
	GetByAccountAndEmailID(ctx context.Context, accountID, emailID string) (*domain.ProcessedEmail, error)
	Exists(ctx context.Context, accountID, emailID string) (bool, error)
}

// ReviewQueueRepository backs C8. Listing is ordered by
// (importance desc, added_at asc) per spec.md §4.8; transitions are
// optimistic-locked on Version to reject double-transitions.
type ReviewQueueRepository interface {
	Enqueue(ctx context.Context, item *domain.ReviewQueueItem) error
	Get(ctx context.Context, id string) (*domain.ReviewQueueItem, error)
	List(ctx context.Context, filter ReviewListFilter) ([]domain.ReviewQueueItem, int, error)
	// Transition applies a status change, enforcing Terminal() at the
	// repository boundary via the supplied expectedVersion. A version
	// mismatch returns an apperr Conflict.
	Transition(ctx context.Context, id string, expectedVersion int, mutate func(*domain.ReviewQueueItem)) error
}

// ReviewListFilter constrains a C8 List call.
type ReviewListFilter struct {
	AccountID string
	Status    *domain.ReviewStatus
	AddedAfter *time.Time
	Limit     int
	Offset    int
}

// PreferenceRepository backs SenderPreference/DomainPreference: read-only
// access for C4, read-modify-write for C9 under row-level serialization.
type PreferenceRepository interface {
	GetSenderPreference(ctx context.Context, accountID, senderEmail string) (*domain.SenderPreference, error)
	GetDomainPreference(ctx context.Context, accountID, domain string) (*domain.DomainPreference, error)
	// UpsertSenderPreference serializes concurrent updates to the same key
	// (row lock/transaction); distinct keys proceed in parallel.
	UpsertSenderPreference(ctx context.Context, pref *domain.SenderPreference) error
	UpsertDomainPreference(ctx context.Context, pref *domain.DomainPreference) error
}

// KnownDomainRepository backs the rule layer's domain fast-path.
type KnownDomainRepository interface {
	Lookup(ctx context.Context, domain string) (*domain.KnownDomain, error)
}

// ScanStateRepository backs C11's checkpointed, pausable scan state.
type ScanStateRepository interface {
	Create(ctx context.Context, state *domain.ScanState) error
	Get(ctx context.Context, scanID string) (*domain.ScanState, error)
	Save(ctx context.Context, state *domain.ScanState) error
}

// SubscriptionRepository backs C12's per-account push watermark.
type SubscriptionRepository interface {
	Get(ctx context.Context, accountID string) (*domain.Subscription, error)
	Save(ctx context.Context, sub *domain.Subscription) error
}

// MemoryRepository persists the extractor's Task/Decision/Question items.
type MemoryRepository interface {
	SaveTasks(ctx context.Context, tasks []domain.Task) error
	SaveDecisions(ctx context.Context, decisions []domain.Decision) error
	SaveQuestions(ctx context.Context, questions []domain.Question) error
}

// AccountRepository is the core's read-only view of Account; ownership and
// writes belong to an external onboarding flow.
type AccountRepository interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
}

// BodyStore persists the large, variable-size body_text/body_html split
// out of the relational ProcessedEmail row (adapter/out/mongodb).
type BodyStore interface {
	SaveBody(ctx context.Context, accountID, emailID string, bodyText, bodyHTML string) error
	GetBody(ctx context.Context, accountID, emailID string) (bodyText, bodyHTML string, err error)
}

// PreferenceCache is a read-through cache in front of PreferenceRepository
// reads, used by C4 to avoid a round trip on hot sender/domain keys.
type PreferenceCache interface {
	GetSenderPreference(ctx context.Context, accountID, senderEmail string) (*domain.SenderPreference, bool)
	SetSenderPreference(ctx context.Context, pref *domain.SenderPreference, ttl time.Duration)
	GetDomainPreference(ctx context.Context, accountID, domainName string) (*domain.DomainPreference, bool)
	SetDomainPreference(ctx context.Context, pref *domain.DomainPreference, ttl time.Duration)
	Invalidate(ctx context.Context, accountID, senderEmail, domainName string)
}

// MailProvider is the read side of the external mail-provider collaborator
// (§6). The core only calls it from C11/C12 drivers; it never performs
// OAuth or connection setup itself.
type MailProvider interface {
	FetchNew(ctx context.Context, accountID, query string, pageToken string) (FetchResult, error)
	FetchBody(ctx context.Context, accountID, emailID string) (RawBody, error)
	EnumerateHistory(ctx context.Context, accountID, sinceHistoryID string) ([]string, error)
}

// FetchResult is one page of RawMessageRefs plus the pagination token to
// continue from.
type FetchResult struct {
	Messages      []domain.RawMessageRef
	NextPageToken string
	Total         int
}

// RawBody is the fetched content of one message.
type RawBody struct {
	Subject       string
	Sender        string
	ReceivedAt    time.Time
	Text          string
	HTML          string
	ThreadID      string
	ThreadPos     *int
	Attachments   []domain.AttachmentRef
}
