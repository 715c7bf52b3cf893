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

// PreferenceAdapter implements out.PreferenceRepository: read access for C4,
// read-modify-write for C9. Upserts serialize on the (account_id, key)
// unique constraint rather than an explicit row lock, since C9 is the only
// writer and a single account's preference updates are processed serially
// by the feedback tracker's caller.
type PreferenceAdapter struct {
	db *sqlx.DB
}

func NewPreferenceAdapter(db *sqlx.DB) *PreferenceAdapter {
	return &PreferenceAdapter{db: db}
}

type senderPreferenceRow struct {
	AccountID          string    `db:"account_id"`
	SenderEmail        string    `db:"sender_email"`
	EmailsSeen         int64     `db:"emails_seen"`
	Replies            int64     `db:"replies"`
	Archives           int64     `db:"archives"`
	Deletes            int64     `db:"deletes"`
	Stars              int64     `db:"stars"`
	ReplyRate          float64   `db:"reply_rate"`
	ArchiveRate        float64   `db:"archive_rate"`
	DeleteRate         float64   `db:"delete_rate"`
	InferredImportance float64   `db:"inferred_importance"`
	ConfidenceBase     float64   `db:"confidence_base"`
	LastUpdated        time.Time `db:"last_updated"`
}

func (r senderPreferenceRow) toEntity() *domain.SenderPreference {
	return &domain.SenderPreference{
		AccountID:   r.AccountID,
		SenderEmail: r.SenderEmail,
		Counters: domain.PreferenceCounters{
			EmailsSeen: r.EmailsSeen,
			Replies:    r.Replies,
			Archives:   r.Archives,
			Deletes:    r.Deletes,
			Stars:      r.Stars,
		},
		ReplyRate:          r.ReplyRate,
		ArchiveRate:        r.ArchiveRate,
		DeleteRate:         r.DeleteRate,
		InferredImportance: r.InferredImportance,
		ConfidenceBase:     r.ConfidenceBase,
		LastUpdated:        r.LastUpdated,
	}
}

type domainPreferenceRow struct {
	AccountID          string    `db:"account_id"`
	Domain             string    `db:"domain"`
	EmailsSeen         int64     `db:"emails_seen"`
	Replies            int64     `db:"replies"`
	Archives           int64     `db:"archives"`
	Deletes            int64     `db:"deletes"`
	Stars              int64     `db:"stars"`
	ReplyRate          float64   `db:"reply_rate"`
	ArchiveRate        float64   `db:"archive_rate"`
	DeleteRate         float64   `db:"delete_rate"`
	InferredImportance float64   `db:"inferred_importance"`
	ConfidenceBase     float64   `db:"confidence_base"`
	LastUpdated        time.Time `db:"last_updated"`
}

func (r domainPreferenceRow) toEntity() *domain.DomainPreference {
	return &domain.DomainPreference{
		AccountID: r.AccountID,
		Domain:    r.Domain,
		Counters: domain.PreferenceCounters{
			EmailsSeen: r.EmailsSeen,
			Replies:    r.Replies,
			Archives:   r.Archives,
			Deletes:    r.Deletes,
			Stars:      r.Stars,
		},
		ReplyRate:          r.ReplyRate,
		ArchiveRate:        r.ArchiveRate,
		DeleteRate:         r.DeleteRate,
		InferredImportance: r.InferredImportance,
		ConfidenceBase:     r.ConfidenceBase,
		LastUpdated:        r.LastUpdated,
	}
}

func (a *PreferenceAdapter) GetSenderPreference(ctx context.Context, accountID, senderEmail string) (*domain.SenderPreference, error) {
	const query = `
		SELECT account_id, sender_email, emails_seen, replies, archives, deletes, stars,
			reply_rate, archive_rate, delete_rate, inferred_importance, confidence_base, last_updated
		FROM sender_preferences WHERE account_id = $1 AND sender_email = $2`

	var row senderPreferenceRow
	if err := a.db.QueryRowxContext(ctx, query, accountID, senderEmail).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get sender preference: %w", err)
	}
	return row.toEntity(), nil
}

func (a *PreferenceAdapter) GetDomainPreference(ctx context.Context, accountID, domainName string) (*domain.DomainPreference, error) {
	const query = `
		SELECT account_id, domain, emails_seen, replies, archives, deletes, stars,
			reply_rate, archive_rate, delete_rate, inferred_importance, confidence_base, last_updated
		FROM domain_preferences WHERE account_id = $1 AND domain = $2`

	var row domainPreferenceRow
	if err := a.db.QueryRowxContext(ctx, query, accountID, domainName).StructScan(&row); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get domain preference: %w", err)
	}
	return row.toEntity(), nil
}

func (a *PreferenceAdapter) UpsertSenderPreference(ctx context.Context, pref *domain.SenderPreference) error {
	const query = `
		INSERT INTO sender_preferences (
			account_id, sender_email, emails_seen, replies, archives, deletes, stars,
			reply_rate, archive_rate, delete_rate, inferred_importance, confidence_base, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (account_id, sender_email) DO UPDATE SET
			emails_seen = EXCLUDED.emails_seen, replies = EXCLUDED.replies,
			archives = EXCLUDED.archives, deletes = EXCLUDED.deletes, stars = EXCLUDED.stars,
			reply_rate = EXCLUDED.reply_rate, archive_rate = EXCLUDED.archive_rate,
			delete_rate = EXCLUDED.delete_rate, inferred_importance = EXCLUDED.inferred_importance,
			confidence_base = EXCLUDED.confidence_base, last_updated = EXCLUDED.last_updated`

	_, err := a.db.ExecContext(ctx, query,
		pref.AccountID, pref.SenderEmail, pref.Counters.EmailsSeen, pref.Counters.Replies,
		pref.Counters.Archives, pref.Counters.Deletes, pref.Counters.Stars,
		pref.ReplyRate, pref.ArchiveRate, pref.DeleteRate, pref.InferredImportance,
		pref.ConfidenceBase, pref.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert sender preference: %w", err)
	}
	return nil
}

func (a *PreferenceAdapter) UpsertDomainPreference(ctx context.Context, pref *domain.DomainPreference) error {
	const query = `
		INSERT INTO domain_preferences (
			account_id, domain, emails_seen, replies, archives, deletes, stars,
			reply_rate, archive_rate, delete_rate, inferred_importance, confidence_base, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (account_id, domain) DO UPDATE SET
			emails_seen = EXCLUDED.emails_seen, replies = EXCLUDED.replies,
			archives = EXCLUDED.archives, deletes = EXCLUDED.deletes, stars = EXCLUDED.stars,
			reply_rate = EXCLUDED.reply_rate, archive_rate = EXCLUDED.archive_rate,
			delete_rate = EXCLUDED.delete_rate, inferred_importance = EXCLUDED.inferred_importance,
			confidence_base = EXCLUDED.confidence_base, last_updated = EXCLUDED.last_updated`

	_, err := a.db.ExecContext(ctx, query,
		pref.AccountID, pref.Domain, pref.Counters.EmailsSeen, pref.Counters.Replies,
		pref.Counters.Archives, pref.Counters.Deletes, pref.Counters.Stars,
		pref.ReplyRate, pref.ArchiveRate, pref.DeleteRate, pref.InferredImportance,
		pref.ConfidenceBase, pref.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert domain preference: %w", err)
	}
	return nil
}

var _ out.PreferenceRepository = (*PreferenceAdapter)(nil)

// KnownDomainAdapter implements out.KnownDomainRepository, a small
// read-only lookup table the rule layer consults before falling back to
// generic keyword heuristics.
type KnownDomainAdapter struct {
	db *sqlx.DB
}

func NewKnownDomainAdapter(db *sqlx.DB) *KnownDomainAdapter {
	return &KnownDomainAdapter{db: db}
}

func (a *KnownDomainAdapter) Lookup(ctx context.Context, domainName string) (*domain.KnownDomain, error) {
	const query = `SELECT domain, category, confidence, source FROM known_domains WHERE domain = $1`
	var kd domain.KnownDomain
	if err := a.db.QueryRowxContext(ctx, query, domainName).StructScan(&kd); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup known domain: %w", err)
	}
	return &kd, nil
}

var _ out.KnownDomainRepository = (*KnownDomainAdapter)(nil)
