package classification

import (
	"context"
	"testing"
	"time"

	"mailtriage/core/domain"
)

type fakePreferenceRepo struct {
	senders map[string]*domain.SenderPreference
	domains map[string]*domain.DomainPreference
}

func (f *fakePreferenceRepo) GetSenderPreference(ctx context.Context, accountID, senderEmail string) (*domain.SenderPreference, error) {
	return f.senders[accountID+"|"+senderEmail], nil
}

func (f *fakePreferenceRepo) GetDomainPreference(ctx context.Context, accountID, domainName string) (*domain.DomainPreference, error) {
	return f.domains[accountID+"|"+domainName], nil
}

func (f *fakePreferenceRepo) UpsertSenderPreference(ctx context.Context, pref *domain.SenderPreference) error {
	if f.senders == nil {
		f.senders = map[string]*domain.SenderPreference{}
	}
	f.senders[pref.AccountID+"|"+pref.SenderEmail] = pref
	return nil
}

func (f *fakePreferenceRepo) UpsertDomainPreference(ctx context.Context, pref *domain.DomainPreference) error {
	if f.domains == nil {
		f.domains = map[string]*domain.DomainPreference{}
	}
	f.domains[pref.AccountID+"|"+pref.Domain] = pref
	return nil
}

func TestHistoryLayerClassify(t *testing.T) {
	t.Run("sender below minimum sample size falls back to domain", func(t *testing.T) {
		repo := &fakePreferenceRepo{
			senders: map[string]*domain.SenderPreference{
				"acc1|a@b.com": {
					AccountID: "acc1", SenderEmail: "a@b.com",
					Counters: domain.PreferenceCounters{EmailsSeen: domain.SenderMinEmails - 1},
					ReplyRate: 0.9,
				},
			},
			domains: map[string]*domain.DomainPreference{
				"acc1|b.com": {
					AccountID: "acc1", Domain: "b.com",
					Counters: domain.PreferenceCounters{EmailsSeen: domain.DomainMinEmails},
					ReplyRate: 0.8, ArchiveRate: 0.0, DeleteRate: 0.0,
				},
			},
		}
		layer := NewHistoryLayer(repo, nil)
		email := domain.EmailToClassify{AccountID: "acc1", Sender: "a@b.com", SenderDomain: "b.com"}

		got := layer.Classify(context.Background(), email)
		if got.NullScore {
			t.Fatalf("expected domain fallback to produce a non-null score")
		}
		if got.Category != domain.CategoryImportant {
			t.Errorf("Category = %v, want %v (domain reply_rate 0.8 qualifies as important)", got.Category, domain.CategoryImportant)
		}
		for _, s := range got.Signals {
			if s == "sender_preference" {
				t.Errorf("expected domain_preference signal, sender row should have been skipped (below min sample)")
			}
		}
	})

	t.Run("sender meeting minimum sample size wins over domain", func(t *testing.T) {
		repo := &fakePreferenceRepo{
			senders: map[string]*domain.SenderPreference{
				"acc1|a@b.com": {
					AccountID: "acc1", SenderEmail: "a@b.com",
					Counters: domain.PreferenceCounters{EmailsSeen: domain.SenderMinEmails},
					ReplyRate: 0.9,
				},
			},
		}
		layer := NewHistoryLayer(repo, nil)
		email := domain.EmailToClassify{AccountID: "acc1", Sender: "a@b.com", SenderDomain: "b.com"}

		got := layer.Classify(context.Background(), email)
		if got.NullScore {
			t.Fatalf("expected sender preference to produce a non-null score")
		}
		if got.Category != domain.CategoryImportant {
			t.Errorf("Category = %v, want %v", got.Category, domain.CategoryImportant)
		}
	})

	t.Run("neither sender nor domain qualifies returns null score", func(t *testing.T) {
		layer := NewHistoryLayer(&fakePreferenceRepo{}, nil)
		email := domain.EmailToClassify{AccountID: "acc1", Sender: "nobody@nowhere.com", SenderDomain: "nowhere.com"}

		got := layer.Classify(context.Background(), email)
		if !got.NullScore {
			t.Errorf("expected NullScore = true when no row qualifies")
		}
		if got.Confidence != 0 {
			t.Errorf("Confidence = %v, want 0 for null score", got.Confidence)
		}
	})

	t.Run("cache hit is preferred over repository read", func(t *testing.T) {
		cache := &fakePreferenceCache{
			senders: map[string]*domain.SenderPreference{
				"acc1|a@b.com": {
					AccountID: "acc1", SenderEmail: "a@b.com",
					Counters: domain.PreferenceCounters{EmailsSeen: domain.SenderMinEmails},
					ReplyRate: 0.9,
				},
			},
		}
		repo := &fakePreferenceRepo{} // would return nil if consulted
		layer := NewHistoryLayer(repo, cache)
		email := domain.EmailToClassify{AccountID: "acc1", Sender: "a@b.com"}

		got := layer.Classify(context.Background(), email)
		if got.NullScore {
			t.Errorf("expected cached preference to be used instead of falling through to repository")
		}
	})
}

type fakePreferenceCache struct {
	senders map[string]*domain.SenderPreference
	domains map[string]*domain.DomainPreference
}

func (c *fakePreferenceCache) GetSenderPreference(ctx context.Context, accountID, senderEmail string) (*domain.SenderPreference, bool) {
	p, ok := c.senders[accountID+"|"+senderEmail]
	return p, ok
}

func (c *fakePreferenceCache) SetSenderPreference(ctx context.Context, pref *domain.SenderPreference, ttl time.Duration) {
	if c.senders == nil {
		c.senders = map[string]*domain.SenderPreference{}
	}
	c.senders[pref.AccountID+"|"+pref.SenderEmail] = pref
}

func (c *fakePreferenceCache) GetDomainPreference(ctx context.Context, accountID, domainName string) (*domain.DomainPreference, bool) {
	p, ok := c.domains[accountID+"|"+domainName]
	return p, ok
}

func (c *fakePreferenceCache) SetDomainPreference(ctx context.Context, pref *domain.DomainPreference, ttl time.Duration) {
	if c.domains == nil {
		c.domains = map[string]*domain.DomainPreference{}
	}
	c.domains[pref.AccountID+"|"+pref.Domain] = pref
}

func (c *fakePreferenceCache) Invalidate(ctx context.Context, accountID, senderEmail, domainName string) {
	delete(c.senders, accountID+"|"+senderEmail)
	delete(c.domains, accountID+"|"+domainName)
}
