package classification

import (
	"context"
	"testing"

	"mailtriage/core/domain"
)

type fakeKnownDomainRepo struct {
	domains map[string]*domain.KnownDomain
}

func (f *fakeKnownDomainRepo) Lookup(ctx context.Context, d string) (*domain.KnownDomain, error) {
	if f.domains == nil {
		return nil, nil
	}
	return f.domains[d], nil
}

func TestRuleLayerClassify(t *testing.T) {
	tests := []struct {
		name           string
		email          domain.EmailToClassify
		knownDomains   map[string]*domain.KnownDomain
		wantCategory   domain.Category
		wantConfidence float64
		wantNullScore  bool
	}{
		{
			name: "spam keywords reaching score 3 trigger spam",
			email: domain.EmailToClassify{
				Subject:  "Claim your prize now",
				BodyText: "You have won! act now, 100% free, guaranteed winner",
			},
			wantCategory:   domain.CategorySpam,
			wantConfidence: 0.95,
		},
		{
			name: "auto-reply markers in subject and sender",
			email: domain.EmailToClassify{
				Subject: "Out of office: automatic reply",
				Sender:  "vacation-no-reply@company.com",
			},
			wantCategory:   domain.CategorySystemNotif,
			wantConfidence: 0.70,
		},
		{
			name: "newsletter markers in body",
			email: domain.EmailToClassify{
				Subject:  "Weekly digest",
				BodyText: "click unsubscribe to manage your subscription",
			},
			wantCategory:   domain.CategoryNewsletter,
			wantConfidence: 0.65,
		},
		{
			name: "system notification from no-reply sender with keywords",
			email: domain.EmailToClassify{
				Subject: "Password reset requested: your invoice attached",
				Sender:  "system@bank.com",
			},
			wantCategory:   domain.CategorySystemNotif,
			wantConfidence: 0.50,
		},
		{
			name: "no detector fires returns uncertain with zero confidence",
			email: domain.EmailToClassify{
				Subject:  "Lunch tomorrow?",
				BodyText: "Want to grab lunch tomorrow around noon?",
				Sender:   "friend@gmail.com",
			},
			wantCategory:   domain.CategoryUncertain,
			wantConfidence: 0,
			wantNullScore:  true,
		},
		{
			name: "known domain fast path used when no other detector fires",
			email: domain.EmailToClassify{
				Subject:      "Your statement is ready",
				SenderDomain: "trustedbank.com",
			},
			knownDomains: map[string]*domain.KnownDomain{
				"trustedbank.com": {Domain: "trustedbank.com", Category: domain.CategoryImportant, Confidence: 0.80, Source: "manual"},
			},
			wantCategory:   domain.CategoryImportant,
			wantConfidence: 0.80,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer := NewRuleLayer(&fakeKnownDomainRepo{domains: tt.knownDomains})
			got := layer.Classify(context.Background(), tt.email)

			if got.Category != tt.wantCategory {
				t.Errorf("Category = %v, want %v", got.Category, tt.wantCategory)
			}
			if got.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
			if got.Layer != domain.LayerRule {
				t.Errorf("Layer = %v, want %v", got.Layer, domain.LayerRule)
			}
			if got.NullScore != tt.wantNullScore {
				t.Errorf("NullScore = %v, want %v", got.NullScore, tt.wantNullScore)
			}
		})
	}
}

func TestRuleLayerSpamPrecedenceOverKnownDomain(t *testing.T) {
	// The spam detector matches four keywords here (score 4) against the
	// known-domain match's fixed score of 3, so spam must win on score.
	knownDomains := map[string]*domain.KnownDomain{
		"example.com": {Domain: "example.com", Category: domain.CategoryImportant, Confidence: 0.9, Source: "manual"},
	}
	layer := NewRuleLayer(&fakeKnownDomainRepo{domains: knownDomains})

	email := domain.EmailToClassify{
		Subject:      "Claim your prize now",
		BodyText:     "You have won! act now, guaranteed",
		SenderDomain: "example.com",
	}

	got := layer.Classify(context.Background(), email)
	if got.Category != domain.CategorySpam {
		t.Errorf("Category = %v, want %v (spam should outscore the known-domain match)", got.Category, domain.CategorySpam)
	}
}

func TestRuleLayerNilKnownDomainRepository(t *testing.T) {
	layer := NewRuleLayer(nil)
	email := domain.EmailToClassify{Subject: "hello", SenderDomain: "example.com"}

	got := layer.Classify(context.Background(), email)
	if got.Category != domain.CategoryUncertain {
		t.Errorf("Category = %v, want %v with nil known-domain repository", got.Category, domain.CategoryUncertain)
	}
	if !got.NullScore {
		t.Errorf("expected NullScore = true with nil known-domain repository and no detector match")
	}
}
