package classification

import (
	"context"
	"math"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
)

// HistoryLayer is C4: a read-only behavioral classifier over per-sender and
// per-domain statistics. It never mutates preference state; only the
// feedback tracker (C9) writes it.
type HistoryLayer struct {
	prefs out.PreferenceRepository
	cache out.PreferenceCache
}

func NewHistoryLayer(prefs out.PreferenceRepository, cache out.PreferenceCache) *HistoryLayer {
	return &HistoryLayer{prefs: prefs, cache: cache}
}

// Classify looks up the sender's preference row, falling back to the
// sender's domain. A row only contributes a score once it clears the
// minimum sample size (§4.4); otherwise this returns a null-score.
func (h *HistoryLayer) Classify(ctx context.Context, email domain.EmailToClassify) domain.LayerScore {
	if sp := h.lookupSender(ctx, email.AccountID, email.Sender); sp != nil && sp.Counters.EmailsSeen >= domain.SenderMinEmails {
		return scoreFromSenderPreference(*sp)
	}
	if dp := h.lookupDomain(ctx, email.AccountID, email.SenderDomain); dp != nil && dp.Counters.EmailsSeen >= domain.DomainMinEmails {
		return scoreFromDomainPreference(*dp)
	}
	return domain.LayerScore{
		Layer:      domain.LayerHistory,
		Category:   domain.CategoryUncertain,
		Confidence: 0,
		Reasoning:  "no sender/domain preference meets the minimum sample size",
		NullScore:  true,
	}
}

func (h *HistoryLayer) lookupSender(ctx context.Context, accountID, sender string) *domain.SenderPreference {
	if h.cache != nil {
		if p, ok := h.cache.GetSenderPreference(ctx, accountID, sender); ok {
			return p
		}
	}
	p, err := h.prefs.GetSenderPreference(ctx, accountID, sender)
	if err != nil || p == nil {
		return nil
	}
	return p
}

func (h *HistoryLayer) lookupDomain(ctx context.Context, accountID, domainName string) *domain.DomainPreference {
	if h.cache != nil {
		if p, ok := h.cache.GetDomainPreference(ctx, accountID, domainName); ok {
			return p
		}
	}
	p, err := h.prefs.GetDomainPreference(ctx, accountID, domainName)
	if err != nil || p == nil {
		return nil
	}
	return p
}

// categorizeRates implements the §4.4 mapping from observed rates to
// (category, importance) shared by sender and domain scoring.
func categorizeRates(replyRate, archiveRate, deleteRate float64) (domain.Category, float64) {
	switch {
	case deleteRate >= 0.8:
		return domain.CategorySpam, clamp01(0.1 - deleteRate*0.1)
	case archiveRate >= 0.8 && replyRate < 0.1:
		return domain.CategoryNiceToKnow, clamp01(0.2 - archiveRate*0.1)
	case replyRate >= 0.7:
		return domain.CategoryImportant, clamp01(0.8 + (replyRate-0.7)*0.5)
	case replyRate >= 0.3:
		return domain.CategoryNiceToKnow, clamp01(0.5 - archiveRate*0.2)
	default:
		return domain.CategoryNiceToKnow, clamp01(0.3 - archiveRate*0.1)
	}
}

func scoreFromSenderPreference(sp domain.SenderPreference) domain.LayerScore {
	category, importance := categorizeRates(sp.ReplyRate, sp.ArchiveRate, sp.DeleteRate)
	confidence := clamp01(0.85 * domain.Saturation(sp.Counters.EmailsSeen))
	return domain.LayerScore{
		Layer:      domain.LayerHistory,
		Category:   category,
		Importance: importance,
		Confidence: confidence,
		Reasoning:  "sender history: reply_rate/archive_rate/delete_rate over observed emails",
		Signals:    []string{"sender_preference"},
	}
}

func scoreFromDomainPreference(dp domain.DomainPreference) domain.LayerScore {
	category, importance := categorizeRates(dp.ReplyRate, dp.ArchiveRate, dp.DeleteRate)
	confidence := clamp01(0.75 * domain.Saturation(dp.Counters.EmailsSeen))
	return domain.LayerScore{
		Layer:      domain.LayerHistory,
		Category:   category,
		Importance: importance,
		Confidence: confidence,
		Reasoning:  "domain history: reply_rate/archive_rate/delete_rate over observed emails",
		Signals:    []string{"domain_preference"},
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
