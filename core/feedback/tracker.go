// Package feedback implements C9: translating observed and explicit user
// signals into sender/domain preference updates, the only writer of the
// rows the history layer (C4) reads.
package feedback

import (
	"context"
	"time"

	"mailtriage/core/domain"
	"mailtriage/core/eventlog"
	"mailtriage/core/port/out"
	"mailtriage/pkg/logger"
)

// importanceNudge is the step applied to InferredImportance for star/unstar,
// signals that don't map onto one of the three EMA-tracked rates: these move
// the derived importance directly instead.
const importanceNudge = 0.05

// Tracker is C9: the sole writer of SenderPreference/DomainPreference.
type Tracker struct {
	prefs  out.PreferenceRepository
	cache  out.PreferenceCache
	events *eventlog.Log
}

func NewTracker(prefs out.PreferenceRepository, cache out.PreferenceCache, events *eventlog.Log) *Tracker {
	return &Tracker{prefs: prefs, cache: cache, events: events}
}

// Record applies one feedback observation: if it originated in the review
// queue (C8), the corresponding REVIEW_* event is appended first, then the
// preference rows are updated, then USER_FEEDBACK is appended.
func (t *Tracker) Record(ctx context.Context, fe domain.FeedbackEvent) error {
	if fe.Source == domain.FeedbackSourceReviewQueue {
		t.appendReviewEvent(ctx, fe)
	}

	if err := t.updateSender(ctx, fe); err != nil {
		return err
	}
	if err := t.updateDomain(ctx, fe); err != nil {
		return err
	}

	emailID := fe.EmailID
	payload := map[string]interface{}{
		"action":         string(fe.Action),
		"sender":         fe.Sender,
		"prior_category": string(fe.PriorCategory),
	}
	if fe.NewCategory != nil {
		payload["new_category"] = string(*fe.NewCategory)
	}
	_, err := t.events.Append(ctx, domain.EventUserFeedback, fe.AccountID, &emailID, payload, nil)
	return err
}

func (t *Tracker) appendReviewEvent(ctx context.Context, fe domain.FeedbackEvent) {
	var et domain.EventType
	switch fe.Action {
	case domain.FeedbackReviewApprove:
		et = domain.EventReviewApproved
	case domain.FeedbackReviewReject:
		et = domain.EventReviewRejected
	case domain.FeedbackReviewModify:
		et = domain.EventReviewModified
	default:
		return
	}
	emailID := fe.EmailID
	if _, err := t.events.Append(ctx, et, fe.AccountID, &emailID, nil, nil); err != nil {
		logger.WithContext(ctx).WithError(err).Warn("failed to append review transition event")
	}
}

func (t *Tracker) updateSender(ctx context.Context, fe domain.FeedbackEvent) error {
	pref, err := t.prefs.GetSenderPreference(ctx, fe.AccountID, fe.Sender)
	if err != nil {
		return err
	}
	if pref == nil {
		pref = &domain.SenderPreference{AccountID: fe.AccountID, SenderEmail: fe.Sender}
	}
	applyObservation(fe, &pref.Counters, &pref.ReplyRate, &pref.ArchiveRate, &pref.DeleteRate, &pref.InferredImportance)
	pref.ConfidenceBase = domain.Saturation(pref.Counters.EmailsSeen)
	pref.LastUpdated = time.Now().UTC()

	if err := t.prefs.UpsertSenderPreference(ctx, pref); err != nil {
		return err
	}
	if t.cache != nil {
		t.cache.Invalidate(ctx, fe.AccountID, fe.Sender, "")
	}
	return nil
}

func (t *Tracker) updateDomain(ctx context.Context, fe domain.FeedbackEvent) error {
	if fe.SenderDomain == "" {
		return nil
	}
	pref, err := t.prefs.GetDomainPreference(ctx, fe.AccountID, fe.SenderDomain)
	if err != nil {
		return err
	}
	if pref == nil {
		pref = &domain.DomainPreference{AccountID: fe.AccountID, Domain: fe.SenderDomain}
	}
	applyObservation(fe, &pref.Counters, &pref.ReplyRate, &pref.ArchiveRate, &pref.DeleteRate, &pref.InferredImportance)
	pref.ConfidenceBase = domain.Saturation(pref.Counters.EmailsSeen)
	pref.LastUpdated = time.Now().UTC()

	if err := t.prefs.UpsertDomainPreference(ctx, pref); err != nil {
		return err
	}
	if t.cache != nil {
		t.cache.Invalidate(ctx, fe.AccountID, "", fe.SenderDomain)
	}
	return nil
}

// applyObservation mutates the shared counters/rates/importance fields of
// either a SenderPreference or a DomainPreference in place, per spec.md
// §4.9: reply/archive/delete are full EMA observations across all three
// tracked rates (an email that was replied to was, by construction, not
// also archived or deleted at that point). Star/unstar only nudge
// InferredImportance. A review reject counts as an archive observation; a
// review modify moves InferredImportance halfway to the corrected
// category's importance and counts as the observation that category
// implies. Review approve, label changes and moves change nothing. The EMA
// tracking confined to those three rates follows §4.9a's note that this
// system replaces the teacher's snapshot engagement formula.
func applyObservation(fe domain.FeedbackEvent, counters *domain.PreferenceCounters, replyRate, archiveRate, deleteRate, inferredImportance *float64) {
	switch fe.Action {
	case domain.FeedbackReply, domain.FeedbackArchive, domain.FeedbackDelete:
		counters.EmailsSeen++
		switch fe.Action {
		case domain.FeedbackReply:
			counters.Replies++
		case domain.FeedbackArchive:
			counters.Archives++
		case domain.FeedbackDelete:
			counters.Deletes++
		}
		*replyRate = domain.UpdateRate(*replyRate, fe.IsReplySignal(), domain.EMAAlpha)
		*archiveRate = domain.UpdateRate(*archiveRate, fe.IsArchiveSignal(), domain.EMAAlpha)
		*deleteRate = domain.UpdateRate(*deleteRate, fe.IsDeleteSignal(), domain.EMAAlpha)
	case domain.FeedbackStar:
		counters.Stars++
		*inferredImportance = clampImportance(*inferredImportance + importanceNudge)
	case domain.FeedbackUnstar:
		*inferredImportance = clampImportance(*inferredImportance - importanceNudge)
	case domain.FeedbackReviewApprove:
		// Agreement with the suggestion reinforces, but doesn't reverse, the
		// existing importance signal.
	case domain.FeedbackReviewReject:
		// A rejected suggestion with no replacement category is the review
		// queue's equivalent of archiving the suggestion away.
		counters.EmailsSeen++
		counters.Archives++
		*replyRate = domain.UpdateRate(*replyRate, false, domain.EMAAlpha)
		*archiveRate = domain.UpdateRate(*archiveRate, true, domain.EMAAlpha)
		*deleteRate = domain.UpdateRate(*deleteRate, false, domain.EMAAlpha)
	case domain.FeedbackReviewModify:
		if fe.NewCategory != nil {
			*inferredImportance = clampImportance((*inferredImportance + targetImportance(*fe.NewCategory)) / 2)
			isReply, isArchive, isDelete := rateObservationForCategory(*fe.NewCategory)
			counters.EmailsSeen++
			switch {
			case isReply:
				counters.Replies++
			case isArchive:
				counters.Archives++
			case isDelete:
				counters.Deletes++
			}
			*replyRate = domain.UpdateRate(*replyRate, isReply, domain.EMAAlpha)
			*archiveRate = domain.UpdateRate(*archiveRate, isArchive, domain.EMAAlpha)
			*deleteRate = domain.UpdateRate(*deleteRate, isDelete, domain.EMAAlpha)
		}
	case domain.FeedbackLabelChange, domain.FeedbackMove:
		// No EMA or importance effect; these are organizational signals
		// this system doesn't yet interpret behaviorally.
	}
}

func clampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// rateObservationForCategory maps a human-corrected category onto the
// reply/archive/delete observation it implies for the EMA rates, so a
// review-modify correction reaches history.go's sender/domain preference
// scoring the same way an observed reply/archive/delete would.
func rateObservationForCategory(c domain.Category) (isReply, isArchive, isDelete bool) {
	switch c {
	case domain.CategoryImportant, domain.CategoryActionReq:
		return true, false, false
	case domain.CategorySpam:
		return false, false, true
	default:
		return false, true, false
	}
}

// targetImportance gives the nominal importance a human-corrected category
// implies, mirroring the rule layer's per-category defaults.
func targetImportance(c domain.Category) float64 {
	switch c {
	case domain.CategoryImportant:
		return 0.85
	case domain.CategoryActionReq:
		return 0.70
	case domain.CategoryNiceToKnow:
		return 0.40
	case domain.CategoryNewsletter:
		return 0.30
	case domain.CategorySystemNotif:
		return 0.40
	case domain.CategorySpam:
		return 0.00
	default:
		return 0.30
	}
}
