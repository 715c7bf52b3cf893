// Package webhook implements C12: the push-notification entry point that
// drives the orchestrator over newly-enumerated messages.
package webhook

import (
	"context"
	"time"

	"mailtriage/core/domain"
	"mailtriage/core/eventlog"
	"mailtriage/core/orchestrator"
	"mailtriage/core/port/out"
	"mailtriage/pkg/apperr"
	"mailtriage/pkg/logger"
)

// Handler is C12.
type Handler struct {
	subscriptions out.SubscriptionRepository
	provider      out.MailProvider
	pipeline      *orchestrator.Orchestrator
	events        *eventlog.Log
}

func NewHandler(subscriptions out.SubscriptionRepository, provider out.MailProvider, pipeline *orchestrator.Orchestrator, events *eventlog.Log) *Handler {
	return &Handler{subscriptions: subscriptions, provider: provider, pipeline: pipeline, events: events}
}

// HandleNotification enumerates message_ids added since the subscription's
// stored last_history_id and drives each through the orchestrator. The
// watermark only advances once every message in the batch has processed
// successfully (spec.md §4.12); a failure partway through leaves it in
// place so the next notification's enumeration naturally retries.
func (h *Handler) HandleNotification(ctx context.Context, accountID, historyID string) error {
	sub, err := h.subscriptions.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if sub == nil {
		return apperr.NotFound("subscription for account " + accountID)
	}
	if sub.Expired(time.Now()) {
		logger.WithContext(ctx).WithField("account_id", accountID).Warn("push notification received for an expired subscription")
	}

	if _, err := h.events.Append(ctx, domain.EventWebhookNotificationReceived, accountID, nil, map[string]interface{}{"history_id": historyID}, nil); err != nil {
		logger.WithContext(ctx).WithError(err).Warn("failed to append webhook-notification-received event")
	}

	messageIDs, err := h.provider.EnumerateHistory(ctx, accountID, sub.LastHistoryID)
	if err != nil {
		return apperr.External("mail-provider history enumeration", err)
	}

	for _, emailID := range messageIDs {
		body, err := h.provider.FetchBody(ctx, accountID, emailID)
		if err != nil {
			return apperr.External("mail-provider message fetch", err)
		}
		ref := domain.RawMessageRef{AccountID: accountID, EmailID: emailID, ThreadID: body.ThreadID}
		if _, err := h.pipeline.ProcessMessage(ctx, accountID, ref, body); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	sub.LastHistoryID = historyID
	sub.LastNotifiedAt = &now
	return h.subscriptions.Save(ctx, sub)
}
