package http

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"mailtriage/core/webhook"
	"mailtriage/pkg/apperr"
	"mailtriage/pkg/logger"
)

// idempotencyTTL bounds how long a (account, history_id) pair is remembered,
// wide enough to absorb a push provider's redelivery window without pinning
// the key forever.
const idempotencyTTL = 10 * time.Minute

// WebhookHandler is the HTTP entry point in front of core/webhook.Handler. It
// owns the transport-level concerns the domain handler doesn't: payload
// decoding and duplicate-delivery suppression.
type WebhookHandler struct {
	pipeline *webhook.Handler
	redis    *redis.Client
}

func NewWebhookHandler(pipeline *webhook.Handler, redisClient *redis.Client) *WebhookHandler {
	return &WebhookHandler{pipeline: pipeline, redis: redisClient}
}

func (h *WebhookHandler) Register(app *fiber.App) {
	app.Post("/webhook/notifications", h.Notify)
}

// notificationPayload is the push provider's notification envelope. Real
// providers wrap this in base64/pubsub framing; that decoding belongs to the
// modelprovider-adjacent mail provider package, not here.
type notificationPayload struct {
	AccountID string `json:"account_id"`
	HistoryID string `json:"history_id"`
}

func (h *WebhookHandler) idempotencyKey(accountID, historyID string) string {
	return fmt.Sprintf("webhook:idempotent:%s:%s", accountID, historyID)
}

// checkIdempotency reports whether this (account, history_id) pair has
// already been accepted. Any Redis error is treated as "not a duplicate"
// rather than silently dropping a legitimate notification.
func (h *WebhookHandler) checkIdempotency(c *fiber.Ctx, accountID, historyID string) bool {
	if h.redis == nil {
		return false
	}
	ok, err := h.redis.SetNX(c.Context(), h.idempotencyKey(accountID, historyID), "1", idempotencyTTL).Result()
	if err != nil {
		logger.WithError(err).Warn("idempotency check failed, processing notification anyway")
		return false
	}
	return !ok
}

func (h *WebhookHandler) Notify(c *fiber.Ctx) error {
	var payload notificationPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.SendStatus(fiber.StatusOK)
	}
	if payload.AccountID == "" || payload.HistoryID == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	if h.checkIdempotency(c, payload.AccountID, payload.HistoryID) {
		logger.WithField("account_id", payload.AccountID).Debug("duplicate push notification skipped")
		return c.SendStatus(fiber.StatusOK)
	}

	if err := h.pipeline.HandleNotification(c.Context(), payload.AccountID, payload.HistoryID); err != nil {
		if appErr, ok := err.(*apperr.AppError); ok {
			logger.WithContext(c.Context()).WithError(appErr).Warn("webhook notification processing failed")
			return c.SendStatus(appErr.HTTPStatus())
		}
		logger.WithContext(c.Context()).WithError(err).Error("webhook notification processing failed")
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.SendStatus(fiber.StatusOK)
}
