package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/supuni9622/ModelSnap/app/models"
	"github.com/supuni9622/ModelSnap/internal/pkg/billing"
	"github.com/supuni9622/ModelSnap/internal/pkg/env"
)

// HandleStripeWebhook receives signed Stripe deliveries. Signature failures
// return 401 with no state change; everything after the dedup claim responds
// 200 so Stripe stops redelivering once the event is durably recorded.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	if !billing.VerifyStripeWebhookSignature(rawBody, signature, secret, billing.DefaultStripeSignatureTolerance, time.Now()) {
		return jsonError(c, fiber.StatusUnauthorized, "signature_invalid", "Invalid webhook signature")
	}

	event, err := billing.ParseStripeEvent(rawBody)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "malformed_payload", "Unparseable webhook payload")
	}

	return processWebhook(c, rawBody, event)
}

// HandleLemonSqueezyWebhook receives signed Lemon Squeezy deliveries.
func HandleLemonSqueezyWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("X-Signature")
	secret := env.GetEnv("LEMONSQUEEZY_WEBHOOK_SECRET", "")

	if !billing.VerifyLemonSqueezyWebhookSignature(rawBody, signature, secret) {
		return jsonError(c, fiber.StatusUnauthorized, "signature_invalid", "Invalid webhook signature")
	}

	// The delivery id header is optional; the parser derives a payload-based
	// dedup key when it is missing.
	eventID := firstHeaderValue(c, "X-Event-Id", "X-Event-ID")
	event, err := billing.ParseLemonSqueezyEvent(rawBody, eventID)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "malformed_payload", "Unparseable webhook payload")
	}

	return processWebhook(c, rawBody, event)
}

func processWebhook(c *fiber.Ctx, rawBody []byte, event *billing.NormalizedEvent) error {
	svc := getBillingService()

	stored, created, err := svc.RecordWebhookEvent(billing.WebhookEventInput{
		Provider:        event.Provider,
		ProviderEventID: event.EventID,
		EventType:       event.EventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "webhook_persist_failed", "Could not record webhook event")
	}
	if !created && stored.IsProcessed() {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	// A seen-but-unprocessed row means a previous receiver crashed mid-apply;
	// re-applying is safe because every mutation is idempotent per event id.
	if err := svc.ProcessEvent(stored, event); err != nil {
		log.Errorf("[Billing] Failed to process %s event %s: %v", event.Provider, event.EventID, err)
		return jsonError(c, fiber.StatusInternalServerError, "webhook_apply_failed", "Could not apply webhook event")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleAdminOrphanedWebhooks lists dead-lettered webhook events for review.
func HandleAdminOrphanedWebhooks(c *fiber.Ctx) error {
	events, err := getBillingService().OrphanedEvents(200)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Listing failed")
	}
	if events == nil {
		events = []models.BillingWebhookEvent{}
	}
	return c.JSON(fiber.Map{"events": events, "count": len(events)})
}
