package controllers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/FlorianWeber/ListFox/app/models"
	"github.com/FlorianWeber/ListFox/app/repository"
	"github.com/FlorianWeber/ListFox/internal/pkg/env"
	"github.com/FlorianWeber/ListFox/internal/pkg/lifecycle"
	"github.com/FlorianWeber/ListFox/internal/pkg/payment"
)

const (
	webhookProvider = "payflow"
	webhookTimeout  = 15 * time.Second
)

// Indirections over the repository and the lifecycle engine so the
// handler can be exercised without a database.
var (
	webhookEventStore = func() repository.WebhookEventRepository {
		return getRepositories().WebhookEvent
	}
	applyPaymentSuccess = func(ctx context.Context, ref lifecycle.EventRef, planRef string) error {
		_, err := getLifecycleEngine().ApplyPaymentSuccess(ctx, ref, planRef)
		return err
	}
	applyPaymentTermination = func(ctx context.Context, ref lifecycle.EventRef) error {
		_, err := getLifecycleEngine().ApplyPaymentTermination(ctx, ref)
		return err
	}
)

// HandlePaymentWebhook ingests payment provider events. The signature is
// verified over the exact raw bytes before anything else happens; a bad
// signature is the only condition answered with 400. Everything past
// authenticity is a business outcome and acknowledged with 200 so the
// provider stops redelivering.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Payment-Signature"))
	secret := env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")
	if !payment.VerifyWebhookSignature(rawBody, signature, secret) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ev, parseErr := payment.ParseEvent(rawBody)
	eventType := ""
	eventID := firstHeaderValue(c, "X-Payment-Event-ID", "X-Payment-Delivery")
	if ev != nil {
		eventType = ev.Type
		if eventID == "" {
			eventID = ev.ID
		}
	}
	if eventID == "" {
		eventID = payloadFingerprint(rawBody)
	}

	events := webhookEventStore()
	created, stored, err := events.CreateIfNotExists(&models.PaymentWebhookEvent{
		Provider:        webhookProvider,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		log.Errorf("[Webhook] persisting event %s failed: %v", eventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	// A redelivered event is only acknowledged outright if the first
	// delivery got through cleanly. Otherwise the retry is the second
	// chance to apply the transition.
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	if parseErr != nil {
		_ = events.MarkProcessed(stored.ID, "payload parse: "+parseErr.Error())
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	outcome := payment.Classify(ev.Type)
	if outcome == payment.OutcomeIgnored {
		_ = events.MarkProcessed(stored.ID, "")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	ref, ok := payment.ResolveListingRef(ev)
	if !ok {
		log.Warnf("[Webhook] event %s (%s) carries no listing reference", eventID, ev.Type)
		_ = events.MarkProcessed(stored.ID, "no listing reference in payload")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	target := lifecycle.EventRef{ListingUUID: ref.ListingUUID, Email: ref.Email}
	var txErr error
	switch outcome {
	case payment.OutcomePaymentSuccess:
		txErr = applyPaymentSuccess(ctx, target, payment.PlanRef(ev))
	case payment.OutcomePaymentTerminated:
		txErr = applyPaymentTermination(ctx, target)
	}

	if errors.Is(txErr, lifecycle.ErrListingNotFound) {
		log.Warnf("[Webhook] event %s references unknown listing (uuid=%q email_present=%t)", eventID, ref.ListingUUID, ref.Email != "")
		_ = events.MarkProcessed(stored.ID, txErr.Error())
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}
	if txErr != nil {
		log.Errorf("[Webhook] transition for event %s failed: %v", eventID, txErr)
		_ = events.MarkProcessed(stored.ID, txErr.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "transition_failed"})
	}

	_ = events.MarkProcessed(stored.ID, "")
	invalidatePublicListingCache()
	log.Infof("[Webhook] event %s applied (%s)", eventID, outcome)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(c.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

// payloadFingerprint stands in for a missing provider event id so the
// dedupe index still catches byte-identical redeliveries.
func payloadFingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "payload:" + hex.EncodeToString(sum[:])
}
