package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlorianWeber/ListFox/app/models"
	"github.com/FlorianWeber/ListFox/app/repository"
	"github.com/FlorianWeber/ListFox/internal/pkg/lifecycle"
)

const testWebhookSecret = "wh-secret"

// fakeWebhookEventRepo records events in memory with the same
// created/stored contract as the gorm implementation.
type fakeWebhookEventRepo struct {
	stored    *models.PaymentWebhookEvent
	lastError string
	marked    bool
}

func (f *fakeWebhookEventRepo) CreateIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	if f.stored != nil && f.stored.ProviderEventID == event.ProviderEventID {
		return false, f.stored, nil
	}
	event.ID = 1
	f.stored = event
	return true, event, nil
}

func (f *fakeWebhookEventRepo) MarkProcessed(id uint, processingError string) error {
	f.marked = true
	f.lastError = processingError
	if f.stored != nil {
		now := time.Now()
		f.stored.ProcessedAt = &now
		f.stored.ProcessingError = processingError
	}
	return nil
}

func newWebhookTestApp(t *testing.T, repo *fakeWebhookEventRepo, transition func(lifecycle.EventRef) error) *fiber.App {
	t.Helper()
	t.Setenv("PAYMENT_WEBHOOK_SECRET", testWebhookSecret)

	prevStore := webhookEventStore
	prevSuccess := applyPaymentSuccess
	prevTermination := applyPaymentTermination
	webhookEventStore = func() repository.WebhookEventRepository { return repo }
	applyPaymentSuccess = func(ctx context.Context, ref lifecycle.EventRef, planRef string) error {
		return transition(ref)
	}
	applyPaymentTermination = func(ctx context.Context, ref lifecycle.EventRef) error {
		return transition(ref)
	}
	t.Cleanup(func() {
		webhookEventStore = prevStore
		applyPaymentSuccess = prevSuccess
		applyPaymentTermination = prevTermination
	})

	app := fiber.New()
	app.Post("/api/v1/payment/webhook", HandlePaymentWebhook)
	return app
}

func signPayload(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, app *fiber.App, payload []byte, signature string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/payment/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Payment-Signature", signature)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, body
}

func TestHandlePaymentWebhook_BadSignature(t *testing.T) {
	repo := &fakeWebhookEventRepo{}
	app := newWebhookTestApp(t, repo, func(lifecycle.EventRef) error { return nil })

	payload := []byte(`{"id":"evt_1","type":"invoice.paid"}`)

	status, body := postWebhook(t, app, payload, "sha256=deadbeef")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_signature", body["error"])
	// Nothing may be persisted before authenticity is established.
	assert.Nil(t, repo.stored)

	status, _ = postWebhook(t, app, payload, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Nil(t, repo.stored)
}

func TestHandlePaymentWebhook_UnknownEventTypeAcked(t *testing.T) {
	repo := &fakeWebhookEventRepo{}
	transitioned := false
	app := newWebhookTestApp(t, repo, func(lifecycle.EventRef) error {
		transitioned = true
		return nil
	})

	payload := []byte(`{"id":"evt_2","type":"invoice.created","data":{"listing_id":"a1"}}`)
	status, body := postWebhook(t, app, payload, signPayload(payload))

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, true, body["ignored"])
	assert.False(t, transitioned)
	require.NotNil(t, repo.stored)
	assert.True(t, repo.marked)
	assert.Empty(t, repo.lastError)
}

func TestHandlePaymentWebhook_UnknownListingAcked(t *testing.T) {
	repo := &fakeWebhookEventRepo{}
	app := newWebhookTestApp(t, repo, func(lifecycle.EventRef) error {
		return lifecycle.ErrListingNotFound
	})

	payload := []byte(`{"id":"evt_3","type":"checkout.session.completed","data":{"listing_id":"missing"}}`)
	status, body := postWebhook(t, app, payload, signPayload(payload))

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["ignored"])
	assert.Equal(t, lifecycle.ErrListingNotFound.Error(), repo.lastError)
}

func TestHandlePaymentWebhook_DuplicateEventAcked(t *testing.T) {
	repo := &fakeWebhookEventRepo{}
	calls := 0
	app := newWebhookTestApp(t, repo, func(lifecycle.EventRef) error {
		calls++
		return nil
	})

	payload := []byte(`{"id":"evt_4","type":"subscription.canceled","data":{"listing_id":"a1"}}`)
	signature := signPayload(payload)

	status, body := postWebhook(t, app, payload, signature)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, 1, calls)

	status, body = postWebhook(t, app, payload, signature)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])
	assert.Equal(t, 1, calls)
}
