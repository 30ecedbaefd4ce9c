package controllers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/FlorianWeber/ListFox/app/models"
)

func TestParsePageLimit(t *testing.T) {
	page, limit := parsePageLimit("", "")
	assert.Equal(t, 1, page)
	assert.Equal(t, defaultPageSize, limit)

	page, limit = parsePageLimit("3", "50")
	assert.Equal(t, 3, page)
	assert.Equal(t, 50, limit)

	page, limit = parsePageLimit("-1", "9999")
	assert.Equal(t, 1, page)
	assert.Equal(t, maxPageSize, limit)

	page, limit = parsePageLimit("abc", "xyz")
	assert.Equal(t, 1, page)
	assert.Equal(t, defaultPageSize, limit)
}

func TestFormatTimePtr(t *testing.T) {
	assert.Nil(t, formatTimePtr(nil))

	now := time.Date(2025, 6, 1, 12, 34, 56, 0, time.Local)
	assert.Equal(t, now.UTC().Format(time.RFC3339), formatTimePtr(&now))
}

func TestListingResponseHidesCredentials(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ends := now.AddDate(0, 6, 0)
	listing := &models.Listing{
		UUID:            "a2b7e6a0-1111-2222-3333-444455556666",
		BusinessName:    "Cafe Sonne",
		Email:           "owner@example.com",
		Country:         "DE",
		PaymentStatus:   models.PaymentStatusTrial,
		TrialEndsAt:     &ends,
		DeleteTokenHash: "$2a$10$secret",
	}

	resp := listingResponse(listing, now)
	assert.Equal(t, listing.UUID, resp["uuid"])
	assert.Equal(t, ends.UTC().Format(time.RFC3339), resp["active_until"])
	assert.NotContains(t, resp, "email")
	assert.NotContains(t, resp, "delete_token_hash")
	assert.NotContains(t, resp, "owner_token_hash")
}

func TestPublicListingCacheKeyBuckets(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Keys within the same bucket are stable so the cache still hits.
	a := publicListingCacheKey(base, "DE", "52.5", "13.4", 25, 1, 20)
	b := publicListingCacheKey(base.Add(publicListingCacheBucket-time.Second), "DE", "52.5", "13.4", 25, 1, 20)
	assert.Equal(t, a, b)

	// Crossing a bucket boundary rolls the key over, so results cached
	// before a listing's window lapsed stop being served.
	c := publicListingCacheKey(base.Add(publicListingCacheBucket), "DE", "52.5", "13.4", 25, 1, 20)
	assert.NotEqual(t, a, c)

	// Query parameters keep separate entries.
	d := publicListingCacheKey(base, "AT", "52.5", "13.4", 25, 1, 20)
	e := publicListingCacheKey(base, "DE", "52.5", "13.4", 25, 2, 20)
	assert.NotEqual(t, a, d)
	assert.NotEqual(t, a, e)
}

func TestPayloadFingerprintDeterministic(t *testing.T) {
	a := payloadFingerprint([]byte(`{"id":"evt_1"}`))
	b := payloadFingerprint([]byte(`{"id":"evt_1"}`))
	c := payloadFingerprint([]byte(`{"id":"evt_2"}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "payload:")
}
