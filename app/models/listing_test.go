package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlanPhotoLimit(t *testing.T) {
	assert.Equal(t, 0, PlanPhotoLimit(PlanBasic))
	assert.Equal(t, 3, PlanPhotoLimit(PlanStandard))
	assert.Equal(t, 8, PlanPhotoLimit(PlanPremium))
	assert.Equal(t, 0, PlanPhotoLimit("unknown"))
}

func TestIsActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	trial := &Listing{PaymentStatus: PaymentStatusTrial, TrialEndsAt: &future}
	assert.True(t, trial.IsActive(now))
	assert.Equal(t, &future, trial.ActiveUntil(now))

	endedTrial := &Listing{PaymentStatus: PaymentStatusTrial, TrialEndsAt: &past}
	assert.False(t, endedTrial.IsActive(now))
	assert.Nil(t, endedTrial.ActiveUntil(now))

	paid := &Listing{PaymentStatus: PaymentStatusPaid, ExpiresAt: &future}
	assert.True(t, paid.IsActive(now))
	assert.Equal(t, &future, paid.ActiveUntil(now))

	// Window end is exclusive.
	atBoundary := &Listing{PaymentStatus: PaymentStatusPaid, ExpiresAt: &now}
	assert.False(t, atBoundary.IsActive(now))

	pending := &Listing{PaymentStatus: PaymentStatusPending}
	assert.False(t, pending.IsActive(now))

	// Status alone never makes a listing visible.
	paidNoWindow := &Listing{PaymentStatus: PaymentStatusPaid}
	assert.False(t, paidNoWindow.IsActive(now))
}

func TestTokenHashRoundtrip(t *testing.T) {
	token, err := GenerateToken()
	assert.NoError(t, err)
	assert.Len(t, token, 32)

	hash, err := HashToken(token)
	assert.NoError(t, err)
	assert.NotEqual(t, token, hash)

	assert.True(t, CheckTokenHash(token, hash))
	assert.False(t, CheckTokenHash("wrong", hash))
}
