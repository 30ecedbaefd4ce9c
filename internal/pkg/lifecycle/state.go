package lifecycle

import (
	"time"

	"github.com/FlorianWeber/ListFox/app/models"
)

// PaidWindowDays is the length of one paid visibility window.
const PaidWindowDays = 30

// DefaultTrialMonths is the length of the free trial for first-time
// registrations.
const DefaultTrialMonths = 6

// State is the tagged form of a listing's subscription state. A listing's
// status string plus its window timestamps are only ever written together,
// through one of the constructors below, so inconsistent combinations
// (status paid without an expiry, two active windows at once) cannot be
// produced by any transition.
type State struct {
	Status         string
	TrialStartedAt *time.Time
	TrialEndsAt    *time.Time
	PaidAt         *time.Time
	ExpiresAt      *time.Time
}

// Pending is the state of a re-registered listing waiting for checkout.
// All windows are cleared.
func Pending() State {
	return State{Status: models.PaymentStatusPending}
}

// TrialStarting opens a trial window of the given length at now.
func TrialStarting(now time.Time, months int) State {
	if months <= 0 {
		months = DefaultTrialMonths
	}
	ends := now.AddDate(0, months, 0)
	return State{
		Status:         models.PaymentStatusTrial,
		TrialStartedAt: &now,
		TrialEndsAt:    &ends,
	}
}

// PaidFrom opens a paid window of PaidWindowDays at now. Trial fields are
// cleared: at most one window is ever active.
func PaidFrom(now time.Time) State {
	until := now.Add(PaidWindowDays * 24 * time.Hour)
	return State{
		Status:    models.PaymentStatusPaid,
		PaidAt:    &now,
		ExpiresAt: &until,
	}
}

// ExpiredAt marks the listing expired as of now. The expiry stamp starts
// the retention clock for eventual purging.
func ExpiredAt(now time.Time) State {
	return State{
		Status:    models.PaymentStatusExpired,
		ExpiresAt: &now,
	}
}

// ForStatus maps a requested status to its authoritative constructor.
// Administrative overrides use this so a forced status always comes with
// a well-formed window, never a bare status string.
func ForStatus(status string, now time.Time, trialMonths int) (State, bool) {
	switch status {
	case models.PaymentStatusPending:
		return Pending(), true
	case models.PaymentStatusTrial:
		return TrialStarting(now, trialMonths), true
	case models.PaymentStatusPaid:
		return PaidFrom(now), true
	case models.PaymentStatusExpired:
		return ExpiredAt(now), true
	default:
		return State{}, false
	}
}

// Columns projects the variant onto the full set of lifecycle columns for
// a single-statement update. Every lifecycle column is written on every
// transition; columns not carried by the variant are written as NULL.
// PaidAt is the one exception on expiry: it is kept as an audit stamp of
// the last successful payment.
func (s State) Columns() map[string]interface{} {
	cols := map[string]interface{}{
		"payment_status":   s.Status,
		"trial_started_at": s.TrialStartedAt,
		"trial_ends_at":    s.TrialEndsAt,
		"expires_at":       s.ExpiresAt,
	}
	if s.Status != models.PaymentStatusExpired {
		cols["paid_at"] = s.PaidAt
	}
	return cols
}

// Apply writes the variant onto an in-memory listing, mirroring Columns.
func (s State) Apply(l *models.Listing) {
	l.PaymentStatus = s.Status
	l.TrialStartedAt = s.TrialStartedAt
	l.TrialEndsAt = s.TrialEndsAt
	l.ExpiresAt = s.ExpiresAt
	if s.Status != models.PaymentStatusExpired {
		l.PaidAt = s.PaidAt
	}
}

