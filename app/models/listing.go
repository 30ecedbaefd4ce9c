package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	PlanBasic    = "basic"
	PlanStandard = "standard"
	PlanPremium  = "premium"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusTrial   = "trial"
	PaymentStatusPaid    = "paid"
	PaymentStatusExpired = "expired"
)

// PlanPhotoLimit returns how many gallery photos a plan may carry.
func PlanPhotoLimit(plan string) int {
	switch plan {
	case PlanPremium:
		return 8
	case PlanStandard:
		return 3
	default:
		return 0
	}
}

// IsValidPlan reports whether plan is one of the known plan identifiers.
func IsValidPlan(plan string) bool {
	switch plan {
	case PlanBasic, PlanStandard, PlanPremium:
		return true
	default:
		return false
	}
}

// IsValidPaymentStatus reports whether status is a known lifecycle status.
func IsValidPaymentStatus(status string) bool {
	switch status {
	case PaymentStatusPending, PaymentStatusTrial, PaymentStatusPaid, PaymentStatusExpired:
		return true
	default:
		return false
	}
}

// Listing is one registered business. There is exactly one row per
// normalized contact email; the unique index enforces that.
type Listing struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	UUID string `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`

	BusinessName string `gorm:"type:varchar(200);not null" json:"business_name" validate:"required,min=2,max=200"`
	Email        string `gorm:"uniqueIndex;type:varchar(200) CHARACTER SET utf8 COLLATE utf8_bin" json:"email" validate:"required,email,min=5,max=200"`
	Phone        string `gorm:"type:varchar(32);default:null" json:"phone"`
	Country      string `gorm:"type:varchar(2);not null;index:idx_listings_status_country_plan,priority:2" json:"country" validate:"required,len=2"`
	City         string `gorm:"type:varchar(120);not null" json:"city" validate:"required,max=120"`
	Address      string `gorm:"type:varchar(255);not null" json:"address" validate:"required,max=255"`
	Category     string `gorm:"type:varchar(100);not null" json:"category" validate:"required,max=100"`
	Plan         string `gorm:"type:varchar(20);not null;default:'basic';index:idx_listings_status_country_plan,priority:3" json:"plan" validate:"oneof=basic standard premium"`

	LogoKey   string        `gorm:"type:varchar(255);default:null" json:"logo_key"`
	PhotoKeys PhotoKeyList  `gorm:"type:text" json:"photo_keys"`

	// Geolocation is required for discoverability and is never cleared
	// once set; only a successful re-registration overwrites it.
	Latitude  float64 `gorm:"type:decimal(10,7);not null;index:idx_listings_lat_lng,priority:1" json:"latitude"`
	Longitude float64 `gorm:"type:decimal(10,7);not null;index:idx_listings_lat_lng,priority:2" json:"longitude"`

	// ViewCount is incremented out-of-band from a Redis counter, never
	// on the request path.
	ViewCount uint64 `gorm:"not null;default:0" json:"view_count"`

	PaymentStatus  string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_listings_status_country_plan,priority:1;index:idx_listings_status_expiry,priority:1" json:"payment_status" validate:"oneof=pending trial paid expired"`
	TrialStartedAt *time.Time `gorm:"type:timestamp;default:null" json:"trial_started_at,omitempty"`
	TrialEndsAt    *time.Time `gorm:"type:timestamp;default:null" json:"trial_ends_at,omitempty"`
	PaidAt         *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	ExpiresAt      *time.Time `gorm:"type:timestamp;default:null;index:idx_listings_status_expiry,priority:2" json:"expires_at,omitempty"`
	DeletedAt      *time.Time `gorm:"type:timestamp;default:null" json:"-"`

	// Self-service credentials for the original registrant.
	OwnerTokenHash    string     `gorm:"type:varchar(100);default:null" json:"-"`
	OwnerTokenExpiry  *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	DeleteTokenHash   string     `gorm:"type:varchar(100);default:null" json:"-"`
	DeleteTokenExpiry *time.Time `gorm:"type:timestamp;default:null" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_listings_status_country_plan,priority:4" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l *Listing) Validate() error {
	v := validator.New()

	return v.Struct(l)
}

// IsActive reports whether the listing's current window (trial or paid)
// has not yet reached its end. This is the live form of the predicate the
// public query filter applies in SQL.
func (l *Listing) IsActive(now time.Time) bool {
	switch l.PaymentStatus {
	case PaymentStatusTrial:
		return l.TrialEndsAt != nil && l.TrialEndsAt.After(now)
	case PaymentStatusPaid:
		return l.ExpiresAt != nil && l.ExpiresAt.After(now)
	default:
		return false
	}
}

// ActiveUntil returns the end of the currently running window, or nil.
func (l *Listing) ActiveUntil(now time.Time) *time.Time {
	if !l.IsActive(now) {
		return nil
	}
	if l.PaymentStatus == PaymentStatusTrial {
		return l.TrialEndsAt
	}
	return l.ExpiresAt
}

// HashToken hashes a self-service token for at-rest storage.
func HashToken(token string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckTokenHash compares a presented token with the stored hash.
func CheckTokenHash(token, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))

	return err == nil
}

// GenerateToken creates a random hex token for owner/delete credentials.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ActiveListings is the single source of truth for "is this listing live":
// paid with an unexpired paid window, or trial with an unexpired trial
// window. It is evaluated against the supplied time, never against a
// cached status.
func ActiveListings(now time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"(payment_status = ? AND expires_at IS NOT NULL AND expires_at > ?) OR (payment_status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at > ?)",
			PaymentStatusPaid, now, PaymentStatusTrial, now,
		)
	}
}
