package repository

import (
	"time"

	"github.com/FlorianWeber/ListFox/app/models"
)

// PublicQuery scopes the public listing query. Only listings passing the
// active filter are returned; country and proximity narrow the result.
type PublicQuery struct {
	Now      time.Time
	Country  string
	Lat      *float64
	Lng      *float64
	RadiusKM float64
	Offset   int
	Limit    int
}

// AdminFilter scopes the administrative listing query. Unlike PublicQuery
// it sees every lifecycle state.
type AdminFilter struct {
	Status  string
	Country string
	Plan    string
	Search  string
	Offset  int
	Limit   int
}

// ListingRepository defines the interface for listing database operations
type ListingRepository interface {
	Create(listing *models.Listing) error
	GetByID(id uint) (*models.Listing, error)
	GetByUUID(uuid string) (*models.Listing, error)
	GetByEmail(email string) (*models.Listing, error)
	Update(listing *models.Listing) error
	// UpdateFields applies a lifecycle transition as a single conditional
	// UPDATE so concurrent transitions resolve at the statement level
	// instead of racing a read-then-write cycle.
	UpdateFields(id uint, fields map[string]interface{}) error
	Delete(id uint) error
	ListPublic(q PublicQuery) ([]models.Listing, error)
	ListAdmin(f AdminFilter) ([]models.Listing, int64, error)
	Count() (int64, error)

	// Bulk sweep transitions. Each is one set-based statement, idempotent
	// per record; a partial sweep is healed by the next run.
	ExpirePaidDue(now time.Time) (int64, error)
	ExpireTrialsDue(now time.Time) (int64, error)
	PurgeExpiredBefore(cutoff time.Time) (int64, error)
}

// WebhookEventRepository defines the interface for inbound payment
// provider event persistence
type WebhookEventRepository interface {
	CreateIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
}
