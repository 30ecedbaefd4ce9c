package repository

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/FlorianWeber/ListFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Max radius for proximity queries; callers asking for more get capped here
// as the last line of defense.
const MaxRadiusKM = 100.0

// listingRepository implements the ListingRepository interface
type listingRepository struct {
	db *gorm.DB
}

// NewListingRepository creates a new listing repository instance
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

// Create inserts a new listing. The unique email index turns a duplicate
// identity into a constraint error instead of a second row.
func (r *listingRepository) Create(listing *models.Listing) error {
	return r.db.Create(listing).Error
}

// GetByID retrieves a listing by its numeric ID
func (r *listingRepository) GetByID(id uint) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.First(&listing, id).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// GetByUUID retrieves a listing by its public identifier
func (r *listingRepository) GetByUUID(uuid string) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.Where("uuid = ?", strings.TrimSpace(uuid)).First(&listing).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// GetByEmail retrieves a listing by its normalized contact email
func (r *listingRepository) GetByEmail(email string) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.Where("email = ?", email).First(&listing).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// Update saves all fields of an existing listing
func (r *listingRepository) Update(listing *models.Listing) error {
	return r.db.Save(listing).Error
}

// UpdateFields applies a transition's column assignments in one UPDATE.
func (r *listingRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	return r.db.Model(&models.Listing{}).Where("id = ?", id).Updates(fields).Error
}

// Delete hard-deletes a listing row
func (r *listingRepository) Delete(id uint) error {
	return r.db.Unscoped().Delete(&models.Listing{}, id).Error
}

// ListPublic returns active listings only, optionally scoped by country
// and proximity. The active predicate is evaluated against q.Now in SQL,
// never against a cached status.
func (r *listingRepository) ListPublic(q PublicQuery) ([]models.Listing, error) {
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	tx := r.db.Model(&models.Listing{}).Scopes(models.ActiveListings(q.Now))
	if c := strings.TrimSpace(q.Country); c != "" {
		tx = tx.Where("country = ?", strings.ToUpper(c))
	}

	if q.Lat != nil && q.Lng != nil {
		radius := q.RadiusKM
		if radius <= 0 || radius > MaxRadiusKM {
			radius = MaxRadiusKM
		}
		tx = tx.Scopes(proximityScope(*q.Lat, *q.Lng, radius))
	} else {
		tx = tx.Order("created_at DESC")
	}

	var listings []models.Listing
	err := tx.Offset(q.Offset).Limit(limit).Find(&listings).Error
	return listings, err
}

// proximityScope narrows to listings within radius kilometers of the
// given point and orders them nearest first. A bounding-box prefilter on
// the (latitude, longitude) index runs before the exact haversine
// distance, which serves both the cut and the ordering.
func proximityScope(lat, lng, radius float64) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		latDelta := radius / 111.045
		lngDelta := radius / (111.045 * math.Cos(lat*math.Pi/180.0))
		if math.IsInf(lngDelta, 0) || math.IsNaN(lngDelta) {
			lngDelta = 180
		}

		distance := "(6371 * ACOS(LEAST(1.0, COS(RADIANS(?)) * COS(RADIANS(latitude)) * COS(RADIANS(longitude) - RADIANS(?)) + SIN(RADIANS(?)) * SIN(RADIANS(latitude)))))"
		// The ordering must go through clause.OrderBy: DB.Order drops a
		// bare gorm.Expr and the query would run unordered.
		return db.Where("latitude BETWEEN ? AND ?", lat-latDelta, lat+latDelta).
			Where("longitude BETWEEN ? AND ?", lng-lngDelta, lng+lngDelta).
			Where(fmt.Sprintf("%s <= ?", distance), lat, lng, lat, radius).
			Order(clause.OrderBy{Expression: clause.Expr{
				SQL:  fmt.Sprintf("%s ASC", distance),
				Vars: []interface{}{lat, lng, lat},
			}})
	}
}

// ListAdmin returns listings in every lifecycle state with optional
// filters plus the total count for pagination.
func (r *listingRepository) ListAdmin(f AdminFilter) ([]models.Listing, int64, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	tx := r.db.Model(&models.Listing{})
	if s := strings.TrimSpace(f.Status); s != "" {
		tx = tx.Where("payment_status = ?", s)
	}
	if c := strings.TrimSpace(f.Country); c != "" {
		tx = tx.Where("country = ?", strings.ToUpper(c))
	}
	if p := strings.TrimSpace(f.Plan); p != "" {
		tx = tx.Where("plan = ?", p)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		pattern := "%" + q + "%"
		tx = tx.Where("business_name LIKE ? OR email LIKE ? OR city LIKE ?", pattern, pattern, pattern)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var listings []models.Listing
	err := tx.Order("created_at DESC").Offset(f.Offset).Limit(limit).Find(&listings).Error
	return listings, total, err
}

// Count returns the total number of listings
func (r *listingRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Listing{}).Count(&count).Error
	return count, err
}

// ExpirePaidDue flips paid listings whose paid window has ended. The
// original expiry stamp is kept so the retention clock runs from the real
// end of the paid window.
func (r *listingRepository) ExpirePaidDue(now time.Time) (int64, error) {
	tx := r.db.Model(&models.Listing{}).
		Where("payment_status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.PaymentStatusPaid, now).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentStatusExpired,
		})
	return tx.RowsAffected, tx.Error
}

// ExpireTrialsDue flips trial listings whose trial window has ended and
// starts their retention clock at now.
func (r *listingRepository) ExpireTrialsDue(now time.Time) (int64, error) {
	tx := r.db.Model(&models.Listing{}).
		Where("payment_status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at <= ?", models.PaymentStatusTrial, now).
		Updates(map[string]interface{}{
			"payment_status":   models.PaymentStatusExpired,
			"expires_at":       now,
			"trial_started_at": nil,
			"trial_ends_at":    nil,
		})
	return tx.RowsAffected, tx.Error
}

// PurgeExpiredBefore hard-deletes listings that have been expired since
// before the cutoff.
func (r *listingRepository) PurgeExpiredBefore(cutoff time.Time) (int64, error) {
	tx := r.db.Unscoped().
		Where("payment_status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.PaymentStatusExpired, cutoff).
		Delete(&models.Listing{})
	return tx.RowsAffected, tx.Error
}
