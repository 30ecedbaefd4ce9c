package controllers

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/FlorianWeber/ListFox/app/models"
	"github.com/FlorianWeber/ListFox/app/repository"
	"github.com/FlorianWeber/ListFox/internal/pkg/cache"
	"github.com/FlorianWeber/ListFox/internal/pkg/env"
	"github.com/FlorianWeber/ListFox/internal/pkg/geocode"
	"github.com/FlorianWeber/ListFox/internal/pkg/lifecycle"
	"github.com/FlorianWeber/ListFox/internal/pkg/media"
	"github.com/FlorianWeber/ListFox/internal/pkg/payment"
)

const (
	publicListingCachePrefix = "public:listings:"
	publicListingCacheTTL    = 60 * time.Second
	// Cache keys carry a time bucket so a listing whose window lapses
	// between sweeps disappears from cached results within one bucket,
	// not one full TTL.
	publicListingCacheBucket = 15 * time.Second

	defaultPageSize = 20
	maxPageSize     = 100
)

var (
	mediaStoreOnce sync.Once
	mediaStore     *media.Store
	mediaStoreErr  error
)

func getMediaStore() (*media.Store, error) {
	mediaStoreOnce.Do(func() {
		mediaStore, mediaStoreErr = media.NewStoreFromEnv()
	})
	return mediaStore, mediaStoreErr
}

func getRepositories() *repository.Repositories {
	return repository.GetGlobalRepositories()
}

func getLifecycleEngine() *lifecycle.Engine {
	return lifecycle.NewEngine(
		getRepositories().Listing,
		geocode.NewClientFromEnv(),
		payment.NewCheckoutClientFromEnv(),
		lifecycle.WithTrialMonths(env.GetEnvInt("TRIAL_MONTHS", lifecycle.DefaultTrialMonths)),
		lifecycle.WithDefaultCountry(env.GetEnv("DEFAULT_COUNTRY", "DE")),
		lifecycle.WithRedirectBase(env.GetEnv("PUBLIC_DOMAIN", "")),
	)
}

// parsePageLimit normalizes raw pagination parameters. Pages start at 1
// and the page size is clamped to maxPageSize.
func parsePageLimit(pageStr, limitStr string) (page, limit int) {
	page = 1
	if v, err := strconv.Atoi(pageStr); err == nil && v > 0 {
		page = v
	}
	limit = defaultPageSize
	if v, err := strconv.Atoi(limitStr); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// listingResponse is the public projection of a listing. Contact email
// and all token material stay out of it.
func listingResponse(l *models.Listing, now time.Time) fiber.Map {
	return fiber.Map{
		"uuid":           l.UUID,
		"business_name":  l.BusinessName,
		"phone":          l.Phone,
		"country":        l.Country,
		"city":           l.City,
		"address":        l.Address,
		"category":       l.Category,
		"plan":           l.Plan,
		"logo_key":       l.LogoKey,
		"photo_keys":     l.PhotoKeys,
		"latitude":       l.Latitude,
		"longitude":      l.Longitude,
		"payment_status": l.PaymentStatus,
		"active_until":   formatTimePtr(l.ActiveUntil(now)),
	}
}

func publicListingCacheKey(now time.Time, country, latStr, lngStr string, radius float64, page, limit int) string {
	return fmt.Sprintf("%st=%d&country=%s&lat=%s&lng=%s&radius=%g&page=%d&limit=%d",
		publicListingCachePrefix, now.Truncate(publicListingCacheBucket).Unix(),
		country, latStr, lngStr, radius, page, limit)
}

func invalidatePublicListingCache() {
	if err := cache.DeleteByPattern(publicListingCachePrefix + "*"); err != nil {
		log.Warnf("[Listing] cache invalidation failed: %v", err)
	}
}
