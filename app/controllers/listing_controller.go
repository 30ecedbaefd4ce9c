package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/FlorianWeber/ListFox/app/models"
	"github.com/FlorianWeber/ListFox/app/repository"
	"github.com/FlorianWeber/ListFox/internal/pkg/cache"
	"github.com/FlorianWeber/ListFox/internal/pkg/env"
	"github.com/FlorianWeber/ListFox/internal/pkg/identity"
	"github.com/FlorianWeber/ListFox/internal/pkg/lifecycle"
	"github.com/FlorianWeber/ListFox/internal/pkg/mail"
	"github.com/FlorianWeber/ListFox/internal/pkg/metrics/counter"
)

const registerTimeout = 20 * time.Second

// HandleListingRegister accepts a multipart registration form, uploads
// any attached media and runs the lifecycle registration flow.
func HandleListingRegister(c *fiber.Ctx) error {
	in := lifecycle.RegisterInput{
		BusinessName: c.FormValue("business_name"),
		Email:        c.FormValue("email"),
		Phone:        c.FormValue("phone"),
		Country:      c.FormValue("country"),
		City:         c.FormValue("city"),
		Address:      c.FormValue("address"),
		Category:     c.FormValue("category"),
		Plan:         c.FormValue("plan", models.PlanBasic),
	}

	ctx, cancel := context.WithTimeout(context.Background(), registerTimeout)
	defer cancel()

	uploaded, handled, err := saveRegistrationMedia(ctx, c, &in)
	if handled || err != nil {
		return err
	}

	result, err := getLifecycleEngine().Register(ctx, in)
	if err != nil {
		cleanupUploads(uploaded)
		return writeRegisterError(c, err)
	}

	switch result.Outcome {
	case lifecycle.OutcomeNewTrial:
		listing := result.Listing
		deleteURL := selfServiceDeleteURL(listing.UUID, result.DeleteToken)
		go func(to, name string, trialEndsAt time.Time, url string) {
			if err := mail.SendTrialConfirmation(to, name, trialEndsAt, url); err != nil {
				log.Warnf("[Listing] trial confirmation mail to %s failed: %v", to, err)
			}
		}(listing.Email, listing.BusinessName, *listing.TrialEndsAt, deleteURL)

		invalidatePublicListingCache()
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"status":       "trial",
			"redirect_url": result.RedirectURL,
			"delete_token": result.DeleteToken,
			"listing":      listingResponse(listing, time.Now()),
		})
	default:
		listing := result.Listing
		go func(to, name, url string) {
			if err := mail.SendCheckoutStarted(to, name, url); err != nil {
				log.Warnf("[Listing] checkout mail to %s failed: %v", to, err)
			}
		}(listing.Email, listing.BusinessName, result.CheckoutURL)

		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":       "checkout_required",
			"checkout_url": result.CheckoutURL,
			"uuid":         listing.UUID,
		})
	}
}

// saveRegistrationMedia stores an optional logo and gallery photos and
// fills their object keys into the registration input. When it fails it
// writes the error response itself and reports handled=true; returned
// keys let the caller clean up if the registration is rejected later.
func saveRegistrationMedia(ctx context.Context, c *fiber.Ctx, in *lifecycle.RegisterInput) (uploaded []string, handled bool, err error) {
	form, formErr := c.MultipartForm()
	if formErr != nil || form == nil {
		return nil, false, nil
	}
	logoFiles := form.File["logo"]
	photoFiles := form.File["photos"]
	if len(logoFiles) == 0 && len(photoFiles) == 0 {
		return nil, false, nil
	}

	store, storeErr := getMediaStore()
	if storeErr != nil {
		log.Errorf("[Listing] media store unavailable: %v", storeErr)
		return nil, true, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "media_unavailable"})
	}

	if len(logoFiles) > 0 {
		key, upErr := store.SaveUpload(ctx, "logo", logoFiles[0])
		if upErr != nil {
			cleanupUploads(uploaded)
			return nil, true, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "upload_failed", "message": upErr.Error()})
		}
		uploaded = append(uploaded, key)
		in.LogoKey = key
	}
	maxPhotos := models.PlanPhotoLimit(models.PlanPremium)
	for i, fh := range photoFiles {
		if i >= maxPhotos {
			break
		}
		key, upErr := store.SaveUpload(ctx, "photo", fh)
		if upErr != nil {
			cleanupUploads(uploaded)
			return nil, true, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "upload_failed", "message": upErr.Error()})
		}
		uploaded = append(uploaded, key)
		in.PhotoKeys = append(in.PhotoKeys, key)
	}
	return uploaded, false, nil
}

func cleanupUploads(keys []string) {
	if len(keys) == 0 {
		return
	}
	store, err := getMediaStore()
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil {
			log.Warnf("[Listing] orphaned upload %s not removed: %v", key, err)
		}
	}
}

func writeRegisterError(c *fiber.Ctx, err error) error {
	var vErr *lifecycle.ValidationError
	var locErr *lifecycle.LocationUnresolvedError
	var activeErr *lifecycle.AlreadyActiveError
	var depErr *lifecycle.DependencyError
	switch {
	case errors.As(err, &vErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"field":   vErr.Field,
			"message": vErr.Reason,
		})
	case errors.As(err, &locErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "location_unresolved",
			"message": locErr.Error(),
		})
	case errors.As(err, &activeErr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":          "already_active",
			"payment_status": activeErr.Status,
			"active_until":   activeErr.ActiveUntil.UTC().Format(time.RFC3339),
		})
	case errors.As(err, &depErr):
		log.Errorf("[Listing] registration blocked by %s: %v", depErr.Dependency, depErr.Err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "dependency_unavailable"})
	default:
		log.Errorf("[Listing] registration failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
}

func selfServiceDeleteURL(listingUUID, token string) string {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	return fmt.Sprintf("%s/api/v1/listings/%s?token=%s", base, listingUUID, token)
}

// HandleListingsQuery serves the public directory: active listings only,
// optionally narrowed by country and proximity. Results are cached
// briefly per parameter combination.
func HandleListingsQuery(c *fiber.Ctx) error {
	page, limit := parsePageLimit(c.Query("page"), c.Query("limit"))
	q := repository.PublicQuery{
		Now:     time.Now(),
		Country: identity.NormalizeCountry(c.Query("country"), ""),
		Offset:  (page - 1) * limit,
		Limit:   limit,
	}

	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if (latStr == "") != (lngStr == "") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_parameter", "message": "lat and lng must be provided together"})
	}
	if latStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lng, lngErr := strconv.ParseFloat(lngStr, 64)
		if latErr != nil || lngErr != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_parameter", "message": "lat/lng out of range"})
		}
		q.Lat, q.Lng = &lat, &lng
		q.RadiusKM = repository.MaxRadiusKM
		if radiusStr := c.Query("radius_km"); radiusStr != "" {
			radius, err := strconv.ParseFloat(radiusStr, 64)
			if err != nil || radius <= 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_parameter", "message": "radius_km must be a positive number"})
			}
			q.RadiusKM = radius
		}
	}

	cacheKey := publicListingCacheKey(q.Now, q.Country, latStr, lngStr, q.RadiusKM, page, limit)
	payload, err := cache.GetOrSet(cacheKey, publicListingCacheTTL, func() (string, error) {
		listings, err := getRepositories().Listing.ListPublic(q)
		if err != nil {
			return "", err
		}
		items := make([]fiber.Map, 0, len(listings))
		for i := range listings {
			items = append(items, listingResponse(&listings[i], q.Now))
		}
		body, err := json.Marshal(fiber.Map{"page": page, "limit": limit, "listings": items})
		if err != nil {
			return "", err
		}
		return string(body), nil
	})
	if err != nil {
		log.Errorf("[Listing] public query failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.SendString(payload)
}

// HandleListingDetail serves one active listing's public profile and
// counts the view. Inactive listings are indistinguishable from unknown
// ones here.
func HandleListingDetail(c *fiber.Ctx) error {
	listing, err := getRepositories().Listing.GetByUUID(c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		log.Errorf("[Listing] detail lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	now := time.Now()
	if !listing.IsActive(now) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}

	if err := counter.AddListingView(listing.ID); err != nil {
		log.Warnf("[Listing] view counter for %s failed: %v", listing.UUID, err)
	}

	resp := listingResponse(listing, now)
	resp["view_count"] = listing.ViewCount
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandleListingStatus reports the lifecycle state for the listing behind
// an email address, so registrants can check their own entry.
func HandleListingStatus(c *fiber.Ctx) error {
	email := identity.NormalizeEmail(c.Query("email"))
	if email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_parameter", "message": "email is required"})
	}

	listing, err := getRepositories().Listing.GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		log.Errorf("[Listing] status lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	now := time.Now()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"uuid":             listing.UUID,
		"payment_status":   listing.PaymentStatus,
		"plan":             listing.Plan,
		"trial_started_at": formatTimePtr(listing.TrialStartedAt),
		"trial_ends_at":    formatTimePtr(listing.TrialEndsAt),
		"paid_at":          formatTimePtr(listing.PaidAt),
		"expires_at":       formatTimePtr(listing.ExpiresAt),
		"active":           listing.IsActive(now),
		"active_until":     formatTimePtr(listing.ActiveUntil(now)),
	})
}

// HandleListingDelete removes a listing on behalf of its owner. The
// bearer proves ownership with the delete token issued at registration.
func HandleListingDelete(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid_token"})
	}

	repo := getRepositories().Listing
	listing, err := repo.GetByUUID(c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		log.Errorf("[Listing] delete lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	now := time.Now()
	if listing.DeleteTokenHash == "" || listing.DeleteTokenExpiry == nil || listing.DeleteTokenExpiry.Before(now) ||
		!models.CheckTokenHash(token, listing.DeleteTokenHash) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid_token"})
	}

	cols := lifecycle.ExpiredAt(now).Columns()
	cols["deleted_at"] = now
	if err := repo.UpdateFields(listing.ID, cols); err != nil {
		log.Errorf("[Listing] delete failed for %s: %v", listing.UUID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	invalidatePublicListingCache()
	log.Infof("[Listing] %s removed via self-service delete", listing.UUID)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
