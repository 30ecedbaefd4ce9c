package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/FlorianWeber/ListFox/app/models"
	"github.com/FlorianWeber/ListFox/app/repository"
	"github.com/FlorianWeber/ListFox/internal/pkg/env"
	"github.com/FlorianWeber/ListFox/internal/pkg/identity"
	"github.com/FlorianWeber/ListFox/internal/pkg/lifecycle"
)

// HandleAdminListingsList returns listings in every lifecycle state,
// filtered and paginated for the admin API.
func HandleAdminListingsList(c *fiber.Ctx) error {
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	if status != "" && !models.IsValidPaymentStatus(status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_parameter", "message": "unknown payment status"})
	}
	plan := strings.ToLower(strings.TrimSpace(c.Query("plan")))
	if plan != "" && !models.IsValidPlan(plan) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_parameter", "message": "unknown plan"})
	}

	page, limit := parsePageLimit(c.Query("page"), c.Query("limit"))
	listings, total, err := getRepositories().Listing.ListAdmin(repository.AdminFilter{
		Status:  status,
		Country: identity.NormalizeCountry(c.Query("country"), ""),
		Plan:    plan,
		Search:  strings.TrimSpace(c.Query("search")),
		Offset:  (page - 1) * limit,
		Limit:   limit,
	})
	if err != nil {
		log.Errorf("[Admin] listing query failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"total":    total,
		"page":     page,
		"limit":    limit,
		"listings": listings,
	})
}

// adminListingPatch carries the mutable fields of the admin PATCH. Nil
// pointers leave the stored value untouched.
type adminListingPatch struct {
	BusinessName  *string  `json:"business_name"`
	Phone         *string  `json:"phone"`
	Country       *string  `json:"country"`
	City          *string  `json:"city"`
	Address       *string  `json:"address"`
	Category      *string  `json:"category"`
	Plan          *string  `json:"plan"`
	PaymentStatus *string  `json:"payment_status"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
}

// HandleAdminListingPatch updates a listing, including forcing its
// lifecycle state. Forced states go through the same constructors as
// organic transitions, so the window columns always stay consistent.
func HandleAdminListingPatch(c *fiber.Ctx) error {
	var patch adminListingPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}

	repo := getRepositories().Listing
	listing, err := repo.GetByUUID(c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		log.Errorf("[Admin] listing lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	if patch.BusinessName != nil {
		listing.BusinessName = strings.TrimSpace(*patch.BusinessName)
	}
	if patch.Country != nil {
		listing.Country = identity.NormalizeCountry(*patch.Country, listing.Country)
	}
	if patch.Phone != nil {
		phone := identity.NormalizePhone(*patch.Phone, listing.Country)
		if phone == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "field": "phone", "message": "not a recognized E.164 or local format"})
		}
		listing.Phone = phone
	}
	if patch.City != nil {
		listing.City = strings.TrimSpace(*patch.City)
	}
	if patch.Address != nil {
		listing.Address = strings.TrimSpace(*patch.Address)
	}
	if patch.Category != nil {
		listing.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Latitude != nil {
		listing.Latitude = *patch.Latitude
	}
	if patch.Longitude != nil {
		listing.Longitude = *patch.Longitude
	}
	if patch.Plan != nil {
		plan := strings.ToLower(strings.TrimSpace(*patch.Plan))
		if !models.IsValidPlan(plan) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "field": "plan", "message": "must be one of basic, standard, premium"})
		}
		listing.Plan = plan
		listing.LogoKey, listing.PhotoKeys = lifecycle.BoundMedia(plan, listing.LogoKey, listing.PhotoKeys)
	}
	if patch.PaymentStatus != nil {
		trialMonths := env.GetEnvInt("TRIAL_MONTHS", lifecycle.DefaultTrialMonths)
		state, ok := lifecycle.ForStatus(strings.ToLower(strings.TrimSpace(*patch.PaymentStatus)), time.Now(), trialMonths)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "field": "payment_status", "message": "must be one of pending, trial, paid, expired"})
		}
		state.Apply(listing)
	}

	if err := listing.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if err := repo.Update(listing); err != nil {
		log.Errorf("[Admin] update of %s failed: %v", listing.UUID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	invalidatePublicListingCache()
	log.Infof("[Admin] listing %s patched", listing.UUID)
	return c.Status(fiber.StatusOK).JSON(listing)
}
