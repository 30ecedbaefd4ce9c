package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FlorianWeber/ListFox/app/models"
	"github.com/FlorianWeber/ListFox/internal/pkg/identity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const tokenValidity = 90 * 24 * time.Hour

// ListingStore is the slice of the listing repository the engine needs.
type ListingStore interface {
	Create(listing *models.Listing) error
	GetByEmail(email string) (*models.Listing, error)
	GetByUUID(uuid string) (*models.Listing, error)
	Update(listing *models.Listing) error
	UpdateFields(id uint, fields map[string]interface{}) error
}

// Geocoder resolves a postal address to coordinates. found=false with a
// nil error means the address is well-formed but unknown; a non-nil error
// means the geocoder itself was unavailable.
type Geocoder interface {
	Resolve(ctx context.Context, address, city, country string) (lat, lng float64, found bool, err error)
}

// CheckoutStarter creates a hosted payment session and returns its URL.
type CheckoutStarter interface {
	CreateSession(ctx context.Context, listingUUID, email, plan string) (string, error)
}

// Engine owns every lifecycle transition of a listing. All state writes go
// through the State constructors so the store never sees an inconsistent
// status/window combination.
type Engine struct {
	store          ListingStore
	geocoder       Geocoder
	checkout       CheckoutStarter
	now            func() time.Time
	trialMonths    int
	defaultCountry string
	redirectBase   string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTrialMonths overrides the trial window length.
func WithTrialMonths(months int) Option {
	return func(e *Engine) {
		if months > 0 {
			e.trialMonths = months
		}
	}
}

// WithDefaultCountry sets the country assumed for inputs without one.
func WithDefaultCountry(country string) Option {
	return func(e *Engine) { e.defaultCountry = country }
}

// WithRedirectBase sets the public base URL used in trial confirmation
// redirects.
func WithRedirectBase(base string) Option {
	return func(e *Engine) { e.redirectBase = strings.TrimRight(base, "/") }
}

// NewEngine creates a lifecycle engine from its injected collaborators.
func NewEngine(store ListingStore, geocoder Geocoder, checkout CheckoutStarter, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		geocoder:       geocoder,
		checkout:       checkout,
		now:            time.Now,
		trialMonths:    DefaultTrialMonths,
		defaultCountry: "DE",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterInput carries one registration submission. Media is referenced
// by object key; the upload itself happens before the engine is invoked.
type RegisterInput struct {
	BusinessName string
	Email        string
	Phone        string
	Country      string
	City         string
	Address      string
	Category     string
	Plan         string
	LogoKey      string
	PhotoKeys    []string
}

// Outcomes of a registration.
const (
	OutcomeNewTrial   = "new_trial"
	OutcomeReCheckout = "re_checkout"
)

// RegisterResult is the successful result of Register.
type RegisterResult struct {
	Outcome     string
	Listing     *models.Listing
	RedirectURL string
	CheckoutURL string
	// DeleteToken is the plaintext self-service token, surfaced exactly
	// once so it can be mailed to the registrant. Only the hash is stored.
	DeleteToken string
}

// Register decides between opening a new trial and re-issuing a checkout
// for a returning identity. It never leaves a partially created listing
// behind: validation and geocoding both happen before the first write.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email := identity.NormalizeEmail(in.Email)
	country := identity.NormalizeCountry(in.Country, e.defaultCountry)
	plan := strings.ToLower(strings.TrimSpace(in.Plan))

	if err := validateRegistration(in, email, plan); err != nil {
		return nil, err
	}
	phone := identity.NormalizePhone(in.Phone, country)
	if phone == "" {
		return nil, &ValidationError{Field: "phone", Reason: "not a recognized E.164 or local format"}
	}

	lat, lng, found, err := e.geocoder.Resolve(ctx, strings.TrimSpace(in.Address), strings.TrimSpace(in.City), country)
	if err != nil {
		return nil, &DependencyError{Dependency: "geocoder", Err: err}
	}
	if !found {
		return nil, &LocationUnresolvedError{Address: fmt.Sprintf("%s, %s, %s", in.Address, in.City, country)}
	}

	now := e.now()
	existing, err := e.store.GetByEmail(email)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return e.registerNewTrial(in, email, phone, country, plan, lat, lng, now)
	case err != nil:
		return nil, err
	}

	if until := existing.ActiveUntil(now); until != nil {
		return nil, &AlreadyActiveError{Status: existing.PaymentStatus, ActiveUntil: *until}
	}
	return e.registerReCheckout(ctx, existing, in, phone, country, plan, lat, lng, now)
}

func (e *Engine) registerNewTrial(in RegisterInput, email, phone, country, plan string, lat, lng float64, now time.Time) (*RegisterResult, error) {
	logo, photos := BoundMedia(plan, in.LogoKey, in.PhotoKeys)

	deleteToken, err := models.GenerateToken()
	if err != nil {
		return nil, err
	}
	deleteHash, err := models.HashToken(deleteToken)
	if err != nil {
		return nil, err
	}
	ownerToken, err := models.GenerateToken()
	if err != nil {
		return nil, err
	}
	ownerHash, err := models.HashToken(ownerToken)
	if err != nil {
		return nil, err
	}
	tokenExpiry := now.Add(tokenValidity)

	listing := &models.Listing{
		UUID:              uuid.NewString(),
		BusinessName:      strings.TrimSpace(in.BusinessName),
		Email:             email,
		Phone:             phone,
		Country:           country,
		City:              strings.TrimSpace(in.City),
		Address:           strings.TrimSpace(in.Address),
		Category:          strings.TrimSpace(in.Category),
		Plan:              plan,
		LogoKey:           logo,
		PhotoKeys:         photos,
		Latitude:          lat,
		Longitude:         lng,
		OwnerTokenHash:    ownerHash,
		OwnerTokenExpiry:  &tokenExpiry,
		DeleteTokenHash:   deleteHash,
		DeleteTokenExpiry: &tokenExpiry,
	}
	TrialStarting(now, e.trialMonths).Apply(listing)

	if err := listing.Validate(); err != nil {
		return nil, &ValidationError{Field: "listing", Reason: err.Error()}
	}
	if err := e.store.Create(listing); err != nil {
		return nil, err
	}

	return &RegisterResult{
		Outcome:     OutcomeNewTrial,
		Listing:     listing,
		RedirectURL: fmt.Sprintf("%s/registered/%s", e.redirectBase, listing.UUID),
		DeleteToken: deleteToken,
	}, nil
}

// registerReCheckout overwrites the profile of an inactive listing, parks
// it in pending and hands the registrant a fresh checkout session. The
// trial is deliberately not restarted on this path.
func (e *Engine) registerReCheckout(ctx context.Context, listing *models.Listing, in RegisterInput, phone, country, plan string, lat, lng float64, now time.Time) (*RegisterResult, error) {
	logo, photos := BoundMedia(plan, in.LogoKey, in.PhotoKeys)

	listing.BusinessName = strings.TrimSpace(in.BusinessName)
	listing.Phone = phone
	listing.Country = country
	listing.City = strings.TrimSpace(in.City)
	listing.Address = strings.TrimSpace(in.Address)
	listing.Category = strings.TrimSpace(in.Category)
	listing.Plan = plan
	listing.LogoKey = logo
	listing.PhotoKeys = photos
	listing.Latitude = lat
	listing.Longitude = lng
	Pending().Apply(listing)

	if err := listing.Validate(); err != nil {
		return nil, &ValidationError{Field: "listing", Reason: err.Error()}
	}
	if err := e.store.Update(listing); err != nil {
		return nil, err
	}

	checkoutURL, err := e.checkout.CreateSession(ctx, listing.UUID, listing.Email, plan)
	if err != nil {
		return nil, &DependencyError{Dependency: "checkout gateway", Err: err}
	}

	return &RegisterResult{
		Outcome:     OutcomeReCheckout,
		Listing:     listing,
		CheckoutURL: checkoutURL,
	}, nil
}

// EventRef identifies the listing a payment event targets. The UUID is
// preferred; the email is the identity fallback.
type EventRef struct {
	ListingUUID string
	Email       string
}

// ApplyPaymentSuccess opens a fresh paid window for the referenced
// listing. The write is an absolute assignment, so redelivery of the same
// event does not extend the window a second time.
func (e *Engine) ApplyPaymentSuccess(ctx context.Context, ref EventRef, planRef string) (*models.Listing, error) {
	_ = ctx
	listing, err := e.resolve(ref)
	if err != nil {
		return nil, err
	}

	now := e.now()
	state := PaidFrom(now)
	cols := state.Columns()
	cols["deleted_at"] = nil

	if plan := strings.ToLower(strings.TrimSpace(planRef)); models.IsValidPlan(plan) && plan != listing.Plan {
		logo, photos := BoundMedia(plan, listing.LogoKey, listing.PhotoKeys)
		cols["plan"] = plan
		cols["logo_key"] = logo
		cols["photo_keys"] = models.PhotoKeyList(photos)
		listing.Plan = plan
		listing.LogoKey = logo
		listing.PhotoKeys = photos
	}

	if err := e.store.UpdateFields(listing.ID, cols); err != nil {
		return nil, err
	}
	state.Apply(listing)
	listing.DeletedAt = nil
	return listing, nil
}

// ApplyPaymentTermination expires the referenced listing immediately.
func (e *Engine) ApplyPaymentTermination(ctx context.Context, ref EventRef) (*models.Listing, error) {
	_ = ctx
	listing, err := e.resolve(ref)
	if err != nil {
		return nil, err
	}

	state := ExpiredAt(e.now())
	if err := e.store.UpdateFields(listing.ID, state.Columns()); err != nil {
		return nil, err
	}
	state.Apply(listing)
	return listing, nil
}

// resolve tries the explicit listing identifier first and falls back to
// the normalized identity.
func (e *Engine) resolve(ref EventRef) (*models.Listing, error) {
	if id := strings.TrimSpace(ref.ListingUUID); id != "" {
		listing, err := e.store.GetByUUID(id)
		if err == nil {
			return listing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if email := identity.NormalizeEmail(ref.Email); email != "" {
		listing, err := e.store.GetByEmail(email)
		if err == nil {
			return listing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, ErrListingNotFound
}

// BoundMedia enforces the plan's media bounds: basic carries no media at
// all, the other plans keep at most their photo limit.
func BoundMedia(plan, logoKey string, photoKeys []string) (string, []string) {
	limit := models.PlanPhotoLimit(plan)
	if limit == 0 {
		return "", nil
	}
	if len(photoKeys) > limit {
		photoKeys = photoKeys[:limit]
	}
	return logoKey, photoKeys
}

func validateRegistration(in RegisterInput, email, plan string) error {
	if strings.TrimSpace(in.BusinessName) == "" {
		return &ValidationError{Field: "business_name", Reason: "required"}
	}
	if email == "" || !strings.Contains(email, "@") {
		return &ValidationError{Field: "email", Reason: "required"}
	}
	if strings.TrimSpace(in.Phone) == "" {
		return &ValidationError{Field: "phone", Reason: "required"}
	}
	if strings.TrimSpace(in.City) == "" {
		return &ValidationError{Field: "city", Reason: "required"}
	}
	if strings.TrimSpace(in.Address) == "" {
		return &ValidationError{Field: "address", Reason: "required"}
	}
	if strings.TrimSpace(in.Category) == "" {
		return &ValidationError{Field: "category", Reason: "required"}
	}
	if !models.IsValidPlan(plan) {
		return &ValidationError{Field: "plan", Reason: "must be one of basic, standard, premium"}
	}
	return nil
}
