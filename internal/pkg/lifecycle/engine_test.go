package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/FlorianWeber/ListFox/app/models"
	"gorm.io/gorm"
)

type fakeStore struct {
	byEmail map[string]*models.Listing
	byUUID  map[string]*models.Listing

	created int
	updated int
	fields  map[string]interface{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byEmail: map[string]*models.Listing{},
		byUUID:  map[string]*models.Listing{},
	}
}

func (f *fakeStore) add(l *models.Listing) {
	f.byEmail[l.Email] = l
	f.byUUID[l.UUID] = l
}

func (f *fakeStore) Create(l *models.Listing) error {
	if _, ok := f.byEmail[l.Email]; ok {
		return errors.New("duplicate email")
	}
	l.ID = uint(len(f.byEmail) + 1)
	f.add(l)
	f.created++
	return nil
}

func (f *fakeStore) GetByEmail(email string) (*models.Listing, error) {
	if l, ok := f.byEmail[email]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) GetByUUID(uuid string) (*models.Listing, error) {
	if l, ok := f.byUUID[uuid]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) Update(l *models.Listing) error {
	f.add(l)
	f.updated++
	return nil
}

func (f *fakeStore) UpdateFields(id uint, fields map[string]interface{}) error {
	f.fields = fields
	return nil
}

type fakeGeocoder struct {
	lat, lng float64
	found    bool
	err      error
}

func (g *fakeGeocoder) Resolve(ctx context.Context, address, city, country string) (float64, float64, bool, error) {
	return g.lat, g.lng, g.found, g.err
}

type fakeCheckout struct {
	calls []string
	err   error
}

func (c *fakeCheckout) CreateSession(ctx context.Context, listingUUID, email, plan string) (string, error) {
	c.calls = append(c.calls, listingUUID)
	if c.err != nil {
		return "", c.err
	}
	return fmt.Sprintf("https://pay.example.com/s/%s", listingUUID), nil
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(store *fakeStore, geo *fakeGeocoder, co *fakeCheckout) *Engine {
	return NewEngine(store, geo, co,
		WithClock(func() time.Time { return testNow }),
		WithTrialMonths(6),
		WithDefaultCountry("DE"),
		WithRedirectBase("https://listfox.example.com"),
	)
}

func validInput() RegisterInput {
	return RegisterInput{
		BusinessName: "Backstube Krause",
		Email:        "Info@Backstube-Krause.DE",
		Phone:        "+49 30 1234567",
		Country:      "de",
		City:         "Berlin",
		Address:      "Hauptstrasse 1",
		Category:     "bakery",
		Plan:         "standard",
		PhotoKeys:    []string{"p1", "p2"},
	}
}

func TestRegister_NewTrial(t *testing.T) {
	store := newFakeStore()
	geo := &fakeGeocoder{lat: 52.52, lng: 13.40, found: true}
	co := &fakeCheckout{}
	e := newTestEngine(store, geo, co)

	res, err := e.Register(context.Background(), validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeNewTrial {
		t.Fatalf("expected new trial, got %q", res.Outcome)
	}

	l := res.Listing
	if l.Email != "info@backstube-krause.de" {
		t.Fatalf("email not normalized: %q", l.Email)
	}
	if l.Phone != "+49301234567" {
		t.Fatalf("phone not normalized: %q", l.Phone)
	}
	if l.PaymentStatus != models.PaymentStatusTrial {
		t.Fatalf("unexpected status %q", l.PaymentStatus)
	}
	wantEnd := testNow.AddDate(0, 6, 0)
	if l.TrialStartedAt == nil || !l.TrialStartedAt.Equal(testNow) || l.TrialEndsAt == nil || !l.TrialEndsAt.Equal(wantEnd) {
		t.Fatalf("unexpected trial window %v..%v", l.TrialStartedAt, l.TrialEndsAt)
	}
	if !l.IsActive(testNow) {
		t.Fatalf("a fresh trial must pass the active filter immediately")
	}
	if l.Latitude != 52.52 || l.Longitude != 13.40 {
		t.Fatalf("unexpected coordinates %f,%f", l.Latitude, l.Longitude)
	}
	if !strings.Contains(res.RedirectURL, l.UUID) {
		t.Fatalf("redirect %q does not reference listing", res.RedirectURL)
	}
	if res.DeleteToken == "" || l.DeleteTokenHash == "" {
		t.Fatalf("expected a self-service delete token")
	}
	if !models.CheckTokenHash(res.DeleteToken, l.DeleteTokenHash) {
		t.Fatalf("delete token does not match its stored hash")
	}
	if len(co.calls) != 0 {
		t.Fatalf("a first registration must not touch the checkout gateway")
	}
}

func TestRegister_ValidationFailuresHappenBeforeAnyWrite(t *testing.T) {
	store := newFakeStore()
	geo := &fakeGeocoder{found: true}
	e := newTestEngine(store, geo, &fakeCheckout{})

	tests := []struct {
		name   string
		mutate func(*RegisterInput)
		field  string
	}{
		{name: "missing name", mutate: func(in *RegisterInput) { in.BusinessName = " " }, field: "business_name"},
		{name: "missing email", mutate: func(in *RegisterInput) { in.Email = "" }, field: "email"},
		{name: "missing phone", mutate: func(in *RegisterInput) { in.Phone = "" }, field: "phone"},
		{name: "bad phone", mutate: func(in *RegisterInput) { in.Phone = "call me" }, field: "phone"},
		{name: "missing city", mutate: func(in *RegisterInput) { in.City = "" }, field: "city"},
		{name: "missing address", mutate: func(in *RegisterInput) { in.Address = "" }, field: "address"},
		{name: "missing category", mutate: func(in *RegisterInput) { in.Category = "" }, field: "category"},
		{name: "bad plan", mutate: func(in *RegisterInput) { in.Plan = "platinum" }, field: "plan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := e.Register(context.Background(), in)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}

	if store.created != 0 || store.updated != 0 {
		t.Fatalf("validation failures must not write to the store")
	}
}

func TestRegister_UnresolvedLocationCreatesNothing(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store, &fakeGeocoder{found: false}, &fakeCheckout{})

	_, err := e.Register(context.Background(), validInput())
	var lerr *LocationUnresolvedError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected location error, got %v", err)
	}
	if store.created != 0 {
		t.Fatalf("a listing must never be partially created")
	}
}

func TestRegister_GeocoderOutageIsADependencyError(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store, &fakeGeocoder{err: errors.New("connect timeout")}, &fakeCheckout{})

	_, err := e.Register(context.Background(), validInput())
	var derr *DependencyError
	if !errors.As(err, &derr) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if derr.Dependency != "geocoder" {
		t.Fatalf("unexpected dependency %q", derr.Dependency)
	}
}

func TestRegister_ActiveListingIsRejectedUnchanged(t *testing.T) {
	store := newFakeStore()
	geo := &fakeGeocoder{lat: 1, lng: 2, found: true}
	e := newTestEngine(store, geo, &fakeCheckout{})

	res, err := e.Register(context.Background(), validInput())
	if err != nil {
		t.Fatalf("setup registration failed: %v", err)
	}
	before := *store.byEmail[res.Listing.Email]

	_, err = e.Register(context.Background(), validInput())
	var aerr *AlreadyActiveError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected already-active rejection, got %v", err)
	}
	if !aerr.ActiveUntil.Equal(testNow.AddDate(0, 6, 0)) {
		t.Fatalf("rejection must surface the window end, got %v", aerr.ActiveUntil)
	}

	after := *store.byEmail[res.Listing.Email]
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("stored record changed on a rejected registration")
	}
}

func TestRegister_InactiveListingGetsReCheckout(t *testing.T) {
	store := newFakeStore()
	geo := &fakeGeocoder{lat: 48.2, lng: 16.37, found: true}
	co := &fakeCheckout{}
	e := newTestEngine(store, geo, co)

	past := testNow.AddDate(0, -7, 0)
	pastEnd := testNow.AddDate(0, -1, 0)
	existing := &models.Listing{
		ID:             7,
		UUID:           "11111111-2222-3333-4444-555555555555",
		BusinessName:   "Old Name",
		Email:          "info@backstube-krause.de",
		Phone:          "+49301234567",
		Country:        "DE",
		City:           "Berlin",
		Address:        "Alte Strasse 9",
		Category:       "bakery",
		Plan:           "basic",
		Latitude:       52.0,
		Longitude:      13.0,
		PaymentStatus:  models.PaymentStatusTrial,
		TrialStartedAt: &past,
		TrialEndsAt:    &pastEnd, // window looked active once, but has passed
	}
	store.add(existing)

	in := validInput()
	in.City = "Wien"
	in.Country = "AT"
	in.Phone = "+43 1 2345678"

	res, err := e.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeReCheckout {
		t.Fatalf("expected re-checkout, got %q", res.Outcome)
	}

	l := store.byEmail["info@backstube-krause.de"]
	if l.PaymentStatus != models.PaymentStatusPending {
		t.Fatalf("expected pending state, got %q", l.PaymentStatus)
	}
	if l.TrialStartedAt != nil || l.TrialEndsAt != nil || l.PaidAt != nil || l.ExpiresAt != nil {
		t.Fatalf("expected all window timestamps cleared: %+v", l)
	}
	if l.UUID != existing.UUID {
		t.Fatalf("re-registration must keep the listing identity")
	}
	if l.BusinessName != "Backstube Krause" || l.City != "Wien" || l.Country != "AT" {
		t.Fatalf("profile fields were not overwritten: %+v", l)
	}
	if l.Latitude != 48.2 || l.Longitude != 16.37 {
		t.Fatalf("geolocation must be overwritten by the new resolution")
	}
	if !strings.Contains(res.CheckoutURL, existing.UUID) {
		t.Fatalf("checkout url %q does not carry the listing identifier", res.CheckoutURL)
	}
}

func TestRegister_CheckoutOutageSurfacesAsDependencyError(t *testing.T) {
	store := newFakeStore()
	store.add(&models.Listing{
		ID:            1,
		UUID:          "uuid-1",
		Email:         "info@backstube-krause.de",
		PaymentStatus: models.PaymentStatusExpired,
	})
	co := &fakeCheckout{err: errors.New("503")}
	e := newTestEngine(store, &fakeGeocoder{lat: 1, lng: 2, found: true}, co)

	_, err := e.Register(context.Background(), validInput())
	var derr *DependencyError
	if !errors.As(err, &derr) || derr.Dependency != "checkout gateway" {
		t.Fatalf("expected checkout dependency error, got %v", err)
	}
}

func TestApplyPaymentSuccess_IsIdempotent(t *testing.T) {
	store := newFakeStore()
	trialStart := testNow.AddDate(0, -1, 0)
	trialEnd := testNow.AddDate(0, 5, 0)
	store.add(&models.Listing{
		ID:             3,
		UUID:           "uuid-3",
		Email:          "shop@example.com",
		Plan:           "standard",
		PaymentStatus:  models.PaymentStatusTrial,
		TrialStartedAt: &trialStart,
		TrialEndsAt:    &trialEnd,
	})
	e := newTestEngine(store, &fakeGeocoder{}, &fakeCheckout{})

	first, err := e.ApplyPaymentSuccess(context.Background(), EventRef{ListingUUID: "uuid-3"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.PaymentStatus != models.PaymentStatusPaid {
		t.Fatalf("unexpected status %q", first.PaymentStatus)
	}
	if first.TrialStartedAt != nil || first.TrialEndsAt != nil {
		t.Fatalf("trial fields must be cleared on payment")
	}
	wantExpiry := testNow.Add(30 * 24 * time.Hour)
	if first.ExpiresAt == nil || !first.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expires = %v, want %v", first.ExpiresAt, wantExpiry)
	}

	// Redelivery: the overwrite is absolute, so the expiry cannot grow.
	second, err := e.ApplyPaymentSuccess(context.Background(), EventRef{ListingUUID: "uuid-3"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.ExpiresAt.Equal(*first.ExpiresAt) {
		t.Fatalf("redelivered event extended the window: %v vs %v", second.ExpiresAt, first.ExpiresAt)
	}
}

func TestApplyPaymentSuccess_PlanOverwriteReBoundsMedia(t *testing.T) {
	store := newFakeStore()
	store.add(&models.Listing{
		ID:            4,
		UUID:          "uuid-4",
		Email:         "shop@example.com",
		Plan:          "premium",
		LogoKey:       "logo.png",
		PhotoKeys:     models.PhotoKeyList{"a", "b", "c", "d", "e"},
		PaymentStatus: models.PaymentStatusTrial,
	})
	e := newTestEngine(store, &fakeGeocoder{}, &fakeCheckout{})

	l, err := e.ApplyPaymentSuccess(context.Background(), EventRef{ListingUUID: "uuid-4"}, "basic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Plan != "basic" {
		t.Fatalf("plan not overwritten: %q", l.Plan)
	}
	if l.LogoKey != "" || len(l.PhotoKeys) != 0 {
		t.Fatalf("downgrade to basic must clear media: %+v", l)
	}
}

func TestApplyPaymentSuccess_FallsBackToEmail(t *testing.T) {
	store := newFakeStore()
	store.add(&models.Listing{
		ID:            5,
		UUID:          "uuid-5",
		Email:         "shop@example.com",
		Plan:          "standard",
		PaymentStatus: models.PaymentStatusPending,
	})
	e := newTestEngine(store, &fakeGeocoder{}, &fakeCheckout{})

	l, err := e.ApplyPaymentSuccess(context.Background(), EventRef{ListingUUID: "unknown", Email: "Shop@Example.COM"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.UUID != "uuid-5" {
		t.Fatalf("resolved wrong listing %q", l.UUID)
	}
}

func TestApplyPaymentSuccess_UnknownListing(t *testing.T) {
	e := newTestEngine(newFakeStore(), &fakeGeocoder{}, &fakeCheckout{})

	_, err := e.ApplyPaymentSuccess(context.Background(), EventRef{ListingUUID: "nope", Email: "nope@example.com"}, "")
	if !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
}

func TestApplyPaymentTermination(t *testing.T) {
	store := newFakeStore()
	paidAt := testNow.AddDate(0, -1, 0)
	expiry := testNow.AddDate(0, 1, 0)
	store.add(&models.Listing{
		ID:            6,
		UUID:          "uuid-6",
		Email:         "shop@example.com",
		Plan:          "standard",
		PaymentStatus: models.PaymentStatusPaid,
		PaidAt:        &paidAt,
		ExpiresAt:     &expiry,
	})
	e := newTestEngine(store, &fakeGeocoder{}, &fakeCheckout{})

	l, err := e.ApplyPaymentTermination(context.Background(), EventRef{ListingUUID: "uuid-6"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.PaymentStatus != models.PaymentStatusExpired {
		t.Fatalf("unexpected status %q", l.PaymentStatus)
	}
	if l.ExpiresAt == nil || !l.ExpiresAt.Equal(testNow) {
		t.Fatalf("termination must expire immediately, got %v", l.ExpiresAt)
	}
	if l.PaidAt == nil || !l.PaidAt.Equal(paidAt) {
		t.Fatalf("termination must keep the paid_at audit stamp")
	}
}

func TestBoundMedia(t *testing.T) {
	logo, photos := BoundMedia("standard", "logo.png", []string{"1", "2", "3", "4", "5"})
	if logo != "logo.png" || len(photos) != 3 {
		t.Fatalf("standard plan must keep the logo and 3 photos, got %q %v", logo, photos)
	}

	logo, photos = BoundMedia("premium", "logo.png", []string{"1", "2"})
	if logo != "logo.png" || len(photos) != 2 {
		t.Fatalf("premium plan must keep media under the limit, got %q %v", logo, photos)
	}

	logo, photos = BoundMedia("basic", "logo.png", []string{"1", "2"})
	if logo != "" || photos != nil {
		t.Fatalf("basic plan must carry no media, got %q %v", logo, photos)
	}
}
