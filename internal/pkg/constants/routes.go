package constants

// Static route constants
const (
	APIRoute   = "/api"
	APIV1Route = "/v1"

	ListingsRoute       = "/listings"
	ListingStatusRoute  = "/listings/status"
	ListingByUUIDRoute  = "/listings/:uuid"
	PaymentWebhookRoute = "/payment/webhook"

	AdminGroupRoute    = "/admin"
	AdminListingsRoute = "/listings"
	AdminListingRoute  = "/listings/:uuid"
)
