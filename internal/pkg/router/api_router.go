package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/FlorianWeber/ListFox/app/controllers"
	"github.com/FlorianWeber/ListFox/internal/pkg/cache"
	"github.com/FlorianWeber/ListFox/internal/pkg/constants"
	"github.com/FlorianWeber/ListFox/internal/pkg/env"
	"github.com/FlorianWeber/ListFox/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New(limiter.Config{
		Max:        env.GetEnvInt("RATE_LIMIT_MAX", 60),
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group(constants.APIV1Route)
	v1.Post(constants.ListingsRoute, controllers.HandleListingRegister)
	v1.Get(constants.ListingsRoute, controllers.HandleListingsQuery)
	// The status route must come before the uuid wildcard.
	v1.Get(constants.ListingStatusRoute, controllers.HandleListingStatus)
	v1.Get(constants.ListingByUUIDRoute, controllers.HandleListingDetail)
	v1.Delete(constants.ListingByUUIDRoute, controllers.HandleListingDelete)

	v1.Post(constants.PaymentWebhookRoute, controllers.HandlePaymentWebhook)

	admin := v1.Group(constants.AdminGroupRoute, middleware.AdminTokenMiddleware())
	admin.Get(constants.AdminListingsRoute, controllers.HandleAdminListingsList)
	admin.Patch(constants.AdminListingRoute, controllers.HandleAdminListingPatch)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

// newLimiterStorage backs the rate limiter with Redis so limits hold
// across instances. Connection details come from the cache client; the
// limiter uses database 1 to stay out of the cache's keyspace.
func newLimiterStorage() fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}
