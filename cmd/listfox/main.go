package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/FlorianWeber/ListFox/app/repository"
	"github.com/FlorianWeber/ListFox/internal/pkg/cache"
	"github.com/FlorianWeber/ListFox/internal/pkg/database"
	"github.com/FlorianWeber/ListFox/internal/pkg/env"
	"github.com/FlorianWeber/ListFox/internal/pkg/metrics/counter"
	"github.com/FlorianWeber/ListFox/internal/pkg/router"
	"github.com/FlorianWeber/ListFox/internal/pkg/sweeper"
)

func main() {
	app, sw := NewApplication()
	sw.Start()
	defer sw.Stop()
	go counter.FlushLoop(env.GetEnvDuration("VIEW_FLUSH_INTERVAL", 5*time.Minute))

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *sweeper.Sweeper) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	// Find the project root when started from cmd/listfox
	basePath := ""
	for _, path := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}
	if basePath == "" {
		panic("Could not find project root directory")
	}

	sw := sweeper.New(
		repository.GetGlobalRepositories().Listing,
		sweeper.WithInterval(env.GetEnvDuration("SWEEP_INTERVAL", sweeper.DefaultInterval)),
		sweeper.WithRetention(env.GetEnvDuration("EXPIRED_RETENTION", sweeper.DefaultRetention)),
	)

	app := fiber.New(fiber.Config{
		BodyLimit: 33554432, // 32 MiB, bounded by per-file media limits
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics, shielded with basic auth
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app, sw
}
