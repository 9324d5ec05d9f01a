package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"

	"github.com/JonasWeigert/VowPix/app/controllers"
	"github.com/JonasWeigert/VowPix/app/repository"
	"github.com/JonasWeigert/VowPix/internal/pkg/cache"
	"github.com/JonasWeigert/VowPix/internal/pkg/database"
	"github.com/JonasWeigert/VowPix/internal/pkg/env"
	"github.com/JonasWeigert/VowPix/internal/pkg/generation"
	"github.com/JonasWeigert/VowPix/internal/pkg/metrics/counter"
	"github.com/JonasWeigert/VowPix/internal/pkg/objectstore"
	"github.com/JonasWeigert/VowPix/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())

	// Portrait provider and result storage
	provider := generation.NewProviderFromEnv()
	var store *objectstore.Client
	if cfg, err := objectstore.LoadConfig(); err != nil {
		log.Fatalf("object storage config invalid: %v", err)
	} else if cfg.IsEnabled() {
		store, err = objectstore.NewClient(cfg)
		if err != nil {
			log.Fatalf("object storage unavailable: %v", err)
		}
	}
	controllers.ConfigureGeneration(provider, store)

	// Flush buffered style counters to the database once a minute
	c := cron.New()
	if _, err := c.AddFunc("* * * * *", func() {
		if err := counter.FlushAll(); err != nil {
			log.Printf("style counter flush failed: %v", err)
		}
	}); err != nil {
		log.Fatalf("failed to schedule counter flush: %v", err)
	}
	c.Start()

	// Find the correct base path for bundled docs
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/vowpix to project root
		"../../../", // Fallback
	}
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}
	if basePath == "" {
		panic("Could not find project root directory")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 16 * 1024 * 1024, // photo uploads cap at 15 MiB
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
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

	return app
}
