package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/supuni9622/ModelSnap/app/controllers"
	"github.com/supuni9622/ModelSnap/app/repository"
	"github.com/supuni9622/ModelSnap/internal/pkg/assets"
	"github.com/supuni9622/ModelSnap/internal/pkg/billing"
	"github.com/supuni9622/ModelSnap/internal/pkg/cache"
	"github.com/supuni9622/ModelSnap/internal/pkg/credits"
	"github.com/supuni9622/ModelSnap/internal/pkg/database"
	"github.com/supuni9622/ModelSnap/internal/pkg/env"
	"github.com/supuni9622/ModelSnap/internal/pkg/jobqueue"
	"github.com/supuni9622/ModelSnap/internal/pkg/notify"
	"github.com/supuni9622/ModelSnap/internal/pkg/router"
	"github.com/supuni9622/ModelSnap/internal/pkg/tryon"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	jobqueue.GetManager().Stop()
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)

	// Background jobs and the orchestrator reference each other: the
	// orchestrator schedules attempts through the manager, the manager's
	// workers and sweepers call back into the orchestrator.
	manager := jobqueue.GetManager()
	notifier := notify.NewDispatcher(db)

	generationService := tryon.NewService(
		tryon.NewStore(db),
		tryon.NewGatewayFromEnv(),
		tryon.NewDefaultClassifier(),
		assets.NewFinalizerFromEnv(),
		notifier,
		manager,
	)
	manager.SetAttemptService(generationService)

	creditService := credits.NewServiceFromDB(db)
	billingService := billing.NewServiceFromDB(db, manager, notifier)
	controllers.InitServices(generationService, creditService, billingService)

	manager.Start()

	app := fiber.New(fiber.Config{
		BodyLimit: 1048576, // 1 MiB, JSON-only API
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
