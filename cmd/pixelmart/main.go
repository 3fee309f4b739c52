package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/PixelMart/app/controllers"
	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/app/repository"
	"github.com/ManuelReschke/PixelMart/internal/pkg/adevents"
	"github.com/ManuelReschke/PixelMart/internal/pkg/adservice"
	"github.com/ManuelReschke/PixelMart/internal/pkg/cache"
	"github.com/ManuelReschke/PixelMart/internal/pkg/catalog"
	"github.com/ManuelReschke/PixelMart/internal/pkg/clock"
	"github.com/ManuelReschke/PixelMart/internal/pkg/database"
	"github.com/ManuelReschke/PixelMart/internal/pkg/env"
	"github.com/ManuelReschke/PixelMart/internal/pkg/eventarchive"
	"github.com/ManuelReschke/PixelMart/internal/pkg/fraud"
	"github.com/ManuelReschke/PixelMart/internal/pkg/jobqueue"
	"github.com/ManuelReschke/PixelMart/internal/pkg/router"
)

// Application bundles the HTTP app with the resources it must release.
type Application struct {
	App       *fiber.App
	Jobs      *jobqueue.Manager
	Publisher adevents.Publisher
}

func main() {
	application := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := application.App.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	application.Shutdown()
}

func NewApplication() *Application {
	env.SetupEnvFile()

	repos, products := setupStore()
	publisher := setupPublisher()

	var windows fraud.WindowStore
	if env.GetEnv("FRAUD_WINDOW_STORE", "memory") == "redis" {
		windows = fraud.NewRedisWindowStore(cache.GetClient(), "pixelmart:fraud:")
	}

	svc := adservice.New(adservice.Deps{
		Repos:     repos,
		Products:  products,
		Clock:     clock.SystemClock{},
		Windows:   windows,
		Publisher: publisher,
	})

	jobsCfg := jobqueue.Config{Tasks: svc}
	if archiver := setupArchiver(repos); archiver != nil {
		jobsCfg.Archiver = archiver
	}
	if env.GetEnv("JOB_LOCK_STORE", "local") == "redis" {
		jobsCfg.Locker = jobqueue.NewRedisLocker(cache.GetClient(), "")
	}
	jobs := jobqueue.Init(jobsCfg)
	controllers.InitializeAdControllers(svc, jobs)
	controllers.InitializePaymentWebhookController(svc, env.GetEnv("PAYMENT_WEBHOOK_SECRET", ""))

	app := fiber.New(fiber.Config{
		AppName:   "PixelMart Ads",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if specPath := findOpenAPISpec(); specPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	} else {
		log.Println("Warning: openapi.yml not found, API docs disabled")
	}

	// ROUTER
	router.InstallRouter(app, router.OptionsFromEnv())

	if env.GetEnv("JOBS_ENABLED", "true") == "true" {
		jobs.Start()
	}

	return &Application{App: app, Jobs: jobs, Publisher: publisher}
}

// Shutdown stops background jobs first so no sweep races the HTTP drain.
func (a *Application) Shutdown() {
	a.Jobs.Stop()
	if err := a.App.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Error during HTTP shutdown: %v", err)
	}
	if err := a.Publisher.Close(); err != nil {
		log.Printf("Error closing event publisher: %v", err)
	}
}

// setupStore selects MySQL (default) or the in-process store for local runs.
func setupStore() (*repository.Repositories, catalog.ProductCatalog) {
	if env.GetEnv("AD_STORE", "mysql") == "memory" {
		log.Println("Warning: AD_STORE=memory, nothing is persisted")
		repository.InitializeMemoryFactory()
		return repository.GetGlobalRepositories(), catalog.NewStaticProductCatalog()
	}

	database.SetupDatabase()
	db := database.GetDB()
	repository.InitializeFactory(db)
	if err := models.LoadAdSettings(db); err != nil {
		log.Printf("Warning: using default ad settings: %v", err)
	}
	return repository.GetGlobalRepositories(), catalog.NewGormProductCatalog(db)
}

func setupPublisher() adevents.Publisher {
	url := env.GetEnv("AMQP_URL", "")
	if url == "" {
		return adevents.NoopPublisher{}
	}
	p, err := adevents.NewAMQPPublisher(url, env.GetEnv("ADS_EVENTS_EXCHANGE", adevents.DefaultExchange))
	if err != nil {
		log.Printf("Warning: ad events disabled: %v", err)
		return adevents.NoopPublisher{}
	}
	return p
}

func setupArchiver(repos *repository.Repositories) *eventarchive.Archiver {
	cfg, err := eventarchive.LoadConfig()
	if err != nil {
		log.Printf("Warning: event archive disabled: %v", err)
		return nil
	}
	if !cfg.IsEnabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := eventarchive.NewS3Client(ctx, cfg)
	if err != nil {
		log.Printf("Warning: event archive disabled: %v", err)
		return nil
	}
	return eventarchive.NewArchiver(repos, client, cfg, clock.SystemClock{})
}

func findOpenAPISpec() string {
	for _, base := range []string{"./", "../../", "../../../"} {
		path := base + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
