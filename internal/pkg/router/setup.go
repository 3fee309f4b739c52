package router

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/PixelMart/internal/pkg/cache"
	"github.com/ManuelReschke/PixelMart/internal/pkg/env"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Options configures the HTTP surface.
type Options struct {
	AdminUser     string
	AdminPassword string
	// LimiterStorage holds the per-IP counters of the event endpoints.
	// nil keeps them in process memory.
	LimiterStorage fiber.Storage
	// EventRateLimit is the number of view/click requests one IP may send per minute.
	EventRateLimit int
}

// OptionsFromEnv reads the router options. RATE_LIMIT_STORE=redis shares
// the limiter counters between instances through the cache server.
func OptionsFromEnv() Options {
	limit, err := strconv.Atoi(env.GetEnv("EVENT_RATE_LIMIT_PER_MINUTE", "120"))
	if err != nil || limit <= 0 {
		limit = 120
	}
	opts := Options{
		AdminUser:      env.GetEnv("ADMIN_USER", "admin"),
		AdminPassword:  env.GetEnv("ADMIN_PASSWORD", ""),
		EventRateLimit: limit,
	}
	if env.GetEnv("RATE_LIMIT_STORE", "memory") == "redis" {
		opts.LimiterStorage = NewRedisLimiterStorage()
	}
	return opts
}

// NewRedisLimiterStorage creates limiter storage on the cache server, using
// database 2 so limiter keys never mix with fraud windows.
func NewRedisLimiterStorage() fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient := cache.GetClient(); cacheClient != nil {
		if h, p, err := net.SplitHostPort(cacheClient.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 2,
		Reset:    false,
	})
}

func InstallRouter(app *fiber.App, opts Options) {
	setup(app, NewHttpRouter(), NewApiRouter(opts), NewAdminRouter(opts))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
