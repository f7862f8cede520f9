package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"artist-sync/internal/api"
	"artist-sync/internal/breaker"
	"artist-sync/internal/cache"
	"artist-sync/internal/config"
	"artist-sync/internal/importer"
	"artist-sync/internal/jobs"
	"artist-sync/internal/logging"
	"artist-sync/internal/providers"
	"artist-sync/internal/queue"
	"artist-sync/internal/ratelimit"
	"artist-sync/internal/store"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logging.Fatal().Err(err).Msg("connect postgres")
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		logging.Fatal().Err(err).Msg("run migrations")
	}

	registry := queue.NewRegistry(cfg)
	defer registry.Close()

	submitLimiter := ratelimit.NewTokenBucket(registry.Client(), cfg.QueueBucketCapacity, cfg.QueueBucketRefill, time.Hour)

	jobSvc := jobs.NewService(st, registry)
	progress := importer.NewTracker(st)
	invalidator := cache.NewInvalidator(registry.Client())

	catalog, events, setlists := newProviderClients(cfg)
	imp := importer.New(cfg, st, progress, jobSvc, catalog, events, setlists, invalidator)

	server := api.New(cfg, st, registry, imp, progress, jobSvc, submitLimiter)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	logging.Info().Str("port", cfg.HTTPPort).Msg("api listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}

// newProviderClients builds the three provider clients behind their limiters
// and breakers. The API only exercises the events client indirectly (forced
// refreshes), but wiring all three keeps construction in one place.
func newProviderClients(cfg config.Config) (*providers.CatalogClient, *providers.EventsClient, *providers.SetlistClient) {
	breakerFor := func(name string) *breaker.Breaker {
		return breaker.New(breaker.Settings{
			Name:                name,
			ConsecutiveFailures: cfg.BreakerFailureThreshold,
			Cooldown:            cfg.BreakerCooldown,
			HalfOpenMax:         cfg.BreakerHalfOpenMax,
		})
	}

	catalogGuard := providers.NewGuard("catalog",
		ratelimit.NewProviderLimiter("catalog", cfg.CatalogRatePerSec, cfg.CatalogBurst, cfg.RateAcquireTimeout),
		breakerFor("catalog"))
	eventsGuard := providers.NewGuard("events",
		ratelimit.NewProviderLimiter("events", cfg.EventsRatePerSec, cfg.EventsBurst, cfg.RateAcquireTimeout),
		breakerFor("events"))
	setlistGuard := providers.NewGuard("setlists",
		ratelimit.NewProviderLimiter("setlists", ratelimit.PerMinute(cfg.SetlistRatePerMin), cfg.SetlistBurst, cfg.RateAcquireTimeout),
		breakerFor("setlists"))

	return providers.NewCatalogClient(cfg, catalogGuard),
		providers.NewEventsClient(cfg, eventsGuard),
		providers.NewSetlistClient(cfg, setlistGuard)
}
