package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"artist-sync/internal/breaker"
	"artist-sync/internal/cache"
	"artist-sync/internal/config"
	"artist-sync/internal/importer"
	"artist-sync/internal/jobs"
	"artist-sync/internal/logging"
	"artist-sync/internal/models"
	"artist-sync/internal/providers"
	"artist-sync/internal/queue"
	"artist-sync/internal/ratelimit"
	"artist-sync/internal/store"
	"artist-sync/internal/telemetry"
	"artist-sync/internal/worker"
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

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		if hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}

	jobSvc := jobs.NewService(st, registry)
	progress := importer.NewTracker(st)
	invalidator := cache.NewInvalidator(registry.Client())

	catalog, events, setlists := newProviderClients(cfg)
	imp := importer.New(cfg, st, progress, jobSvc, catalog, events, setlists, invalidator)

	artwork, err := worker.NewArtworkHandler(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("init artwork handler")
	}

	// Total setlist throughput across the whole fleet stays under the
	// provider's daily allowance, regardless of worker count.
	setlistBucket := ratelimit.NewTokenBucket(registry.Client(), cfg.SetlistBurst, cfg.SetlistQueueRefill, time.Hour)

	base := func(concurrency int) worker.Options {
		return worker.Options{
			Concurrency:        concurrency,
			PollInterval:       cfg.WorkerPollInterval,
			MaxAttempts:        cfg.MaxAttempts,
			BackoffInitial:     cfg.BackoffInitial,
			BackoffMax:         cfg.BackoffMax,
			ScheduledBatch:     int64(cfg.ScheduledBatchSize),
			WorkerID:           workerID,
			OnPermanentFailure: imp.OnJobFailed,
		}
	}
	setlistOpts := base(cfg.SetlistWorkers)
	setlistOpts.Throttle = setlistBucket

	artworkOpts := base(cfg.ArtworkWorkers)
	artworkOpts.OnPermanentFailure = nil // artwork never gates an import

	pools := []*worker.Pool{
		worker.NewPool(registry.Queue(models.QueueProfileSync), st, imp.HandleProfileSync, base(cfg.ProfileWorkers)),
		worker.NewPool(registry.Queue(models.QueueCatalogSync), st, imp.HandleCatalogSync, base(cfg.CatalogWorkers)),
		worker.NewPool(registry.Queue(models.QueueCatalogDeep), st, imp.HandleCatalogDeep, base(cfg.CatalogDeepWorkers)),
		worker.NewPool(registry.Queue(models.QueueEventSync), st, imp.HandleEventSync, base(cfg.EventWorkers)),
		worker.NewPool(registry.Queue(models.QueueSetlistSync), st, imp.HandleSetlistSync, setlistOpts),
		worker.NewPool(registry.Queue(models.QueueArtwork), st, artwork.Handle, artworkOpts),
	}

	janitor := worker.NewJanitor(st, cfg.JanitorInterval, cfg.CompletedRetention, cfg.FailedRetention)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logging.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	logging.Info().
		Str("worker_id", workerID).
		Dur("visibility", cfg.VisibilityTimeout).
		Dur("backoff_initial", cfg.BackoffInitial).
		Msg("worker started")

	var wg sync.WaitGroup
	for _, pool := range pools {
		wg.Add(1)
		go func(p *worker.Pool) {
			defer wg.Done()
			_ = p.Run(ctx)
		}(pool)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		janitor.Run(ctx)
	}()
	wg.Wait()

	logging.Info().Msg("worker stopped")
}

// newProviderClients builds the three provider clients behind their shared
// limiters and breakers. One guard per provider, shared by every pool.
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
