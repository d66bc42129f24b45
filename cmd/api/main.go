package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/heimdex/heimdex-backend/api/controllers"
	"github.com/heimdex/heimdex-backend/api/routes"
	"github.com/heimdex/heimdex-backend/internal/ingest"
	"github.com/heimdex/heimdex-backend/internal/ingest/runner"
	"github.com/heimdex/heimdex-backend/internal/probe"
	"github.com/heimdex/heimdex-backend/internal/thumbs"
	"github.com/heimdex/heimdex-backend/pkg/auth/session"
	"github.com/heimdex/heimdex-backend/pkg/config"
	"github.com/heimdex/heimdex-backend/pkg/db"
	"github.com/heimdex/heimdex-backend/pkg/idempotency"
	"github.com/heimdex/heimdex-backend/pkg/instance"
	"github.com/heimdex/heimdex-backend/pkg/logger"
	"github.com/heimdex/heimdex-backend/pkg/metrics"
	"github.com/heimdex/heimdex-backend/pkg/migrate"
	"github.com/heimdex/heimdex-backend/pkg/pubsub"
	"github.com/heimdex/heimdex-backend/pkg/queue"
	redisclient "github.com/heimdex/heimdex-backend/pkg/redis"
	"github.com/heimdex/heimdex-backend/pkg/storage"
	"github.com/heimdex/heimdex-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redisclient.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var sessions session.AccessSessionChecker
	if cfg.JWT.SessionCheck {
		sessionManager, err := session.NewManager(redisClient, cfg.JWT)
		if err != nil {
			logg.Error(context.Background(), "failed to create session manager", err)
			os.Exit(1)
		}
		sessions = sessionManager
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	jobMetrics := metrics.NewJobMetrics(registry)

	pingers := []controllers.NamedPinger{
		{Name: "db", Pinger: dbClient},
		{Name: "redis", Pinger: redisClient},
	}

	store, storePinger, err := buildStore(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap storage", err)
		os.Exit(1)
	}
	if storePinger != nil {
		pingers = append(pingers, controllers.NamedPinger{Name: "gcs", Pinger: storePinger})
	}

	repo := ingest.NewRepository(dbClient.DB())
	prober := probe.NewProber(cfg.Ingest.ProbeTimeout, cfg.Ingest.StrongHashCeiling)

	var jobQueue queue.Queue
	switch cfg.Jobs.QueueBackend {
	case config.QueueBackendDurable:
		psClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		pingers = append(pingers, controllers.NamedPinger{Name: "pubsub", Pinger: psClient})
		jobQueue = queue.NewDurable(queue.NewGCPPublisher(psClient.IngestPublisher()), logg)
	default:
		renderer := thumbs.NewRenderer(cfg.Ingest.ProbeTimeout)
		run, err := runner.New(repo, dbClient, store, prober, renderer, cfg.Jobs, jobMetrics, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create job runner", err)
			os.Exit(1)
		}
		jobQueue = queue.NewInline(run, logg)
	}

	guard := idempotency.New(redisClient, cfg.Redis.IdempotencyTTL, logg)

	svc, err := ingest.NewService(
		repo,
		dbClient,
		store,
		jobQueue,
		guard,
		prober,
		cfg.Ingest,
		cfg.GCS.UploadURLExpiry,
		jobMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create ingest service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"queue":    cfg.Jobs.QueueBackend,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			Service:  svc,
			Sessions: sessions,
			Redis:    redisClient,
			Pingers:  pingers,
			Gatherer: registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func buildStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (storage.Store, *gcs.Client, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendGCS:
		client, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			return nil, nil, err
		}
		store, err := gcs.NewStore(client)
		if err != nil {
			return nil, nil, err
		}
		return store, client, nil
	case config.StorageBackendLocal:
		store, err := storage.NewLocal(cfg.Storage.DerivedRoot)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}
