package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/heimdex/heimdex-backend/internal/ingest"
	"github.com/heimdex/heimdex-backend/internal/ingest/consumer"
	"github.com/heimdex/heimdex-backend/internal/ingest/runner"
	"github.com/heimdex/heimdex-backend/internal/probe"
	"github.com/heimdex/heimdex-backend/internal/thumbs"
	"github.com/heimdex/heimdex-backend/pkg/config"
	"github.com/heimdex/heimdex-backend/pkg/db"
	"github.com/heimdex/heimdex-backend/pkg/instance"
	"github.com/heimdex/heimdex-backend/pkg/logger"
	"github.com/heimdex/heimdex-backend/pkg/metrics"
	"github.com/heimdex/heimdex-backend/pkg/pubsub"
	"github.com/heimdex/heimdex-backend/pkg/storage"
	"github.com/heimdex/heimdex-backend/pkg/storage/gcs"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "ingest-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "ingest-worker"

	logg = logger.New(logger.Options{
		ServiceName: "ingest-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	store, err := buildStore(context.Background(), cfg, logg)
	requireResource(ctx, logg, "storage", err)

	registry := prometheus.NewRegistry()
	jobMetrics := metrics.NewJobMetrics(registry)

	repo := ingest.NewRepository(dbClient.DB())
	prober := probe.NewProber(cfg.Ingest.ProbeTimeout, cfg.Ingest.StrongHashCeiling)
	renderer := thumbs.NewRenderer(cfg.Ingest.ProbeTimeout)

	run, err := runner.New(repo, dbClient, store, prober, renderer, cfg.Jobs, jobMetrics, logg)
	requireResource(ctx, logg, "job runner", err)

	jobConsumer, err := consumer.NewConsumer(run, pubsubClient.IngestSubscription(), logg)
	requireResource(ctx, logg, "ingest consumer", err)

	reaper, err := ingest.NewReaper(repo, dbClient, cfg.Jobs, jobMetrics, logg)
	requireResource(ctx, logg, "job reaper", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"env":         cfg.App.Env,
		"instance":    instance.GetID(),
	})
	logg.Info(runCtx, "ingest worker ready")

	go func() {
		if err := reaper.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(runCtx, "job reaper stopped", err)
		}
	}()

	if err := jobConsumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "ingest worker not working", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "ingest worker shutting down")
}

func buildStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendGCS:
		client, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			return nil, err
		}
		return gcs.NewStore(client)
	case config.StorageBackendLocal:
		return storage.NewLocal(cfg.Storage.DerivedRoot)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
