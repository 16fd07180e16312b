// Package app initializes and holds the long-lived services of one harvester
// process, acting as its dependency injection container.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/proxyharvest/internal/clock/system"
	"github.com/JakeFAU/proxyharvest/internal/collector/github"
	"github.com/JakeFAU/proxyharvest/internal/collector/platforms"
	"github.com/JakeFAU/proxyharvest/internal/config"
	"github.com/JakeFAU/proxyharvest/internal/dispatcher"
	"github.com/JakeFAU/proxyharvest/internal/export"
	"github.com/JakeFAU/proxyharvest/internal/extract"
	collyfetcher "github.com/JakeFAU/proxyharvest/internal/fetcher/colly"
	"github.com/JakeFAU/proxyharvest/internal/harvest"
	"github.com/JakeFAU/proxyharvest/internal/hash/md5"
	"github.com/JakeFAU/proxyharvest/internal/id/uuid"
	"github.com/JakeFAU/proxyharvest/internal/keywords"
	"github.com/JakeFAU/proxyharvest/internal/logging"
	"github.com/JakeFAU/proxyharvest/internal/persist"
	"github.com/JakeFAU/proxyharvest/internal/pipeline"
	"github.com/JakeFAU/proxyharvest/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/proxyharvest/internal/publisher/pubsub"
	"github.com/JakeFAU/proxyharvest/internal/storage/gcs"
	"github.com/JakeFAU/proxyharvest/internal/storage/local"
	"github.com/JakeFAU/proxyharvest/internal/storage/memory"
	"github.com/JakeFAU/proxyharvest/internal/storage/postgres"
	"github.com/JakeFAU/proxyharvest/internal/telemetry"
	"github.com/JakeFAU/proxyharvest/internal/validate"
)

// App holds the shared services for a run. It is built once at startup and
// closed when the command finishes.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	runID    string
	store    harvest.NodeStore
	exporter *export.Exporter
	runner   *pipeline.Runner

	gcsClient *storage.Client
	publisher *pubsubpublisher.Publisher
	tracing   *sdktrace.TracerProvider
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunID returns the identifier attached to this process's run.
func (a *App) RunID() string {
	return a.runID
}

// Store exposes the node store.
func (a *App) Store() harvest.NodeStore {
	return a.store
}

// Exporter returns the configured exporter.
func (a *App) Exporter() *export.Exporter {
	return a.exporter
}

// Runner returns the pipeline runner.
func (a *App) Runner() *pipeline.Runner {
	return a.runner
}

// New creates the services described by cfg. Store connection and migration
// failures are fatal; the optional GCS mirror and Pub/Sub notifier are too,
// since they were explicitly configured.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)

	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	a := &App{cfg: cfg, runID: runID, logger: logger.With(zap.String("run_id", runID))}
	a.logger.Info("initializing services", zap.String("db_driver", cfg.DB.Driver))

	a.tracing, err = telemetry.InitTracerProvider(ctx, telemetry.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a.store, err = openStore(ctx, cfg.DB, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.buildExporter(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.buildRunner()

	a.logger.Info("services initialized")
	return a, nil
}

func openStore(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (harvest.NodeStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory node store; nodes are discarded at exit")
		return memory.NewNodeStore(), nil
	case config.DriverPostgres:
		logger.Info("connecting to postgres")
		pool, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("open node store: %w", err)
		}
		if err := postgres.RunMigrations(pool, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate node store: %w", err)
		}
		store, err := postgres.NewNodeStoreWithPool(pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("open node store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown db driver: %s", cfg.Driver)
	}
}

func (a *App) buildExporter(ctx context.Context) error {
	writer, err := local.New(local.Config{})
	if err != nil {
		return fmt.Errorf("init export writer: %w", err)
	}

	var opts []export.Option
	if bucket := a.cfg.Export.GCSBucket; bucket != "" {
		a.gcsClient, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		mirror, err := gcs.New(a.gcsClient, gcs.Config{Bucket: bucket, Prefix: a.cfg.Export.GCSPrefix})
		if err != nil {
			return fmt.Errorf("init gcs mirror: %w", err)
		}
		a.logger.Info("mirroring exports to gcs", zap.String("bucket", bucket))
		opts = append(opts, export.WithMirror(mirror))
	}
	if topic := a.cfg.PubSub.Topic; topic != "" {
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		a.publisher = pubsubpublisher.New(client)
		a.logger.Info("publishing export notifications", zap.String("topic", topic))
		opts = append(opts, export.WithNotifier(a.publisher, topic))
	}

	a.exporter = export.New(export.Config{
		Path:       a.cfg.Export.Path,
		Base64Path: a.cfg.Export.Base64Path,
		Limit:      a.cfg.Export.Limit,
		RunID:      a.runID,
	}, a.store, writer, system.New(), a.logger, opts...)
	return nil
}

func (a *App) buildRunner() {
	cfg := a.cfg
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Harvest.UserAgent,
		Timeout:   cfg.PlatformTimeout(),
	})
	githubPacer := ratelimit.New(ratelimit.Config{Interval: cfg.GitHubSleep()})
	platformPacer := ratelimit.New(ratelimit.Config{Interval: cfg.PlatformSleep()})

	gh := github.New(github.Config{
		Token:          cfg.GitHub.Token,
		PerPage:        cfg.GitHub.PerPage,
		MaxFiles:       cfg.GitHub.MaxFiles,
		APIBaseURL:     cfg.GitHub.APIBaseURL,
		RawBaseURL:     cfg.GitHub.RawBaseURL,
		RequestTimeout: cfg.GitHubTimeout(),
		RawTimeout:     cfg.GitHubRawTimeout(),
	}, fetcher, githubPacer, a.logger)

	deps := pipeline.Deps{
		GitHubSearcher:    gh,
		RepoFetcher:       gh,
		PlatformSearchers: a.platformSearchers(fetcher, platformPacer),
		URLFetcher:        fetcher,
		Extractor:         extract.New(),
		Saver: persist.New(
			a.store,
			validate.New(cfg.LivenessTimeout(), a.logger),
			md5.New(),
			system.New(),
			a.logger,
		),
		Exporter:   a.exporter,
		Dispatcher: dispatcher.New(cfg.Workers(), a.logger),
	}

	a.runner = pipeline.New(deps, pipeline.Config{
		RunGitHub:           cfg.Harvest.RunGitHub,
		RunPlatforms:        cfg.Harvest.RunPlatforms,
		GitHubVocabulary:    keywords.DefaultGitHubVocabulary(),
		PlatformVocabulary:  keywords.DefaultPlatformVocabulary(),
		MaxGitHubKeywords:   cfg.GitHub.MaxKeywords,
		MaxPlatformKeywords: cfg.Platforms.MaxKeywords,
		RunID:               a.runID,
		PushgatewayURL:      cfg.Metrics.PushgatewayURL,
	}, a.logger)
}

// platformSearchers returns Hunter and Quake when their keys are set, then
// DuckDuckGo, which needs no key.
func (a *App) platformSearchers(fetcher *collyfetcher.Fetcher, pacer *ratelimit.Limiter) []harvest.Searcher {
	cfg := a.cfg.Platforms
	timeout := a.cfg.PlatformTimeout()

	var out []harvest.Searcher
	if cfg.HunterAPIKey != "" {
		out = append(out, platforms.NewHunter(platforms.Config{
			BaseURL:  cfg.HunterBaseURL,
			APIKey:   cfg.HunterAPIKey,
			PageSize: cfg.PageSize,
			Timeout:  timeout,
		}, fetcher, pacer))
	} else {
		a.logger.Info("hunter disabled: no api key")
	}
	if cfg.QuakeAPIKey != "" {
		out = append(out, platforms.NewQuake(platforms.Config{
			BaseURL:  cfg.QuakeBaseURL,
			APIKey:   cfg.QuakeAPIKey,
			PageSize: cfg.PageSize,
			Timeout:  timeout,
		}, fetcher, pacer))
	} else {
		a.logger.Info("quake disabled: no api key")
	}
	out = append(out, platforms.NewDDG(platforms.Config{
		BaseURL:  cfg.DDGBaseURL,
		PageSize: cfg.DDGMaxResults,
		Timeout:  timeout,
	}, fetcher, pacer))
	return out
}

// Close shuts down every service. It is safe to call on a partially built App.
func (a *App) Close() {
	a.logger.Info("shutting down services")
	if a.store != nil {
		a.store.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("error closing pubsub client", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("error closing gcs client", zap.Error(err))
		}
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(context.Background()); err != nil {
			a.logger.Warn("error shutting down tracer provider", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
