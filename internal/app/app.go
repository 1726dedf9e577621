// Package app builds and owns the long-lived services of the validator.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-validator/internal/api"
	"github.com/JakeFAU/crawl-validator/internal/clock/system"
	"github.com/JakeFAU/crawl-validator/internal/config"
	"github.com/JakeFAU/crawl-validator/internal/dispatcher"
	"github.com/JakeFAU/crawl-validator/internal/id/uuid"
	"github.com/JakeFAU/crawl-validator/internal/input"
	"github.com/JakeFAU/crawl-validator/internal/mail"
	"github.com/JakeFAU/crawl-validator/internal/metrics"
	"github.com/JakeFAU/crawl-validator/internal/platform"
	memorypublisher "github.com/JakeFAU/crawl-validator/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/crawl-validator/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/crawl-validator/internal/queue/memory"
	"github.com/JakeFAU/crawl-validator/internal/schema"
	gcsstore "github.com/JakeFAU/crawl-validator/internal/storage/gcs"
	localstore "github.com/JakeFAU/crawl-validator/internal/storage/local"
	memorystore "github.com/JakeFAU/crawl-validator/internal/storage/memory"
	pgstore "github.com/JakeFAU/crawl-validator/internal/storage/postgres"
	"github.com/JakeFAU/crawl-validator/internal/telemetry"
	"github.com/JakeFAU/crawl-validator/internal/validation"
	"github.com/JakeFAU/crawl-validator/internal/worker"
)

// ErrServeUnsupported is returned by Serve for backends that cannot hold namespaced keys.
var ErrServeUnsupported = errors.New("serve mode requires a memory, local, gcs or postgres storage backend")

// App holds the shared services for one process.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	platform    *platform.Client
	store       validation.KeyValueStore
	invocations validation.InvocationStore
	publisher   validation.Publisher
	workflow    *validation.Workflow
	clock       validation.Clock
	ids         validation.IDGenerator

	gcsClient       *gcs.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	pool            *pgxpool.Pool
	tracerShutdown  telemetry.Shutdown
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}
	logger.Info("building application dependencies",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("dry_run", cfg.Validation.DryRun),
	)

	if cfg.Telemetry.TracingEnabled {
		shutdown, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		a.tracerShutdown = shutdown
	}

	client, err := platform.New(platform.Config{
		APIBaseURL:    cfg.Platform.APIBaseURL,
		LegacyBaseURL: cfg.Platform.LegacyBaseURL,
		Token:         cfg.Platform.Token,
		Timeout:       cfg.PlatformTimeout(),
		RatePerSecond: cfg.Platform.RatePerSecond,
		Burst:         cfg.Platform.Burst,
	}, logger.Named("platform"))
	if err != nil {
		return nil, fmt.Errorf("platform client init failed: %w", err)
	}
	a.platform = client

	if err := a.setupStorage(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.setupPublisher(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	mailer, err := a.setupMailer()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	reporter := validation.NewReporter(
		mailer,
		client,
		a.publisher,
		a.clock,
		validation.ReporterConfig{
			Topic: cfg.PubSub.TopicName,
			Links: validation.LinkBases{
				Legacy: cfg.Platform.LegacyBaseURL,
				API:    cfg.Platform.APIBaseURL,
			},
		},
		logger.Named("reporter"),
	)
	a.workflow = validation.NewWorkflow(
		client,
		validation.NewSampler(cfg.Validation.PageLimit, logger.Named("sampler")),
		validation.NewValidator(schema.NewCompiler(), logger.Named("validator")),
		reporter,
		logger.Named("workflow"),
	)
	return a, nil
}

func (a *App) setupStorage(ctx context.Context) error {
	a.invocations = memorystore.NewInvocationStore()
	var err error
	switch a.cfg.Storage.Backend {
	case config.BackendMemory:
		a.logger.Info("using in-memory storage backend")
		a.store = memorystore.NewKVStore()
	case config.BackendLocal:
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.BaseDir))
		a.store, err = localstore.New(localstore.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("local store init failed: %w", err)
		}
	case config.BackendGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		a.gcsClient, err = gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.store, err = gcsstore.New(a.gcsClient, gcsstore.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return fmt.Errorf("gcs store init failed: %w", err)
		}
	case config.BackendPostgres:
		a.logger.Info("using postgres storage backend", zap.String("table", a.cfg.DB.RecordsTable))
		a.pool, err = pgstore.Connect(ctx, pgstore.Config{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DBConnLifetime(),
		})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		a.store, err = pgstore.NewKVStore(a.pool, a.cfg.DB.RecordsTable)
		if err != nil {
			return fmt.Errorf("postgres record store init failed: %w", err)
		}
		a.invocations, err = pgstore.NewInvocationStore(a.pool, a.cfg.DB.InvocationsTable)
		if err != nil {
			return fmt.Errorf("postgres invocation store init failed: %w", err)
		}
	case config.BackendPlatform:
		a.logger.Info("using platform key-value store", zap.String("store_id", a.cfg.Platform.KeyValueStoreID))
		a.store, err = platform.NewKeyValueStore(a.platform, a.cfg.Platform.KeyValueStoreID)
		if err != nil {
			return fmt.Errorf("platform store init failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", a.cfg.Storage.Backend)
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Warn("No Pub/Sub project configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubPublisher = gcppublisher.New(a.pubsubClient)
	a.publisher = a.pubsubPublisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupMailer() (validation.Mailer, error) {
	if a.cfg.Validation.DryRun {
		a.logger.Info("dry run enabled, notification emails are logged only")
		return mail.NewLogMailer(a.logger.Named("mail")), nil
	}
	mailer, err := mail.NewPlatformMailer(a.platform, a.cfg.Platform.MailActorID)
	if err != nil {
		return nil, fmt.Errorf("mailer init failed: %w", err)
	}
	return mailer, nil
}

// Store returns the configured key-value store.
func (a *App) Store() validation.KeyValueStore {
	return a.store
}

// Invocations returns the invocation status store.
func (a *App) Invocations() validation.InvocationStore {
	return a.invocations
}

// Publisher returns the completion event publisher.
func (a *App) Publisher() validation.Publisher {
	return a.publisher
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunOnce validates a single invocation against the configured store. When inputPath
// is set its contents are written to INPUT first.
func (a *App) RunOnce(ctx context.Context, inputPath string) (validation.Outcome, error) {
	if inputPath != "" {
		raw, err := os.ReadFile(inputPath)
		if err != nil {
			return validation.Outcome{}, fmt.Errorf("read input file: %w", err)
		}
		if err := a.store.Set(ctx, validation.InputKey, raw); err != nil {
			return validation.Outcome{}, fmt.Errorf("store input: %w", err)
		}
	}
	req, err := input.Load(ctx, a.store, a.logger.Named("input"))
	if err != nil {
		return validation.Outcome{}, err
	}
	return a.workflow.Run(ctx, a.store, req)
}

type service struct {
	queue    *queuememory.Queue
	dispatch *dispatcher.Dispatcher
	api      *api.Server
}

func (a *App) newService() (*service, error) {
	if a.cfg.Storage.Backend == config.BackendPlatform {
		return nil, ErrServeUnsupported
	}
	q := queuememory.NewQueue(a.cfg.Workers.QueueDepth)
	load := func(ctx context.Context, store validation.KeyValueStore) (validation.Request, error) {
		return input.Load(ctx, store, a.logger.Named("input"))
	}
	workers := make([]*worker.Worker, 0, a.cfg.Workers.Count)
	for i := 0; i < a.cfg.Workers.Count; i++ {
		workers = append(workers, worker.New(
			q,
			a.invocations,
			a.store,
			load,
			a.workflow,
			worker.Config{Timeout: a.cfg.WorkerTimeout()},
			a.logger.Named("worker").With(zap.Int("worker", i)),
		))
	}
	dispatch := dispatcher.New(q, workers)
	return &service{
		queue:    q,
		dispatch: dispatch,
		api: api.NewServer(
			a.invocations,
			a.store,
			dispatch,
			a.ids,
			a.clock,
			a.cfg,
			a.logger.Named("api"),
		),
	}, nil
}

// Serve runs the webhook receiver and worker pool until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	svc, err := a.newService()
	if err != nil {
		return err
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.logger.Info("dispatcher started", zap.Int("workers", svc.dispatch.Size()))
		svc.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           svc.api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server: %w", err)
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	svc.queue.Close()
	<-done

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// Close releases clients and flushes telemetry.
func (a *App) Close(ctx context.Context) {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}
