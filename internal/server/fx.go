// Package server builds the bot's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/bbdc-slot-bot/internal/api"
	"github.com/JakeFAU/bbdc-slot-bot/internal/bbdc"
	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
	"github.com/JakeFAU/bbdc-slot-bot/internal/clock/system"
	"github.com/JakeFAU/bbdc-slot-bot/internal/config"
	"github.com/JakeFAU/bbdc-slot-bot/internal/hash/sha256"
	"github.com/JakeFAU/bbdc-slot-bot/internal/id/uuid"
	"github.com/JakeFAU/bbdc-slot-bot/internal/metrics"
	"github.com/JakeFAU/bbdc-slot-bot/internal/notify"
	notifymemory "github.com/JakeFAU/bbdc-slot-bot/internal/notify/memory"
	"github.com/JakeFAU/bbdc-slot-bot/internal/notify/telegram"
	"github.com/JakeFAU/bbdc-slot-bot/internal/policy/ratelimit"
	"github.com/JakeFAU/bbdc-slot-bot/internal/progress"
	progresssinks "github.com/JakeFAU/bbdc-slot-bot/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/bbdc-slot-bot/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/bbdc-slot-bot/internal/publisher/pubsub"
	"github.com/JakeFAU/bbdc-slot-bot/internal/scheduler"
	gcsstorage "github.com/JakeFAU/bbdc-slot-bot/internal/storage/gcs"
	localstorage "github.com/JakeFAU/bbdc-slot-bot/internal/storage/local"
	memorystorage "github.com/JakeFAU/bbdc-slot-bot/internal/storage/memory"
	pgstore "github.com/JakeFAU/bbdc-slot-bot/internal/storage/postgres"
	"github.com/JakeFAU/bbdc-slot-bot/internal/telemetry"
	"github.com/JakeFAU/bbdc-slot-bot/internal/worker"
)

const (
	shutdownTimeout     = 10 * time.Second
	memoryPublishLimit  = 1000
	memorySnapshotLimit = 200
	readHeaderTimeout   = 5 * time.Second
	defaultSnapshotsDir = "snapshots"
)

// Options tweak how the graph is assembled.
type Options struct {
	// DryRun records notifications in memory instead of delivering them.
	DryRun bool
	// Version is reported as the OTel service version.
	Version string
	// Registerer receives progress collectors; nil uses the default registry.
	Registerer prometheus.Registerer
}

type closablePublisher interface {
	booking.Publisher
	Close() error
}

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	users     []*booking.User
	worker    *worker.Worker
	scheduler *scheduler.Scheduler
	apiServer *api.Server

	progressHub *progress.Hub
	history     booking.HistoryStore
	publisher   closablePublisher
	gcs         *storage.Client
	recorder    *notifymemory.Recorder
	telemetry   *telemetry.Providers

	closeOnce sync.Once
	closeErr  error
}

// Build creates the application's dependencies. Every external resource
// acquired before an error is released again.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if cerr := app.Close(closeCtx); cerr != nil {
				logger.Warn("cleanup after failed build", zap.Error(cerr))
			}
			app = nil
		}
	}()

	logger.Info("building application", zap.Any("config", cfg.Redacted()))
	metrics.Init()

	if cfg.Tracing.Enabled {
		app.telemetry, err = telemetry.Init(ctx, telemetry.Config{
			ServiceName: cfg.Tracing.ServiceName,
			Version:     opts.Version,
			ProjectID:   cfg.Tracing.ProjectID,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return app, fmt.Errorf("telemetry init failed: %w", err)
		}
	}

	app.users, err = cfg.Users()
	if err != nil {
		return app, fmt.Errorf("accounts: %w", err)
	}

	blobStore, err := app.setupStorage(ctx)
	if err != nil {
		return app, err
	}
	if err = app.setupHistory(ctx); err != nil {
		return app, err
	}
	if err = app.setupPublisher(ctx); err != nil {
		return app, err
	}
	notifier, err := app.setupNotifier(opts.DryRun)
	if err != nil {
		return app, err
	}
	emitter, err := app.setupProgress(opts.Registerer)
	if err != nil {
		return app, err
	}

	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.API.RateLimitRPS, Burst: cfg.API.RateLimitBurst})
	prefix := cfg.Storage.Prefix
	if prefix == "" {
		prefix = defaultSnapshotsDir
	}
	archiver := bbdc.NewArchiver(blobStore, sha256.New(), prefix, logger)
	client := bbdc.New(bbdc.Options{
		BaseURL:            cfg.API.BaseURL,
		Timeout:            cfg.APITimeout(),
		InsecureSkipVerify: cfg.API.InsecureSkipVerify,
		UserAgent:          cfg.API.UserAgent,
		MaxRetries:         cfg.API.MaxRetries,
		BackoffInitial:     time.Duration(cfg.API.BackoffInitialMs) * time.Millisecond,
		BackoffMax:         time.Duration(cfg.API.BackoffMaxMs) * time.Millisecond,
	}, limiter, archiver, logger)

	clock := system.New()
	app.worker = worker.New(
		app.users,
		client,
		notifier,
		app.history,
		app.publisher,
		clock,
		uuid.New(),
		emitter,
		worker.Config{CourseType: cfg.CourseType, QueryMonths: cfg.QueryMonths},
		logger,
	)

	pool, err := scheduler.NewAccountPool(app.users)
	if err != nil {
		return app, fmt.Errorf("scheduler: %w", err)
	}
	app.scheduler = scheduler.New(app.worker, pool, cfg.PollInterval(), clock, logger)

	if cfg.Server.Enabled {
		app.apiServer = api.NewServer(app.history, app.worker, app.scheduler, logger)
	}
	logger.Info("application built",
		zap.Int("accounts", len(app.users)),
		zap.Strings("query_months", cfg.QueryMonths),
		zap.Duration("interval", cfg.PollInterval()),
		zap.Bool("dry_run", opts.DryRun),
	)
	return app, nil
}

// Run starts the scheduler (and the status server when enabled) and blocks
// until ctx is canceled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})

	if a.apiServer != nil {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           a.apiServer.Handler(),
			ReadHeaderTimeout: readHeaderTimeout,
		}
		g.Go(func() error {
			a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http server shutdown: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	a.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(err, a.Close(shutdownCtx))
}

// RunOnce performs a single tick with the next account.
func (a *App) RunOnce(ctx context.Context) (worker.Result, error) {
	res, err := a.scheduler.RunOnce(ctx)
	if err != nil {
		return res, fmt.Errorf("tick: %w", err)
	}
	return res, nil
}

// Scan lists released slots using the named account, or the first account
// when username is empty. Nothing is booked.
func (a *App) Scan(ctx context.Context, username string) (booking.Slots, error) {
	account, err := a.account(username)
	if err != nil {
		return nil, err
	}
	slots, err := a.worker.Scan(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return slots, nil
}

func (a *App) account(username string) (*booking.User, error) {
	if len(a.users) == 0 {
		return nil, scheduler.ErrNoAccounts
	}
	if username == "" {
		return a.users[0], nil
	}
	for _, u := range a.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, fmt.Errorf("account %q is not configured", username)
}

// Recorded returns notifications captured in dry-run mode.
func (a *App) Recorded() []notifymemory.Message {
	if a.recorder == nil {
		return nil
	}
	return a.recorder.Messages()
}

// Users returns the configured accounts in config order.
func (a *App) Users() []*booking.User {
	return append([]*booking.User(nil), a.users...)
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Close releases every resource. It is safe to call on a partially built App
// and more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closeErr = a.close(ctx)
	})
	return a.closeErr
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("progress hub close: %w", err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher close: %w", err))
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history store close: %w", err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gcs client close: %w", err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) setupStorage(ctx context.Context) (booking.BlobStore, error) {
	cfg := a.cfg.Storage
	switch cfg.Backend {
	case "gcs":
		a.logger.Info("using GCS snapshot backend", zap.String("bucket", cfg.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcs = client
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:   cfg.Bucket,
			Metadata: map[string]string{"course_type": a.cfg.CourseType},
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return store, nil
	case "local":
		a.logger.Info("using local snapshot backend", zap.String("path", cfg.Local.BaseDir))
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return store, nil
	default:
		a.logger.Info("using in-memory snapshot backend", zap.Int("retained", memorySnapshotLimit))
		return memorystorage.NewBlobStoreWithLimit(memorySnapshotLimit), nil
	}
}

func (a *App) setupHistory(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, booking history kept in memory")
		a.history = memorystorage.NewHistoryStore()
		return nil
	}
	store, err := pgstore.NewHistoryStore(ctx, pgstore.Config{
		DSN:   a.cfg.Database.DSN,
		Table: a.cfg.Database.Table,
	})
	if err != nil {
		return fmt.Errorf("history store init failed: %w", err)
	}
	a.logger.Info("postgres history store initialized", zap.String("table", a.cfg.Database.Table))
	a.history = store
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.NewWithLimit(memoryPublishLimit)
		return nil
	}
	pub, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	a.publisher = pub
	return nil
}

func (a *App) setupNotifier(dryRun bool) (booking.Notifier, error) {
	switch {
	case dryRun:
		a.logger.Info("dry run: notifications are recorded, not sent")
		a.recorder = notifymemory.NewRecorder()
		return a.recorder, nil
	case a.cfg.Telegram.Enabled:
		n, err := telegram.New(telegram.Config{
			Token:   a.cfg.Telegram.Token,
			ChatID:  a.cfg.Telegram.ChatID,
			Timeout: a.cfg.APITimeout(),
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("telegram init failed: %w", err)
		}
		return n, nil
	default:
		a.logger.Warn("telegram disabled, notifications are dropped")
		return notify.NewDiscard(a.logger), nil
	}
}

func (a *App) setupProgress(reg prometheus.Registerer) (progress.Emitter, error) {
	cfg := a.cfg.Progress
	if !cfg.Enabled {
		a.logger.Info("progress tracking disabled")
		return nil, nil
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{promSink}
	if cfg.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	hubCfg := progress.Config{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.BatchMaxEvents,
		MaxBatchWait:   time.Duration(cfg.BatchMaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(cfg.SinkTimeoutMs) * time.Millisecond,
		Logger:         a.logger,
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return a.progressHub, nil
}
