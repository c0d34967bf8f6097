package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cozy-creator/summarize-server/internal/artifact"
	"github.com/cozy-creator/summarize-server/internal/config"
	"github.com/cozy-creator/summarize-server/internal/db"
	"github.com/cozy-creator/summarize-server/internal/db/drivers"
	"github.com/cozy-creator/summarize-server/internal/db/migrations"
	"github.com/cozy-creator/summarize-server/internal/db/repository"
	"github.com/cozy-creator/summarize-server/internal/generation"
	"github.com/cozy-creator/summarize-server/internal/health"
	"github.com/cozy-creator/summarize-server/internal/modelstore"
	"github.com/cozy-creator/summarize-server/internal/runtime"
	"github.com/cozy-creator/summarize-server/internal/summarizer"
	"github.com/cozy-creator/summarize-server/internal/utils/maskutil"
	"github.com/cozy-creator/summarize-server/pkg/logger"

	"go.uber.org/zap"
)

type App struct {
	config     *config.Config
	ctx        context.Context
	cancelFunc context.CancelFunc

	backend  runtime.Backend
	resolver modelstore.Resolver
	driver   drivers.Driver

	Logger     *zap.Logger
	Store      *modelstore.Store
	Gate       *health.Gate
	Controller *generation.Controller
	Summarizer *summarizer.Service

	InferenceRepository repository.IInferenceRepository
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = logger
		return nil
	}
}

// WithBackend replaces the runtime client, mostly for tests.
func WithBackend(backend runtime.Backend) OptionFunc {
	return func(app *App) error {
		app.backend = backend
		return nil
	}
}

func WithResolver(resolver modelstore.Resolver) OptionFunc {
	return func(app *App) error {
		app.resolver = resolver
		return nil
	}
}

func WithDB(driver drivers.Driver) OptionFunc {
	return func(app *App) error {
		app.driver = driver
		return nil
	}
}

// WithDBInitialization connects to the configured database and applies
// migrations. Without a DSN the inference log stays disabled.
func WithDBInitialization() OptionFunc {
	return func(app *App) error {
		if app.config.DB == nil || app.config.DB.DSN == "" {
			return nil
		}

		app.Logger.Info("Opening inference log",
			zap.String("driver", app.config.DB.Driver),
			zap.String("dsn", maskutil.RedactDSN(app.config.DB.DSN)),
		)
		driver, err := db.NewConnection(app.ctx, app.config.DB)
		if err != nil {
			return err
		}
		if _, err := migrations.Migrate(app.ctx, driver.GetDB()); err != nil {
			driver.Close()
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		app.driver = driver
		return nil
	}
}

func NewApp(cfg *config.Config, options ...OptionFunc) (*App, error) {
	logger, err := logger.InitLogger(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		ctx:        ctx,
		config:     cfg,
		cancelFunc: cancel,
		Logger:     logger,
	}

	for _, opt := range options {
		if err := opt(app); err != nil {
			// Continue even if some options fail
			app.Logger.Error("failed to apply option", zap.Error(err))
		}
	}

	if app.backend == nil {
		app.backend = runtime.NewClient(cfg.Runtime, app.Logger.Named("runtime"))
	}
	if app.resolver == nil {
		app.resolver = NewResolver(ctx, cfg, app.Logger.Named("artifact"))
	}

	device := modelstore.DeviceAuto
	if cfg.Model != nil && cfg.Model.Device != "" {
		device = cfg.Model.Device
	}
	app.Store = modelstore.New(app.resolver, app.backend,
		modelstore.WithDevice(device),
		modelstore.WithLogger(app.Logger.Named("modelstore")),
	)
	app.Gate = health.NewGate(app.Store)

	genConfig := generation.DefaultConfig()
	if cfg.Generation != nil && cfg.Generation.Timeout > 0 {
		genConfig.Timeout = time.Duration(cfg.Generation.Timeout) * time.Second
	}
	app.Controller = generation.NewController(app.backend, genConfig,
		generation.WithLogger(app.Logger.Named("generation")),
	)

	serviceOpts := []summarizer.Option{summarizer.WithLogger(app.Logger.Named("summarizer"))}
	if app.driver != nil {
		app.InferenceRepository = repository.NewInferenceRepository(app.driver.GetDB())
		serviceOpts = append(serviceOpts, summarizer.WithInferenceLog(app.InferenceRepository))
	}
	app.Summarizer = summarizer.NewService(app.Gate, app.Store, app.Controller, serviceOpts...)

	return app, nil
}

// NewResolver builds the artifact resolver for the configured sources.
func NewResolver(ctx context.Context, cfg *config.Config, logger *zap.Logger) *artifact.Resolver {
	opts := []artifact.ResolverOption{
		artifact.WithLogger(logger),
		artifact.WithHub(artifact.NewHubDownloader()),
	}

	if cfg.HFToken != "" {
		logger.Debug("Using Hugging Face token", zap.String("token", maskutil.MaskString(cfg.HFToken, 3, 4)))
	}

	if cfg.S3 != nil {
		store, err := artifact.NewS3ObjectStore(ctx, cfg.S3)
		if err != nil {
			logger.Warn("S3 model sources disabled", zap.Error(err))
		} else {
			opts = append(opts, artifact.WithObjectStore(store))
		}
	}

	return artifact.NewResolver(cfg.ModelsDir, opts...)
}

// LoadModel loads the configured model. Failures are logged and leave the
// service running but not ready.
func (app *App) LoadModel(ctx context.Context) error {
	locator := app.config.Model.Locator()
	app.Logger.Info("Loading model", zap.String("locator", locator))

	_, err := app.Store.Load(ctx, locator)
	return err
}

func (app *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.Store.Unload(ctx); err != nil {
		app.Logger.Warn("Failed to unload model", zap.Error(err))
	}

	app.cancelFunc()

	if err := app.backend.Close(); err != nil {
		app.Logger.Warn("Failed to close runtime client", zap.Error(err))
	}
	if app.driver != nil {
		if err := app.driver.Close(); err != nil {
			app.Logger.Warn("Failed to close database", zap.Error(err))
		}
	}

	app.Logger.Sync()
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) Backend() runtime.Backend {
	return app.backend
}

func (app *App) Resolver() modelstore.Resolver {
	return app.resolver
}
