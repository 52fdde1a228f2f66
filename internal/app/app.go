package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/common"
	"github.com/ternarybob/bloom/internal/handlers"
	"github.com/ternarybob/bloom/internal/interfaces"
	"github.com/ternarybob/bloom/internal/services/events"
	"github.com/ternarybob/bloom/internal/services/fitbit"
	"github.com/ternarybob/bloom/internal/services/kv"
	"github.com/ternarybob/bloom/internal/services/questionnaire"
	"github.com/ternarybob/bloom/internal/services/report"
	"github.com/ternarybob/bloom/internal/services/scheduler"
	"github.com/ternarybob/bloom/internal/storage"
)

// clientSecretKey is the variables entry holding the Fitbit client secret
const clientSecretKey = "fitbit-client-secret"

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService interfaces.SchedulerService

	// Variables service (key/value storage)
	KVService *kv.Service

	// Domain services
	Catalog              *questionnaire.Catalog
	QuestionnaireService *questionnaire.Store
	ReportService        *report.Service
	FitbitLinker         *fitbit.Linker
	FitbitSyncer         *fitbit.Syncer

	// HTTP handlers
	APIHandler           *handlers.APIHandler
	KVHandler            *handlers.KVHandler
	WSHandler            *handlers.WebSocketHandler
	FitbitHandler        *handlers.FitbitHandler
	QuestionnaireHandler *handlers.QuestionnaireHandler
	SchedulerHandler     *handlers.SchedulerHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to subscribe event logger")
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Bool("fitbit_connected", app.FitbitLinker.IsConnected()).
		Str("questionnaire_status", string(app.QuestionnaireService.Snapshot().Status)).
		Msg("Application initialized")

	return app, nil
}

func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// Variables must be loaded before {key} replacement so config can reference them
	ctx := context.Background()
	if err := a.StorageManager.LoadVariablesFromFiles(ctx, a.Config.Variables.Dir); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load variables from files")
	}

	common.ApplyKVReplacements(ctx, a.Config, a.StorageManager.KeyValueStorage(), a.Logger)
	return nil
}

// initServices initializes all business services in dependency order.
func (a *App) initServices() error {
	ctx := context.Background()
	kvStorage := a.StorageManager.KeyValueStorage()

	a.KVService = kv.NewService(kvStorage, a.Logger)

	// Questionnaire
	catalog, err := a.loadCatalog()
	if err != nil {
		return err
	}
	a.Catalog = catalog

	a.QuestionnaireService = questionnaire.NewStore(catalog, kvStorage, a.EventService, a.Config.Questionnaire.FallbackTitle, a.Logger)
	if err := a.QuestionnaireService.Load(ctx); err != nil {
		// A corrupt document must not block startup; the store starts Idle
		a.Logger.Error().Err(err).Msg("Failed to load questionnaire state")
	}

	a.ReportService = report.NewService(report.NewPDFRenderer(a.Logger), a.Logger)

	// Fitbit
	clientSecret, err := common.ResolveSecret(ctx, kvStorage, clientSecretKey, "BLOOM_FITBIT_CLIENT_SECRET", a.Config.Fitbit.ClientSecret)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Fitbit client secret not configured - linking will fail until it is set")
	}

	a.FitbitLinker = fitbit.NewLinker(
		a.Config.Fitbit,
		clientSecret,
		kvStorage,
		a.newAuthSession(),
		a.Logger,
		fitbit.WithEventService(a.EventService),
	)
	a.FitbitLinker.CheckConnection(ctx)

	a.FitbitSyncer = fitbit.NewSyncer(a.FitbitLinker, kvStorage, a.EventService, a.Logger)

	// Scheduler
	a.SchedulerService = scheduler.NewService(kvStorage, a.Logger)
	if a.Config.Fitbit.SyncEnabled {
		if err := a.SchedulerService.RegisterJob(
			fitbit.SyncJobName,
			a.Config.Fitbit.SyncSchedule,
			"Copy yesterday's Fitbit summaries into the local store",
			a.FitbitSyncer.Job(),
		); err != nil {
			return fmt.Errorf("failed to register Fitbit sync job: %w", err)
		}
	}

	return nil
}

func (a *App) loadCatalog() (*questionnaire.Catalog, error) {
	if path := a.Config.Questionnaire.CatalogFile; path != "" {
		catalog, err := questionnaire.LoadCatalog(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load questionnaire catalog %s: %w", path, err)
		}
		a.Logger.Info().Str("path", path).Int("questions", catalog.TotalQuestions()).Msg("Loaded questionnaire catalog")
		return catalog, nil
	}

	catalog, err := questionnaire.DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load built-in questionnaire catalog: %w", err)
	}
	return catalog, nil
}

func (a *App) newAuthSession() interfaces.AuthSession {
	switch a.Config.Fitbit.Browser {
	case "chrome":
		return fitbit.NewChromeSession("", a.Logger)
	case "loopback", "":
		return fitbit.NewLoopbackSession(a.Logger)
	default:
		a.Logger.Warn().Str("browser", a.Config.Fitbit.Browser).Msg("Unknown fitbit.browser, using loopback")
		return fitbit.NewLoopbackSession(a.Logger)
	}
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.KVHandler = handlers.NewKVHandler(a.KVService, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)
	a.FitbitHandler = handlers.NewFitbitHandler(a.FitbitLinker, a.FitbitSyncer, a.Logger)
	a.QuestionnaireHandler = handlers.NewQuestionnaireHandler(a.QuestionnaireService, a.ReportService, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService, a.Logger)
}

// StartScheduler begins dispatching scheduled jobs
func (a *App) StartScheduler() error {
	return a.SchedulerService.Start()
}

// Close releases all resources in reverse dependency order
func (a *App) Close() error {
	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
