// -----------------------------------------------------------------------
// App - Dependency container wiring config, storage, services, handlers
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/laboro/internal/agent"
	"github.com/ternarybob/laboro/internal/common"
	"github.com/ternarybob/laboro/internal/handlers"
	"github.com/ternarybob/laboro/internal/interfaces"
	"github.com/ternarybob/laboro/internal/services/applicator"
	"github.com/ternarybob/laboro/internal/services/delivery"
	"github.com/ternarybob/laboro/internal/services/events"
	"github.com/ternarybob/laboro/internal/services/llm"
	"github.com/ternarybob/laboro/internal/services/matcher"
	"github.com/ternarybob/laboro/internal/services/messages"
	"github.com/ternarybob/laboro/internal/services/scheduler"
	"github.com/ternarybob/laboro/internal/services/scraper"
	badgerstore "github.com/ternarybob/laboro/internal/storage/badger"
	"github.com/ternarybob/laboro/internal/workflow"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService
	LLMService     interfaces.LLMService

	// Workflow core
	Engine       *workflow.Engine
	Orchestrator *workflow.Orchestrator
	Scheduler    *scheduler.Service
	Agent        *agent.Agent

	// HTTP handlers
	JobHandler    *handlers.JobHandler
	StatusHandler *handlers.StatusHandler
	WSHandler     *handlers.WebSocketHandler
}

// New wires the full application from a validated config.
func New(cfg *common.Config) (*App, error) {
	logger := common.InitLogger(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	storageManager, err := badgerstore.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager

	a.EventService = events.NewService(logger)

	llmService, err := llm.NewLLMService(cfg, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	a.LLMService = llmService

	// Collaborators share one rate-limited platform client.
	platformClient := scraper.NewClient(cfg.Platform.BaseURL, logger,
		scraper.WithUserAgent(cfg.Platform.UserAgent),
		scraper.WithTimeout(common.Duration(cfg.Platform.RequestTimeout)),
		scraper.WithRequestInterval(common.Duration(cfg.Platform.RateLimit)),
	)

	scraperService := scraper.NewServiceWithClient(platformClient, cfg.Platform.JobsPath, logger)
	matcherService := matcher.NewService(llmService, &cfg.Platform, logger)
	applicatorService := applicator.NewService(platformClient, cfg.Scheduler.MaxDailyApps, logger)
	messageClient := messages.NewClient(platformClient, logger)
	responder := messages.NewResponder(llmService, logger)
	taskWorker := delivery.NewWorker(llmService, logger)
	deliveryClient := delivery.NewClient(platformClient, logger)

	a.Engine = workflow.NewEngine(workflow.OptionsFromConfig(cfg), storageManager.JobArchive(), a.EventService, logger)
	a.Orchestrator = workflow.NewOrchestrator(a.Engine, logger)
	a.Scheduler = scheduler.NewService(logger)

	a.Agent = agent.New(a.Engine, agent.Collaborators{
		Scraper:    scraperService,
		Matcher:    matcherService,
		Applicator: applicatorService,
		Messages:   messageClient,
		Responder:  responder,
		Worker:     taskWorker,
		Delivery:   deliveryClient,
	}, a.EventService, cfg, logger)

	if err := a.Agent.RegisterScheduledTasks(a.Scheduler); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register scheduled tasks: %w", err)
	}

	a.JobHandler = handlers.NewJobHandler(a.Engine, storageManager.JobArchive(), logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Orchestrator, a.Scheduler, logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, &cfg.WebSocket, logger)

	logger.Info().
		Str("environment", cfg.Environment).
		Str("llm_provider", string(cfg.LLM.Provider)).
		Msg("Application wired")

	return a, nil
}

// Start launches the supervisor loop and the scheduler.
func (a *App) Start() error {
	a.Orchestrator.Start(a.ctx)

	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	a.Logger.Info().Msg("Application started")
	return nil
}

// Close shuts down components in reverse dependency order.
func (a *App) Close() {
	a.cancelCtx()

	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}
	if a.Orchestrator != nil {
		a.Orchestrator.Stop()
	}
	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("LLM service close failed")
		}
	}
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Event service close failed")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}

	a.Logger.Info().Msg("Application stopped")
}
