package main

import (
	"context"
	"log"

	"github.com/Abraxas-365/craftable/eventx"
	"github.com/Abraxas-365/craftable/eventx/providers/eventxmemory"

	"github.com/agentcord/agentflow/channels"
	"github.com/agentcord/agentflow/channels/channelapi"
	"github.com/agentcord/agentflow/channels/channelsinfra"

	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/engine/delayscheduler"
	"github.com/agentcord/agentflow/engine/engineinfra"
	"github.com/agentcord/agentflow/engine/enginesrv"
	"github.com/agentcord/agentflow/engine/flowwalker"
	"github.com/agentcord/agentflow/engine/nodeexec"
	"github.com/agentcord/agentflow/engine/recorder"
	"github.com/agentcord/agentflow/engine/replyvalidator"
	"github.com/agentcord/agentflow/engine/timetrigger"
	"github.com/agentcord/agentflow/engine/triggermatch"
	"github.com/agentcord/agentflow/engine/webhookapi"

	"github.com/agentcord/agentflow/flow"
	"github.com/agentcord/agentflow/flow/flowapi"
	"github.com/agentcord/agentflow/flow/flowinfra"
	"github.com/agentcord/agentflow/flow/flowsrv"

	"github.com/agentcord/agentflow/iam/auth"

	"github.com/agentcord/agentflow/pkg/config"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
)

// Container contains all application dependencies
type Container struct {
	// =================================================================
	// CONFIGURATION & INFRASTRUCTURE
	// =================================================================
	Config      *config.Config
	DB          *sqlx.DB
	RedisClient *redis.Client

	// =================================================================
	// EVENT BUS ⚡
	// =================================================================
	EventBus eventx.EventBus

	// =================================================================
	// AUTH
	// =================================================================
	TokenService   auth.TokenService
	AuthMiddleware *auth.AuthMiddleware

	// =================================================================
	// FLOW - REPOSITORIES
	// =================================================================
	FlowRepo         flow.FlowRepository
	NodeDetailRepo   flow.NodeDetailRepository
	FlowSettingsRepo flow.FlowSettingsRepository

	// =================================================================
	// FLOW - SERVICES
	// =================================================================
	Catalog     *flow.Catalog
	GraphLoader flow.GraphLoader
	FlowService *flowsrv.Service

	// =================================================================
	// ENGINE - REPOSITORIES
	// =================================================================
	UserStateRepo       engine.UserStateRepository
	DelayRepo           engine.DelayRepository
	WebhookAuditRepo    engine.WebhookMessageRepository
	TransactionRepo     engine.TransactionRepository
	FlowUserContextRepo engine.FlowUserContextRepository
	ScheduleRepo        engine.FlowScheduleRepository
	APIKeyRepo          engine.APIKeyRepository

	// =================================================================
	// ENGINE - SUPPORT
	// =================================================================
	IdentityLock   engine.IdentityLock
	MessageArchive channels.MessageArchiver
	MessageAdapter *channels.MessageAdapter
	NodeClient     *channelsinfra.HTTPNodeClient
	LeadClient     engine.LeadResolver

	// =================================================================
	// ENGINE - CORE
	// =================================================================
	Recorder      *recorder.Recorder
	NodeProcessor *nodeexec.Processor
	Walker        *flowwalker.Walker
	Validator     *replyvalidator.Validator
	Matcher       *triggermatch.Matcher
	Orchestrator  *enginesrv.Orchestrator
	IntakeService *enginesrv.IntakeService
	APIKeyService *enginesrv.APIKeyService

	// =================================================================
	// WORKERS ⏰
	// =================================================================
	DelayWorker   *delayscheduler.DelayWorker
	FlowScheduler *timetrigger.FlowScheduler

	// =================================================================
	// API HANDLERS
	// =================================================================
	WebhookHandler   *webhookapi.Handler
	FlowHandler      *flowapi.Handler
	NodeProxyHandler *channelapi.NodeProxyHandler
}

// NewContainer creates a new dependency container
func NewContainer(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client) *Container {
	c := &Container{
		Config:      cfg,
		DB:          db,
		RedisClient: redisClient,
	}

	// Initialize dependencies in the correct order
	log.Println("📦 Initializing dependency container...")

	c.initEventBus()
	c.initAuthServices()
	c.initFlowComponents()   // 🧩 Flow repos & catalog BEFORE engine
	c.initEngineComponents() // ⚙️ Engine AFTER flow (needs graph loader & catalog)
	c.initWorkers()          // ⏰ Workers AFTER intake (they feed webhooks into it)
	c.initAPIHandlers()

	log.Println("✅ Dependency container initialized successfully")

	return c
}

// =================================================================
// EVENT BUS INITIALIZATION ⚡
// =================================================================

func (c *Container) initEventBus() {
	log.Println("  ⚡ Initializing event bus...")

	busConfig := eventx.BusConfig{
		ConnectionName:    "agentflow-event-bus",
		EnableLogging:     true,
		EnableMetrics:     true,
		EnablePersistence: false,
		AutoAck:           true,
		MaxRetries:        3,
	}

	c.EventBus = eventxmemory.New(busConfig)

	ctx := context.Background()
	if err := c.EventBus.Connect(ctx); err != nil {
		log.Fatalf("❌ Failed to connect event bus: %v", err)
	}

	log.Println("  ✅ Event bus initialized and connected")
}

// =================================================================
// AUTH INITIALIZATION
// =================================================================

func (c *Container) initAuthServices() {
	log.Println("  🔐 Initializing auth services...")

	c.TokenService = auth.NewJWTService(
		c.Config.Auth.JWT.SecretKey,
		c.Config.Auth.JWT.AccessTokenTTL,
		c.Config.Auth.JWT.Issuer,
	)

	c.AuthMiddleware = auth.NewAuthMiddleware(c.TokenService)
}

// =================================================================
// FLOW INITIALIZATION 🧩 (BEFORE ENGINE)
// =================================================================

func (c *Container) initFlowComponents() {
	log.Println("  🧩 Initializing flow components...")

	c.FlowRepo = flowinfra.NewPostgresFlowRepository(c.DB)
	c.NodeDetailRepo = flowinfra.NewPostgresNodeDetailRepository(c.DB)
	c.FlowSettingsRepo = flowinfra.NewPostgresFlowSettingsRepository(c.DB)
	log.Println("    ✅ Flow repositories initialized")

	// El catálogo canónico vive en memoria; la tabla node_details solo
	// respalda la API de detalles y se siembra al arrancar el servidor.
	c.Catalog = flow.NewCatalog(flow.CatalogSeed())
	log.Println("    ✅ Node catalog initialized")

	c.GraphLoader = flowsrv.NewLoader(c.FlowRepo)
	log.Println("    ✅ Graph loader initialized")

	log.Println("  ✅ Flow components initialized")
}

// =================================================================
// ENGINE INITIALIZATION ⚙️ (AFTER FLOW)
// =================================================================

func (c *Container) initEngineComponents() {
	log.Println("  ⚙️  Initializing engine components...")

	// Initialize repositories
	c.UserStateRepo = engineinfra.NewPostgresUserStateRepository(c.DB)
	c.DelayRepo = engineinfra.NewPostgresDelayRepository(c.DB)
	c.WebhookAuditRepo = engineinfra.NewPostgresWebhookRepository(c.DB)
	c.TransactionRepo = engineinfra.NewPostgresTransactionRepository(c.DB)
	c.FlowUserContextRepo = engineinfra.NewPostgresFlowUserContextRepository(c.DB)
	c.ScheduleRepo = engineinfra.NewPostgresScheduleRepository(c.DB)
	c.APIKeyRepo = engineinfra.NewPostgresAPIKeyRepository(c.DB)
	log.Println("    ✅ Engine repositories initialized")

	// El schedule repo lo comparte el servicio de gestión; recién ahora se
	// puede armar el FlowService completo.
	c.FlowService = flowsrv.NewService(
		c.FlowRepo,
		c.NodeDetailRepo,
		c.FlowSettingsRepo,
		c.ScheduleRepo,
		c.Config.Engine.AutoChainLimit,
	)
	log.Println("    ✅ Flow service initialized")

	// Identity lock serializa los webhooks concurrentes del mismo usuario
	c.IdentityLock = engineinfra.NewRedisIdentityLock(
		c.RedisClient,
		c.Config.Engine.IdentityLockTTL,
		c.Config.Engine.IdentityLockWait,
	)
	log.Println("    ✅ Identity lock initialized")

	// Archivo de payloads crudos (S3 u off)
	if c.Config.Storage.Enabled {
		c.MessageArchive = channelsinfra.NewS3MessageArchive(
			c.Config.Storage.Region,
			c.Config.Storage.Bucket,
			c.Config.Storage.AccessKeyID,
			c.Config.Storage.SecretAccessKey,
		)
		log.Println("    ✅ S3 message archive initialized")
	} else {
		c.MessageArchive = channelsinfra.NewNoopMessageArchive()
		log.Println("    ⚠️  Payload archiving disabled, using noop archive")
	}

	c.MessageAdapter = channels.NewMessageAdapter()
	log.Println("    ✅ Message adapter initialized")

	c.NodeClient = channelsinfra.NewHTTPNodeClient(
		c.Config.Channels.NodeProcessURLs,
		c.Config.Channels.ProcessPath,
		c.Config.Engine.NodeProcessTimeout,
	)
	log.Printf("    ✅ Node client initialized (channels: %v)", c.NodeClient.SupportedChannels())

	c.LeadClient = engineinfra.NewHTTPLeadClient(c.Config.Lead.BaseURL)
	if c.Config.Lead.Enabled {
		log.Println("    ✅ Lead client initialized")
	} else {
		log.Println("    ⚠️  Lead management disabled, users are created without leads")
	}

	// Core: recorder, node processor, walker, validator, matcher
	c.Recorder = recorder.NewRecorder(c.TransactionRepo)
	c.NodeProcessor = nodeexec.NewProcessor(
		nodeexec.NewConditionExecutor(c.FlowUserContextRepo),
		nodeexec.NewDelayExecutor(),
	)
	c.Walker = flowwalker.NewWalker(c.Catalog, c.NodeProcessor, c.NodeClient, c.Recorder)
	c.Validator = replyvalidator.NewValidator(c.FlowUserContextRepo)
	c.Matcher = triggermatch.NewMatcher(c.FlowRepo)
	log.Println("    ✅ Walker, validator and trigger matcher initialized")

	c.Orchestrator = enginesrv.NewOrchestrator(
		c.UserStateRepo,
		c.DelayRepo,
		c.GraphLoader,
		c.Catalog,
		c.Walker,
		c.Validator,
		c.Matcher,
		c.LeadClient,
	)
	log.Println("    ✅ Orchestrator initialized")

	c.IntakeService = enginesrv.NewIntakeService(
		c.WebhookAuditRepo,
		c.MessageArchive,
		c.MessageAdapter,
		c.IdentityLock,
		c.Orchestrator,
	)
	log.Println("    ✅ Intake service initialized")

	c.APIKeyService = enginesrv.NewAPIKeyService(c.APIKeyRepo)
	log.Println("    ✅ API key service initialized")

	log.Println("  ✅ Engine components initialized")
}

// =================================================================
// WORKERS INITIALIZATION ⏰ (AFTER INTAKE)
// =================================================================

func (c *Container) initWorkers() {
	log.Println("  ⏰ Initializing background workers...")

	ctx := context.Background()

	c.DelayWorker = delayscheduler.NewDelayWorker(c.DelayRepo, c.UserStateRepo, c.IntakeService)
	c.DelayWorker.StartWorker(ctx)
	log.Println("    ✅ Delay worker started")

	c.FlowScheduler = timetrigger.NewFlowScheduler(c.ScheduleRepo, c.IntakeService)
	go c.FlowScheduler.Start(ctx)
	log.Println("    ✅ Flow scheduler started")

	log.Println("  ✅ Background workers initialized")
}

// =================================================================
// API HANDLERS INITIALIZATION
// =================================================================

func (c *Container) initAPIHandlers() {
	log.Println("  🌐 Initializing API handlers...")

	c.WebhookHandler = webhookapi.NewHandler(
		c.IntakeService,
		c.APIKeyService,
		c.Config.Engine.RequireAPIKey,
	)
	c.FlowHandler = flowapi.NewHandler(c.FlowService)
	c.NodeProxyHandler = channelapi.NewNodeProxyHandler(c.NodeClient, c.FlowSettingsRepo)

	log.Println("  ✅ API handlers initialized")
}

// =================================================================
// UTILITY METHODS
// =================================================================

func (c *Container) Cleanup() {
	log.Println("🧹 Cleaning up container resources...")

	if c.FlowScheduler != nil {
		log.Println("  ⏰ Stopping flow scheduler...")
		c.FlowScheduler.Stop()
	}

	if c.DelayWorker != nil {
		log.Println("  ⏰ Stopping delay worker...")
		c.DelayWorker.StopWorker()
	}

	if c.EventBus != nil {
		log.Println("  ⚡ Disconnecting event bus...")
		ctx := context.Background()
		if err := c.EventBus.Disconnect(ctx); err != nil {
			log.Printf("  ⚠️  Failed to disconnect event bus: %v", err)
		}
	}

	if c.DB != nil {
		log.Println("  🗄️  Closing database connections...")
		c.DB.Close()
	}

	if c.RedisClient != nil {
		log.Println("  🔴 Closing Redis connections...")
		c.RedisClient.Close()
	}

	log.Println("✅ Container cleanup complete")
}

func (c *Container) HealthCheck() map[string]bool {
	health := make(map[string]bool)

	if c.DB != nil {
		err := c.DB.Ping()
		health["database"] = err == nil
	} else {
		health["database"] = false
	}

	if c.RedisClient != nil {
		err := c.RedisClient.Ping(c.RedisClient.Context()).Err()
		health["redis"] = err == nil
	} else {
		health["redis"] = false
	}

	if c.EventBus != nil {
		health["event_bus"] = c.EventBus.IsConnected()
	} else {
		health["event_bus"] = false
	}

	health["flow_service"] = c.FlowService != nil
	health["orchestrator"] = c.Orchestrator != nil
	health["intake_service"] = c.IntakeService != nil
	health["node_client"] = c.NodeClient != nil
	health["delay_worker"] = c.DelayWorker != nil
	health["flow_scheduler"] = c.FlowScheduler != nil

	return health
}

func (c *Container) GetEventBusMetrics() eventx.BusMetrics {
	if metricsbus, ok := c.EventBus.(eventx.MetricsEventBus); ok {
		return metricsbus.GetMetrics()
	}
	return eventx.BusMetrics{}
}

func (c *Container) GetServiceNames() []string {
	return []string{
		"FlowService",
		"IntakeService",
		"Orchestrator",
		"Walker",
		"Validator",
		"Matcher",
		"APIKeyService",
		"DelayWorker",
		"FlowScheduler",
		"EventBus",
	}
}

func (c *Container) GetRepositoryNames() []string {
	return []string{
		"FlowRepo",
		"NodeDetailRepo",
		"FlowSettingsRepo",
		"UserStateRepo",
		"DelayRepo",
		"WebhookAuditRepo",
		"TransactionRepo",
		"FlowUserContextRepo",
		"ScheduleRepo",
		"APIKeyRepo",
	}
}
