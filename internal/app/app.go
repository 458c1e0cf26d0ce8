// Package app wires configuration into repositories, adapters and services.
package app

import (
	"alcyxob/plan-delivery/internal/api"
	"alcyxob/plan-delivery/internal/config"
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/kv"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/messaging"
	"alcyxob/plan-delivery/internal/render"
	"alcyxob/plan-delivery/internal/repository/mongo"
	"alcyxob/plan-delivery/internal/service"
	"alcyxob/plan-delivery/internal/storage"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

// Services groups every domain service.
type Services struct {
	Deliveries  service.DeliveryService
	Assignments service.AssignmentService
	Approvals   service.ApprovalService
	Catalog     service.CatalogService
	Clients     service.ClientService
	Plans       service.PlanService
	Portal      service.PortalService
	Tenants     service.TenantService
}

type App struct {
	Config   config.Config
	Log      *logger.Logger
	DB       *mongodriver.Database
	KV       kv.Store
	Files    storage.FileStorage
	Services Services

	closers []func(context.Context) error
}

// New connects to MongoDB (and Redis/S3 when configured) and builds the
// service graph.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return mongo.DisconnectDB(dbClient) })
	a.DB = dbClient.Database(cfg.Database.Name)
	log.Info("Database connection established", "database", cfg.Database.Name)

	if a.KV, err = newKV(ctx, cfg, log); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if closer, ok := a.KV.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func(context.Context) error { return closer.Close() })
	}

	files, err := newStorage(ctx, cfg, log)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Files = files

	// --- Repositories ---
	assignmentRepo := mongo.NewMongoAssignmentRepository(a.DB)
	planRepo := mongo.NewMongoTrainingPlanRepository(a.DB)
	clientRepo := mongo.NewMongoClientRepository(a.DB)
	tenantRepo := mongo.NewMongoTenantRepository(a.DB)
	artifactRepo := mongo.NewMongoArtifactRepository(a.DB)
	portalLinkRepo := mongo.NewMongoPortalLinkRepository(a.DB)
	checkInRepo := mongo.NewMongoCheckInRepository(a.DB)
	notificationRepo := mongo.NewMongoNotificationRepository(a.DB)
	approvalRepo := mongo.NewMongoApprovalRepository(a.DB)
	catalogRepo := mongo.NewMongoCatalogRepository(a.DB)

	// --- Adapters ---
	renderer := render.NewPlanRenderer(files, artifactRepo, a.KV, log, render.Options{
		URLExpiry: cfg.Render.URLExpiry,
		CacheTTL:  cfg.Render.CacheTTL,
	})
	sender := NewSender(cfg, log)

	// --- Services ---
	approvals := service.NewApprovalService(approvalRepo, catalogRepo, log)
	a.Services = Services{
		Deliveries: service.NewDeliveryService(service.DeliveryDeps{
			Assignments:   assignmentRepo,
			Plans:         planRepo,
			Clients:       clientRepo,
			Tenants:       tenantRepo,
			PortalLinks:   portalLinkRepo,
			CheckIns:      checkInRepo,
			Notifications: notificationRepo,
			Renderer:      renderer,
			Sender:        sender,
		}, service.DeliveryOptions{
			LeaseTTL:             cfg.Delivery.LeaseTTL,
			CheckInInterval:      cfg.Delivery.CheckInInterval,
			DefaultDurationWeeks: cfg.Delivery.DefaultDurationWeeks,
			BatchConcurrency:     cfg.Delivery.BatchConcurrency,
			PortalBaseURL:        cfg.Portal.BaseURL,
		}, log),
		Assignments: service.NewAssignmentService(assignmentRepo, planRepo, clientRepo, checkInRepo, log),
		Approvals:   approvals,
		Catalog:     service.NewCatalogService(catalogRepo, approvals, log),
		Clients:     service.NewClientService(clientRepo, notificationRepo, log),
		Plans:       service.NewPlanService(planRepo, log),
		Portal:      service.NewPortalService(portalLinkRepo, assignmentRepo, planRepo, clientRepo, checkInRepo, renderer, log),
		Tenants:     service.NewTenantService(tenantRepo, log),
	}
	return a, nil
}

// NewSender registers a provider for every configured channel.
func NewSender(cfg config.Config, log *logger.Logger) *messaging.Router {
	router := messaging.NewRouter()
	if wa := messaging.NewWhatsAppClient(cfg.WhatsApp, log); wa != nil {
		router.Register(domain.ChannelWhatsApp, wa)
	}
	if tw := messaging.NewTwilioClient(cfg.Twilio, log); tw != nil {
		router.Register(domain.ChannelSMS, tw)
	}
	if sg := messaging.NewSendGridClient(cfg.SendGrid, log); sg != nil {
		router.Register(domain.ChannelEmail, sg)
	}
	channels := router.Channels()
	if len(channels) == 0 {
		log.Warn("No messaging provider configured; every delivery will fail at the send step")
	} else {
		log.Info("Messaging providers registered", "channels", channels)
	}
	return router
}

func newKV(ctx context.Context, cfg config.Config, log *logger.Logger) (kv.Store, error) {
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		log.Info("Using in-process key/value store")
		return kv.NewMemoryStore(), nil
	}
	store, err := kv.NewRedisStore(ctx, cfg.Redis, "plan-delivery:")
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("Redis connection established", "addr", cfg.Redis.Addr)
	return store, nil
}

func newStorage(ctx context.Context, cfg config.Config, log *logger.Logger) (storage.FileStorage, error) {
	if cfg.S3.AccessKeyID == "" {
		log.Warn("S3 credentials not set; rendered PDFs are kept in memory and served under /files")
		return storage.NewMemoryStorage(strings.TrimRight(cfg.Server.PublicURL, "/") + "/files"), nil
	}
	files, err := storage.NewS3Storage(ctx, cfg.S3, log)
	if err != nil {
		return nil, fmt.Errorf("initialize s3 storage: %w", err)
	}
	return files, nil
}

// EnsureIndexes creates every collection's indexes.
func (a *App) EnsureIndexes(ctx context.Context) error {
	return mongo.EnsureIndexes(ctx, a.DB, a.Log)
}

// Router builds the gin engine with every route mounted.
func (a *App) Router() *gin.Engine {
	gin.SetMode(a.Config.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	deps := api.RouterDeps{
		JWTSecret:          a.Config.JWT.Secret,
		ServiceName:        a.Config.OTel.ServiceName,
		CORSOrigins:        a.Config.Server.CORSOrigins,
		IdempotencyTTL:     a.Config.Delivery.IdempotencyTTL,
		IdempotencyLockTTL: 2 * a.Config.Delivery.LeaseTTL,
		Idempotency:        a.KV,
		Log:                a.Log,
		Deliveries:         a.Services.Deliveries,
		Assignments:        a.Services.Assignments,
		Approvals:          a.Services.Approvals,
		Catalog:            a.Services.Catalog,
		Clients:            a.Services.Clients,
		Plans:              a.Services.Plans,
		Portal:             a.Services.Portal,
		Tenants:            a.Services.Tenants,
	}
	if mem, ok := a.Files.(*storage.MemoryStorage); ok {
		deps.LocalFiles = mem
	}
	api.SetupRoutes(router, deps)
	return router
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
