package api

import (
	"alcyxob/plan-delivery/internal/domain" // Needed for RoleMiddleware
	"alcyxob/plan-delivery/internal/kv"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/service"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RouterDeps is everything the HTTP layer needs.
type RouterDeps struct {
	JWTSecret   string
	ServiceName string
	CORSOrigins []string
	Log         *logger.Logger

	Idempotency    kv.Store
	IdempotencyTTL time.Duration

	// IdempotencyLockTTL bounds how long a running request holds its key.
	IdempotencyLockTTL time.Duration

	// LocalFiles, when set, serves in-memory stored PDFs under /files.
	LocalFiles LocalFiles

	Deliveries  service.DeliveryService
	Assignments service.AssignmentService
	Approvals   service.ApprovalService
	Catalog     service.CatalogService
	Clients     service.ClientService
	Plans       service.PlanService
	Portal      service.PortalService
	Tenants     service.TenantService
}

func SetupRoutes(router *gin.Engine, deps RouterDeps) {
	deliveryHandler := NewDeliveryHandler(deps.Deliveries, deps.Log)
	assignmentHandler := NewAssignmentHandler(deps.Assignments)
	approvalHandler := NewApprovalHandler(deps.Approvals, deps.Log)
	exerciseHandler := NewExerciseHandler(deps.Catalog)
	clientHandler := NewClientHandler(deps.Clients)
	planHandler := NewPlanHandler(deps.Plans)
	portalHandler := NewPortalHandler(deps.Portal, deps.Tenants)

	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "plan-delivery"
	}
	router.Use(otelgin.Middleware(serviceName))
	router.Use(AttachTraceContext())
	router.Use(RequestLogger(deps.Log))
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", idempotencyHeader},
			ExposeHeaders:    []string{"X-Request-Id", "X-Trace-Id"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	if deps.LocalFiles != nil {
		router.GET("/files/*key", ServeLocalFile(deps.LocalFiles))
	}

	apiV1 := router.Group("/api/v1")

	// Public client portal
	apiV1.GET("/portal/:token", portalHandler.ResolvePortal)

	protected := apiV1.Group("")
	protected.Use(AuthMiddleware(deps.JWTSecret))
	{
		protected.GET("/me", Me)

		coaches := RoleMiddleware(domain.RoleOwner, domain.RoleCoach)
		reviewers := RoleMiddleware(domain.RoleOwner, domain.RoleReviewer)
		idempotent := Idempotency(deps.Idempotency, deps.IdempotencyTTL, deps.IdempotencyLockTTL, deps.Log)

		// --- Plans & Assignments ---
		planGroup := protected.Group("/plans")
		planGroup.Use(coaches)
		{
			// POST /api/v1/plans/assignments/deliver (single or batch)
			planGroup.POST("/assignments/deliver", idempotent, deliveryHandler.Deliver)
			// PATCH /api/v1/plans/assignments/deliver (retry)
			planGroup.PATCH("/assignments/deliver", idempotent, deliveryHandler.Retry)

			planGroup.POST("/assignments", assignmentHandler.CreateAssignment)
			planGroup.GET("/assignments", assignmentHandler.ListAssignments)
			planGroup.GET("/assignments/:assignmentId", assignmentHandler.GetAssignment)
			planGroup.POST("/assignments/:assignmentId/complete", assignmentHandler.CompleteAssignment)
			planGroup.POST("/assignments/:assignmentId/cancel", assignmentHandler.CancelAssignment)

			planGroup.POST("", planHandler.CreatePlan)
			planGroup.GET("/:planId", planHandler.GetPlan)
			planGroup.POST("/:planId/versions", planHandler.AddVersion)
			planGroup.GET("/:planId/versions/:version", planHandler.GetVersion)
		}

		// --- Approvals ---
		approvalGroup := protected.Group("/approvals")
		{
			approvalGroup.GET("", approvalHandler.ListWorkflows)
			approvalGroup.POST("", coaches, approvalHandler.SubmitApproval)
			approvalGroup.GET("/audit", reviewers, approvalHandler.AuditTrail)
			approvalGroup.GET("/:workflowId", approvalHandler.GetWorkflow)
			approvalGroup.POST("/:workflowId/approve", reviewers, approvalHandler.ApproveWorkflow)
			approvalGroup.POST("/:workflowId/reject", reviewers, approvalHandler.RejectWorkflow)
			approvalGroup.POST("/:workflowId/sync", reviewers, approvalHandler.SyncVisibility)
		}

		// --- Catalog ---
		catalogGroup := protected.Group("/catalog")
		{
			catalogGroup.POST("/exercises", coaches, exerciseHandler.CreateExercise)
			catalogGroup.PATCH("/exercises/:exerciseId", coaches, exerciseHandler.UpdateExercise)
			catalogGroup.GET("/:entityType", exerciseHandler.ListCatalog)
		}

		// --- Clients ---
		clientGroup := protected.Group("/clients")
		clientGroup.Use(coaches)
		{
			clientGroup.POST("", clientHandler.CreateClient)
			clientGroup.GET("/:clientId", clientHandler.GetClient)
			clientGroup.POST("/:clientId/intake-complete", clientHandler.CompleteIntake)
		}

		// --- Tenant ---
		protected.GET("/tenant/branding", portalHandler.GetBranding)
		protected.PUT("/tenant/branding", RoleMiddleware(domain.RoleOwner), portalHandler.UpdateBranding)
	}
}
