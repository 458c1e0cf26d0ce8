package api

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/repository"
	"alcyxob/plan-delivery/internal/service"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
	log             *logger.Logger
}

func NewApprovalHandler(approvalService service.ApprovalService, log *logger.Logger) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService, log: log}
}

// --- DTOs ---
type SubmitApprovalRequest struct {
	EntityType      string            `json:"entity_type" binding:"required,oneof=exercise nutrition workout"`
	EntityID        string            `json:"entity_id" binding:"required"`
	Notes           string            `json:"notes" binding:"max=2000"`
	Source          string            `json:"source"`
	ConfidenceScore *float64          `json:"confidence_score"`
	Extra           map[string]string `json:"extra"`
}

type DecisionRequest struct {
	Notes string `json:"notes" binding:"max=2000"`
}

// DecisionResponse is the decided workflow. VisibilitySynced is false when
// the catalog could not be updated yet; POST /approvals/{id}/sync repairs it.
type DecisionResponse struct {
	*domain.ApprovalWorkflow
	VisibilitySynced bool `json:"visibilitySynced"`
}

// SubmitApproval godoc
// @Summary Submit a catalog entity for review
// @Description Hides the entity from active catalogs until a reviewer decides.
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SubmitApprovalRequest true "Entity to review"
// @Success 201 {object} domain.ApprovalWorkflow
// @Failure 400 {object} ErrorResponse "Invalid input"
// @Failure 404 {object} ErrorResponse "Entity not found"
// @Failure 409 {object} ErrorResponse "Entity already has a pending review"
// @Router /approvals [post]
func (h *ApprovalHandler) SubmitApproval(c *gin.Context) {
	var req SubmitApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	entityID, ok := parseObjectID(c, req.EntityID, "entity_id")
	if !ok {
		return
	}

	w, err := h.approvalService.Submit(c.Request.Context(), service.SubmitApprovalInput{
		TenantID:    p.TenantID,
		EntityType:  domain.EntityType(req.EntityType),
		EntityID:    entityID,
		SubmittedBy: p.MemberID,
		Notes:       req.Notes,
		Metadata: domain.ApprovalMetadata{
			Source:          req.Source,
			ConfidenceScore: req.ConfidenceScore,
			Extra:           req.Extra,
		},
	})
	if err != nil && w == nil {
		respondError(c, err)
		return
	}
	if err != nil {
		h.log.Warn("Workflow opened but entity still visible", "workflow_id", w.ID.Hex(), "error", err)
	}
	c.JSON(http.StatusCreated, w)
}

// ApproveWorkflow godoc
// @Summary Approve a pending review
// @Description Publishes the entity to active catalogs. The decision is final.
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param workflowId path string true "Workflow ID"
// @Param request body DecisionRequest false "Reviewer notes"
// @Success 200 {object} DecisionResponse
// @Failure 403 {object} ErrorResponse "Workflow belongs to another tenant"
// @Failure 404 {object} ErrorResponse "Workflow not found"
// @Failure 409 {object} ErrorResponse "Workflow already decided"
// @Router /approvals/{workflowId}/approve [post]
func (h *ApprovalHandler) ApproveWorkflow(c *gin.Context) {
	h.decide(c, h.approvalService.Approve)
}

// RejectWorkflow godoc
// @Summary Reject a pending review
// @Description Keeps the entity out of active catalogs. The decision is final.
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param workflowId path string true "Workflow ID"
// @Param request body DecisionRequest false "Reviewer notes"
// @Success 200 {object} DecisionResponse
// @Failure 404 {object} ErrorResponse "Workflow not found"
// @Failure 409 {object} ErrorResponse "Workflow already decided"
// @Router /approvals/{workflowId}/reject [post]
func (h *ApprovalHandler) RejectWorkflow(c *gin.Context) {
	h.decide(c, h.approvalService.Reject)
}

type decideFunc func(ctx context.Context, workflowID, tenantID, reviewerID primitive.ObjectID, notes string) (*domain.ApprovalWorkflow, error)

func (h *ApprovalHandler) decide(c *gin.Context, apply decideFunc) {
	var req DecisionRequest
	// The body is optional; an empty one decodes to io.EOF.
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	workflowID, ok := parseObjectID(c, c.Param("workflowId"), "workflow ID")
	if !ok {
		return
	}

	w, err := apply(c.Request.Context(), workflowID, p.TenantID, p.MemberID, req.Notes)
	var stepErr *service.StepError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, DecisionResponse{ApprovalWorkflow: w, VisibilitySynced: true})
	case w != nil && errors.As(err, &stepErr):
		h.log.Warn("Decision committed, catalog visibility pending", "workflow_id", w.ID.Hex(), "error", err)
		c.JSON(http.StatusOK, DecisionResponse{ApprovalWorkflow: w, VisibilitySynced: false})
	default:
		respondError(c, err)
	}
}

// SyncVisibility godoc
// @Summary Re-apply a decided workflow to the catalog
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Param workflowId path string true "Workflow ID"
// @Success 200 {object} DecisionResponse
// @Failure 409 {object} ErrorResponse "Workflow is still pending"
// @Failure 500 {object} ErrorResponse "Catalog update failed again"
// @Router /approvals/{workflowId}/sync [post]
func (h *ApprovalHandler) SyncVisibility(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	workflowID, ok := parseObjectID(c, c.Param("workflowId"), "workflow ID")
	if !ok {
		return
	}
	w, err := h.approvalService.SyncVisibility(c.Request.Context(), workflowID, p.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, DecisionResponse{ApprovalWorkflow: w, VisibilitySynced: true})
}

// GetWorkflow godoc
// @Summary Get an approval workflow
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Param workflowId path string true "Workflow ID"
// @Success 200 {object} domain.ApprovalWorkflow
// @Failure 404 {object} ErrorResponse "Workflow not found"
// @Router /approvals/{workflowId} [get]
func (h *ApprovalHandler) GetWorkflow(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	workflowID, ok := parseObjectID(c, c.Param("workflowId"), "workflow ID")
	if !ok {
		return
	}
	w, err := h.approvalService.Get(c.Request.Context(), workflowID, p.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// ListWorkflows godoc
// @Summary List approval workflows
// @Description Defaults to the pending review queue. Pass status=all for every workflow.
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending (default), approved, rejected or all"
// @Param entity_type query string false "exercise, nutrition or workout"
// @Param submitted_by query string false "Submitter member ID"
// @Param limit query int false "Max results (default 50, max 500)"
// @Success 200 {array} domain.ApprovalWorkflow
// @Failure 400 {object} ErrorResponse "Invalid filter"
// @Router /approvals [get]
func (h *ApprovalHandler) ListWorkflows(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	filter := repository.ApprovalFilter{
		TenantID:   p.TenantID,
		Status:     domain.ApprovalPending,
		EntityType: domain.EntityType(c.Query("entity_type")),
	}
	switch status := c.Query("status"); status {
	case "":
	case "all":
		filter.Status = ""
	default:
		filter.Status = domain.ApprovalStatus(status)
	}
	if raw := c.Query("submitted_by"); raw != "" {
		submitter, ok := parseObjectID(c, raw, "submitted_by")
		if !ok {
			return
		}
		filter.SubmittedBy = &submitter
	}
	if filter.Limit, ok = queryLimit(c); !ok {
		return
	}

	items, err := h.approvalService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []domain.ApprovalWorkflow{}
	}
	c.JSON(http.StatusOK, items)
}

// AuditTrail godoc
// @Summary Decided reviews with summary counts
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Param status query string false "approved or rejected"
// @Param entity_type query string false "exercise, nutrition or workout"
// @Param entity_id query string false "Entity ID"
// @Param reviewed_by query string false "Reviewer member ID"
// @Param from query string false "RFC3339 lower bound on reviewedAt"
// @Param to query string false "RFC3339 upper bound on reviewedAt"
// @Param limit query int false "Max results (default 100, max 500)"
// @Success 200 {object} service.AuditReport
// @Failure 400 {object} ErrorResponse "Invalid filter"
// @Router /approvals/audit [get]
func (h *ApprovalHandler) AuditTrail(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	filter := repository.AuditFilter{
		TenantID:   p.TenantID,
		Status:     domain.ApprovalStatus(c.Query("status")),
		EntityType: domain.EntityType(c.Query("entity_type")),
	}
	if raw := c.Query("entity_id"); raw != "" {
		id, ok := parseObjectID(c, raw, "entity_id")
		if !ok {
			return
		}
		filter.EntityID = &id
	}
	if raw := c.Query("reviewed_by"); raw != "" {
		id, ok := parseObjectID(c, raw, "reviewed_by")
		if !ok {
			return
		}
		filter.ReviewedBy = &id
	}
	if filter.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if filter.To, ok = queryTime(c, "to"); !ok {
		return
	}
	if filter.Limit, ok = queryLimit(c); !ok {
		return
	}

	report, err := h.approvalService.Audit(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if report.Items == nil {
		report.Items = []domain.ApprovalWorkflow{}
	}
	c.JSON(http.StatusOK, report)
}

func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, name+" must be an RFC3339 timestamp")
		return nil, false
	}
	return &t, true
}
