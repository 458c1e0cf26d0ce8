package api

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/repository"
	"alcyxob/plan-delivery/internal/service"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AssignmentHandler struct {
	assignmentService service.AssignmentService
}

func NewAssignmentHandler(assignmentService service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignmentService: assignmentService}
}

// --- DTOs ---
type CreateAssignmentRequest struct {
	ClientID    string `json:"client_id" binding:"required"`
	PlanID      string `json:"plan_id" binding:"required"`
	PlanVersion int    `json:"plan_version" binding:"omitempty,min=1"`
	Channel     string `json:"delivery_channel" binding:"omitempty,oneof=whatsapp sms email"`
	StartDate   string `json:"start_date"` // YYYY-MM-DD
}

// CreateAssignment godoc
// @Summary Assign a plan version to a client
// @Description Pins the current (or given) plan version. Delivery starts pending.
// @Tags Assignments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateAssignmentRequest true "Assignment details"
// @Success 201 {object} domain.PlanAssignment
// @Failure 400 {object} ErrorResponse "Invalid input"
// @Failure 404 {object} ErrorResponse "Client, plan or version not found"
// @Router /plans/assignments [post]
func (h *AssignmentHandler) CreateAssignment(c *gin.Context) {
	var req CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	clientID, ok := parseObjectID(c, req.ClientID, "client_id")
	if !ok {
		return
	}
	planID, ok := parseObjectID(c, req.PlanID, "plan_id")
	if !ok {
		return
	}

	in := service.CreateAssignmentInput{
		TenantID:    p.TenantID,
		ClientID:    clientID,
		PlanID:      planID,
		AssignedBy:  p.MemberID,
		PlanVersion: req.PlanVersion,
		Channel:     domain.Channel(req.Channel),
	}
	if req.StartDate != "" {
		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid start_date format, use YYYY-MM-DD")
			return
		}
		in.StartDate = &start
	}

	assignment, err := h.assignmentService.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, assignment)
}

// ListAssignments godoc
// @Summary List the tenant's plan assignments
// @Tags Assignments
// @Produce json
// @Security BearerAuth
// @Param client_id query string false "Filter by client"
// @Param status query string false "active, completed or cancelled"
// @Param delivery_status query string false "pending, sent, delivered or failed"
// @Param limit query int false "Max results (default 50)"
// @Success 200 {array} domain.PlanAssignment
// @Failure 400 {object} ErrorResponse "Invalid filter"
// @Router /plans/assignments [get]
func (h *AssignmentHandler) ListAssignments(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	filter := repository.AssignmentFilter{
		TenantID:       p.TenantID,
		Status:         domain.AssignmentStatus(c.Query("status")),
		DeliveryStatus: domain.DeliveryStatus(c.Query("delivery_status")),
	}
	if raw := c.Query("client_id"); raw != "" {
		clientID, ok := parseObjectID(c, raw, "client_id")
		if !ok {
			return
		}
		filter.ClientID = &clientID
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	filter.Limit = limit

	assignments, err := h.assignmentService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if assignments == nil {
		assignments = []domain.PlanAssignment{}
	}
	c.JSON(http.StatusOK, assignments)
}

// GetAssignment godoc
// @Summary Get an assignment with its check-in schedule
// @Tags Assignments
// @Produce json
// @Security BearerAuth
// @Param assignmentId path string true "Assignment ID"
// @Success 200 {object} service.AssignmentDetails
// @Failure 403 {object} ErrorResponse "Assignment belongs to another tenant"
// @Failure 404 {object} ErrorResponse "Assignment not found"
// @Router /plans/assignments/{assignmentId} [get]
func (h *AssignmentHandler) GetAssignment(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	assignmentID, ok := parseObjectID(c, c.Param("assignmentId"), "assignment ID")
	if !ok {
		return
	}
	details, err := h.assignmentService.Get(c.Request.Context(), assignmentID, p.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// CompleteAssignment godoc
// @Summary Mark an assignment completed
// @Tags Assignments
// @Produce json
// @Security BearerAuth
// @Param assignmentId path string true "Assignment ID"
// @Success 200 {object} domain.PlanAssignment
// @Router /plans/assignments/{assignmentId}/complete [post]
func (h *AssignmentHandler) CompleteAssignment(c *gin.Context) {
	h.setStatus(c, h.assignmentService.Complete)
}

// CancelAssignment godoc
// @Summary Cancel an assignment
// @Description A cancelled assignment can no longer be delivered and its portal link stops resolving.
// @Tags Assignments
// @Produce json
// @Security BearerAuth
// @Param assignmentId path string true "Assignment ID"
// @Success 200 {object} domain.PlanAssignment
// @Router /plans/assignments/{assignmentId}/cancel [post]
func (h *AssignmentHandler) CancelAssignment(c *gin.Context) {
	h.setStatus(c, h.assignmentService.Cancel)
}

func (h *AssignmentHandler) setStatus(c *gin.Context, apply func(ctx context.Context, assignmentID, tenantID primitive.ObjectID) (*domain.PlanAssignment, error)) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	assignmentID, ok := parseObjectID(c, c.Param("assignmentId"), "assignment ID")
	if !ok {
		return
	}
	assignment, err := apply(c.Request.Context(), assignmentID, p.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

func queryLimit(c *gin.Context) (int64, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit < 0 {
		abortWithError(c, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
