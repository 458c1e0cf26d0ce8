package api

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/service"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type PlanHandler struct {
	planService service.PlanService
}

func NewPlanHandler(planService service.PlanService) *PlanHandler {
	return &PlanHandler{planService: planService}
}

type CreatePlanRequest struct {
	Name     string             `json:"name" binding:"required,max=200"`
	PlanType string             `json:"planType" binding:"omitempty,oneof=training nutrition bundle"`
	Content  domain.PlanContent `json:"content"`
}

// CreatePlan godoc
// @Summary Create a plan with its first version
// @Tags Plans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param plan body CreatePlanRequest true "Plan details"
// @Success 201 {object} domain.Plan
// @Failure 400 {object} ErrorResponse "Invalid input"
// @Router /plans [post]
func (h *PlanHandler) CreatePlan(c *gin.Context) {
	var req CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	plan, err := h.planService.Create(c.Request.Context(), service.CreatePlanInput{
		TenantID:  p.TenantID,
		CreatedBy: p.MemberID,
		Name:      req.Name,
		PlanType:  domain.PlanType(req.PlanType),
		Content:   req.Content,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

// GetPlan godoc
// @Summary Get a plan
// @Tags Plans
// @Produce json
// @Security BearerAuth
// @Param planId path string true "Plan ID"
// @Success 200 {object} domain.Plan
// @Failure 404 {object} ErrorResponse "Plan not found"
// @Router /plans/{planId} [get]
func (h *PlanHandler) GetPlan(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	planID, ok := parseObjectID(c, c.Param("planId"), "plan ID")
	if !ok {
		return
	}
	plan, err := h.planService.Get(c.Request.Context(), planID, p.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// AddVersion godoc
// @Summary Publish a new plan version
// @Description Existing assignments keep the version they were pinned to.
// @Tags Plans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param planId path string true "Plan ID"
// @Param content body domain.PlanContent true "Version content"
// @Success 201 {object} domain.PlanVersion
// @Failure 404 {object} ErrorResponse "Plan not found"
// @Router /plans/{planId}/versions [post]
func (h *PlanHandler) AddVersion(c *gin.Context) {
	var content domain.PlanContent
	if err := c.ShouldBindJSON(&content); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	planID, ok := parseObjectID(c, c.Param("planId"), "plan ID")
	if !ok {
		return
	}
	v, err := h.planService.AddVersion(c.Request.Context(), planID, p.TenantID, content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// GetVersion godoc
// @Summary Get one plan version
// @Tags Plans
// @Produce json
// @Security BearerAuth
// @Param planId path string true "Plan ID"
// @Param version path int true "Version number"
// @Success 200 {object} domain.PlanVersion
// @Failure 404 {object} ErrorResponse "Plan or version not found"
// @Router /plans/{planId}/versions/{version} [get]
func (h *PlanHandler) GetVersion(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	planID, ok := parseObjectID(c, c.Param("planId"), "plan ID")
	if !ok {
		return
	}
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		abortWithError(c, http.StatusBadRequest, "version must be a positive integer")
		return
	}
	v, err := h.planService.GetVersion(c.Request.Context(), planID, p.TenantID, version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
