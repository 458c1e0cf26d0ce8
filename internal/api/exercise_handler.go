package api

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/repository"
	"alcyxob/plan-delivery/internal/service"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ExerciseHandler serves the reviewable catalog and exercise authoring.
type ExerciseHandler struct {
	catalogService service.CatalogService
}

func NewExerciseHandler(catalogService service.CatalogService) *ExerciseHandler {
	return &ExerciseHandler{catalogService: catalogService}
}

// --- DTOs ---

// CreateExerciseRequest defines the expected JSON for creating an exercise.
type CreateExerciseRequest struct {
	Name             string   `json:"name" binding:"required,max=200"`
	Description      string   `json:"description"`
	MuscleGroup      string   `json:"muscleGroup"`      // e.g., "Chest", "Legs"
	ExecutionTechnic string   `json:"executionTechnic"` // How to do it
	Difficulty       string   `json:"difficulty" binding:"omitempty,oneof=Novice Medium Advanced"`
	VideoURL         string   `json:"videoUrl" binding:"omitempty,url"`
	Source           string   `json:"source" binding:"omitempty,oneof=manual ai"`
	ConfidenceScore  *float64 `json:"confidenceScore" binding:"omitempty,min=0,max=1"`
}

type UpdateExerciseRequest struct {
	Name             *string `json:"name" binding:"omitempty,min=1,max=200"`
	Description      *string `json:"description"`
	MuscleGroup      *string `json:"muscleGroup"`
	ExecutionTechnic *string `json:"executionTechnic"`
	Difficulty       *string `json:"difficulty" binding:"omitempty,oneof=Novice Medium Advanced"`
	VideoURL         *string `json:"videoUrl" binding:"omitempty,url"`
}

// ExerciseResponse is the DTO for returning exercise details.
type ExerciseResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	MuscleGroup      string    `json:"muscleGroup,omitempty"`
	ExecutionTechnic string    `json:"executionTechnic,omitempty"`
	Difficulty       string    `json:"difficulty,omitempty"`
	VideoURL         string    `json:"videoUrl,omitempty"`
	Source           string    `json:"source,omitempty"`
	Status           string    `json:"status"`
	WorkflowID       string    `json:"workflowId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// MapExerciseToResponse converts a domain.Exercise to ExerciseResponse DTO.
func MapExerciseToResponse(ex *domain.Exercise) ExerciseResponse {
	if ex == nil {
		return ExerciseResponse{}
	}
	return ExerciseResponse{
		ID:               ex.ID.Hex(),
		Name:             ex.Name,
		Description:      ex.Description,
		MuscleGroup:      ex.MuscleGroup,
		ExecutionTechnic: ex.ExecutionTechnic,
		Difficulty:       ex.Difficulty,
		VideoURL:         ex.VideoURL,
		Source:           ex.Source,
		Status:           string(ex.ReviewStatus),
		CreatedAt:        ex.CreatedAt,
		UpdatedAt:        ex.UpdatedAt,
	}
}

// --- Handler Methods ---

// ListCatalog godoc
// @Summary List active catalog entries
// @Description Only approved entries are returned; anything under or failed review is hidden.
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Param entityType path string true "exercise, nutrition or workout"
// @Param limit query int false "Max results"
// @Success 200 {array} domain.CatalogEntry
// @Failure 400 {object} ErrorResponse "Unknown entity type"
// @Router /catalog/{entityType} [get]
func (h *ExerciseHandler) ListCatalog(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	entries, err := h.catalogService.ListActive(c.Request.Context(), domain.EntityType(c.Param("entityType")), p.TenantID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []domain.CatalogEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// CreateExercise godoc
// @Summary Create a new exercise
// @Description Manual exercises are visible immediately. AI-sourced ones open a review and stay hidden until approved.
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param exercise body CreateExerciseRequest true "Exercise details"
// @Success 201 {object} ExerciseResponse "Exercise created successfully"
// @Failure 400 {object} ErrorResponse "Invalid input (validation error)"
// @Router /catalog/exercises [post]
func (h *ExerciseHandler) CreateExercise(c *gin.Context) {
	var req CreateExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	exercise, workflow, err := h.catalogService.CreateExercise(c.Request.Context(), service.CreateExerciseInput{
		TenantID:         p.TenantID,
		CreatedBy:        p.MemberID,
		Name:             req.Name,
		Description:      req.Description,
		MuscleGroup:      req.MuscleGroup,
		ExecutionTechnic: req.ExecutionTechnic,
		Difficulty:       req.Difficulty,
		VideoURL:         req.VideoURL,
		Source:           req.Source,
		ConfidenceScore:  req.ConfidenceScore,
	})
	if err != nil && exercise == nil {
		respondError(c, err)
		return
	}

	resp := MapExerciseToResponse(exercise)
	if workflow != nil {
		resp.WorkflowID = workflow.ID.Hex()
	}
	c.JSON(http.StatusCreated, resp)
}

// UpdateExercise godoc
// @Summary Update an exercise
// @Description Only name, description, muscle group, technique, difficulty and video URL are editable.
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param exerciseId path string true "Exercise ID"
// @Param exercise body UpdateExerciseRequest true "Fields to change"
// @Success 200 {object} ExerciseResponse
// @Failure 404 {object} ErrorResponse "Exercise not found"
// @Router /catalog/exercises/{exerciseId} [patch]
func (h *ExerciseHandler) UpdateExercise(c *gin.Context) {
	var req UpdateExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	exerciseID, ok := parseObjectID(c, c.Param("exerciseId"), "exercise ID")
	if !ok {
		return
	}

	exercise, err := h.catalogService.UpdateExercise(c.Request.Context(), exerciseID, p.TenantID, repository.ExercisePatch{
		Name:             req.Name,
		Description:      req.Description,
		MuscleGroup:      req.MuscleGroup,
		ExecutionTechnic: req.ExecutionTechnic,
		Difficulty:       req.Difficulty,
		VideoURL:         req.VideoURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapExerciseToResponse(exercise))
}
