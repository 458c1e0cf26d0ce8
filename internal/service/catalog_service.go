package service

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/repository"
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SourceManual = "manual"
	SourceAI     = "ai"
)

type CreateExerciseInput struct {
	TenantID         primitive.ObjectID
	CreatedBy        primitive.ObjectID
	Name             string
	Description      string
	MuscleGroup      string
	ExecutionTechnic string
	Difficulty       string
	VideoURL         string
	// Source "ai" routes the exercise through review before it is visible.
	Source          string
	ConfidenceScore *float64
}

var validDifficulties = map[string]bool{"": true, "Novice": true, "Medium": true, "Advanced": true}

// --- Service Interface ---
type CatalogService interface {
	ListActive(ctx context.Context, entityType domain.EntityType, tenantID primitive.ObjectID, limit int64) ([]domain.CatalogEntry, error)
	CreateExercise(ctx context.Context, in CreateExerciseInput) (*domain.Exercise, *domain.ApprovalWorkflow, error)
	UpdateExercise(ctx context.Context, exerciseID, tenantID primitive.ObjectID, patch repository.ExercisePatch) (*domain.Exercise, error)
}

// --- Service Implementation ---
type catalogService struct {
	catalog   repository.CatalogRepository
	approvals ApprovalService
	log       *logger.Logger
}

func NewCatalogService(catalog repository.CatalogRepository, approvals ApprovalService, log *logger.Logger) CatalogService {
	return &catalogService{
		catalog:   catalog,
		approvals: approvals,
		log:       log.With("component", "CatalogService"),
	}
}

// ListActive returns only approved entries; nutrition plans must also be active.
func (s *catalogService) ListActive(ctx context.Context, entityType domain.EntityType, tenantID primitive.ObjectID, limit int64) ([]domain.CatalogEntry, error) {
	if !entityType.Valid() {
		return nil, validationf("unknown entity type %q", entityType)
	}
	return s.catalog.ListActive(ctx, entityType, tenantID, clampLimit(limit, defaultApprovalListLimit))
}

// CreateExercise stores a manual exercise as approved. AI-sourced exercises
// start in review and get a pending workflow.
func (s *catalogService) CreateExercise(ctx context.Context, in CreateExerciseInput) (*domain.Exercise, *domain.ApprovalWorkflow, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, nil, validationf("exercise name is required")
	}
	if !validDifficulties[in.Difficulty] {
		return nil, nil, validationf("difficulty must be Novice, Medium or Advanced")
	}
	if in.Source == "" {
		in.Source = SourceManual
	}
	if in.Source != SourceManual && in.Source != SourceAI {
		return nil, nil, validationf("unknown source %q", in.Source)
	}

	exercise := &domain.Exercise{
		TenantID:         in.TenantID,
		Name:             in.Name,
		Description:      in.Description,
		MuscleGroup:      in.MuscleGroup,
		ExecutionTechnic: in.ExecutionTechnic,
		Difficulty:       in.Difficulty,
		VideoURL:         in.VideoURL,
		Source:           in.Source,
		ReviewStatus:     domain.ReviewApproved,
	}
	if in.Source == SourceAI {
		exercise.ReviewStatus = domain.ReviewPending
	}
	if _, err := s.catalog.CreateExercise(ctx, exercise); err != nil {
		return nil, nil, err
	}
	s.log.Info("Exercise created", "exercise_id", exercise.ID.Hex(), "source", exercise.Source)

	if in.Source != SourceAI {
		return exercise, nil, nil
	}
	w, err := s.approvals.Submit(ctx, SubmitApprovalInput{
		TenantID:    in.TenantID,
		EntityType:  domain.EntityExercise,
		EntityID:    exercise.ID,
		SubmittedBy: in.CreatedBy,
		Metadata:    domain.ApprovalMetadata{Source: SourceAI, ConfidenceScore: in.ConfidenceScore},
	})
	if err != nil {
		return exercise, w, err
	}
	return exercise, w, nil
}

func (s *catalogService) UpdateExercise(ctx context.Context, exerciseID, tenantID primitive.ObjectID, patch repository.ExercisePatch) (*domain.Exercise, error) {
	if patch.Empty() {
		return nil, validationf("nothing to update")
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, validationf("exercise name cannot be empty")
	}
	if patch.Difficulty != nil && !validDifficulties[*patch.Difficulty] {
		return nil, validationf("difficulty must be Novice, Medium or Advanced")
	}
	exercise, err := s.catalog.UpdateExercise(ctx, exerciseID, tenantID, patch)
	if err != nil {
		return nil, notFoundAs(err, ErrExerciseNotFound)
	}
	return exercise, nil
}
