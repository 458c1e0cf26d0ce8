package service

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/repository"
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CreatePlanInput struct {
	TenantID  primitive.ObjectID
	CreatedBy primitive.ObjectID
	Name      string
	PlanType  domain.PlanType
	Content   domain.PlanContent
}

// --- Service Interface ---
type PlanService interface {
	Create(ctx context.Context, in CreatePlanInput) (*domain.Plan, error)
	Get(ctx context.Context, planID, tenantID primitive.ObjectID) (*domain.Plan, error)
	GetVersion(ctx context.Context, planID, tenantID primitive.ObjectID, version int) (*domain.PlanVersion, error)
	// AddVersion snapshots new content; existing assignments keep their pinned version.
	AddVersion(ctx context.Context, planID, tenantID primitive.ObjectID, content domain.PlanContent) (*domain.PlanVersion, error)
}

// --- Service Implementation ---
type planService struct {
	plans repository.TrainingPlanRepository
	log   *logger.Logger
}

func NewPlanService(plans repository.TrainingPlanRepository, log *logger.Logger) PlanService {
	return &planService{plans: plans, log: log.With("component", "PlanService")}
}

func (s *planService) Create(ctx context.Context, in CreatePlanInput) (*domain.Plan, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.TenantID.IsZero() {
		return nil, validationf("tenant and plan name are required")
	}
	switch in.PlanType {
	case domain.PlanTraining, domain.PlanNutrition, domain.PlanBundle:
	case "":
		in.PlanType = domain.PlanTraining
	default:
		return nil, validationf("unknown plan type %q", in.PlanType)
	}
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}

	plan := &domain.Plan{
		TenantID:  in.TenantID,
		Name:      in.Name,
		PlanType:  in.PlanType,
		CreatedBy: in.CreatedBy,
	}
	if _, err := s.plans.Create(ctx, plan, in.Content); err != nil {
		return nil, err
	}
	s.log.Info("Plan created", "plan_id", plan.ID.Hex())
	return plan, nil
}

func (s *planService) Get(ctx context.Context, planID, tenantID primitive.ObjectID) (*domain.Plan, error) {
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, notFoundAs(err, ErrPlanNotFound)
	}
	if plan.TenantID != tenantID {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

func (s *planService) GetVersion(ctx context.Context, planID, tenantID primitive.ObjectID, version int) (*domain.PlanVersion, error) {
	plan, err := s.Get(ctx, planID, tenantID)
	if err != nil {
		return nil, err
	}
	if version <= 0 {
		version = plan.CurrentVersion
	}
	v, err := s.plans.GetVersion(ctx, plan.ID, version)
	if err != nil {
		return nil, notFoundAs(err, ErrPlanVersionNotFound)
	}
	return v, nil
}

func (s *planService) AddVersion(ctx context.Context, planID, tenantID primitive.ObjectID, content domain.PlanContent) (*domain.PlanVersion, error) {
	if _, err := s.Get(ctx, planID, tenantID); err != nil {
		return nil, err
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}
	v, err := s.plans.AddVersion(ctx, planID, content)
	if err != nil {
		return nil, notFoundAs(err, ErrPlanNotFound)
	}
	s.log.Info("Plan version added", "plan_id", planID.Hex(), "version", v.Version)
	return v, nil
}

func validateContent(c domain.PlanContent) error {
	if c.DurationWeeks < 0 || c.DurationWeeks > 104 {
		return validationf("duration must be between 0 and 104 weeks")
	}
	for _, w := range c.Workouts {
		if strings.TrimSpace(w.Name) == "" {
			return validationf("every workout needs a name")
		}
		if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
			return validationf("workout %q has an invalid day of week", w.Name)
		}
	}
	return nil
}
