package service

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/repository"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CreateAssignmentInput struct {
	TenantID   primitive.ObjectID
	ClientID   primitive.ObjectID
	PlanID     primitive.ObjectID
	AssignedBy primitive.ObjectID
	// PlanVersion 0 pins the plan's current version.
	PlanVersion int
	Channel     domain.Channel
	StartDate   *time.Time
}

// AssignmentDetails is an assignment together with its check-in schedule.
type AssignmentDetails struct {
	domain.PlanAssignment
	CheckIns []domain.CheckIn `json:"checkIns,omitempty"`
}

// --- Service Interface ---
type AssignmentService interface {
	Create(ctx context.Context, in CreateAssignmentInput) (*domain.PlanAssignment, error)
	Get(ctx context.Context, assignmentID, tenantID primitive.ObjectID) (*AssignmentDetails, error)
	List(ctx context.Context, filter repository.AssignmentFilter) ([]domain.PlanAssignment, error)
	Complete(ctx context.Context, assignmentID, tenantID primitive.ObjectID) (*domain.PlanAssignment, error)
	Cancel(ctx context.Context, assignmentID, tenantID primitive.ObjectID) (*domain.PlanAssignment, error)
}

// --- Service Implementation ---
type assignmentService struct {
	assignments repository.PlanAssignmentRepository
	plans       repository.TrainingPlanRepository
	clients     repository.ClientRepository
	checkIns    repository.CheckInRepository
	log         *logger.Logger
	now         func() time.Time
}

func NewAssignmentService(
	assignments repository.PlanAssignmentRepository,
	plans repository.TrainingPlanRepository,
	clients repository.ClientRepository,
	checkIns repository.CheckInRepository,
	log *logger.Logger,
) AssignmentService {
	return &assignmentService{
		assignments: assignments,
		plans:       plans,
		clients:     clients,
		checkIns:    checkIns,
		log:         log.With("component", "AssignmentService"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create pins a plan version to a client. Delivery starts as pending.
func (s *assignmentService) Create(ctx context.Context, in CreateAssignmentInput) (*domain.PlanAssignment, error) {
	// 1. Validate input
	if in.TenantID.IsZero() || in.ClientID.IsZero() || in.PlanID.IsZero() {
		return nil, validationf("tenant, client and plan are required")
	}
	if in.Channel == "" {
		in.Channel = domain.ChannelWhatsApp
	}
	if !in.Channel.Valid() {
		return nil, validationf("unknown delivery channel %q", in.Channel)
	}
	if in.PlanVersion < 0 {
		return nil, validationf("plan version must be positive")
	}

	// 2. Plan and version must exist in this tenant
	plan, err := s.plans.GetByID(ctx, in.PlanID)
	if err != nil {
		return nil, notFoundAs(err, ErrPlanNotFound)
	}
	if plan.TenantID != in.TenantID {
		return nil, ErrPlanNotFound
	}
	version := in.PlanVersion
	if version == 0 {
		version = plan.CurrentVersion
	}
	if _, err := s.plans.GetVersion(ctx, plan.ID, version); err != nil {
		return nil, notFoundAs(err, ErrPlanVersionNotFound)
	}

	// 3. Client must exist in this tenant
	client, err := s.clients.GetByID(ctx, in.ClientID)
	if err != nil {
		return nil, notFoundAs(err, ErrClientNotFound)
	}
	if client.TenantID != in.TenantID {
		return nil, ErrClientNotFound
	}
	if in.Channel != domain.ChannelEmail && client.Phone == "" {
		return nil, validationf("client has no phone number for %s delivery", in.Channel)
	}
	if in.Channel == domain.ChannelEmail && client.Email == "" {
		return nil, validationf("client has no email address")
	}

	now := s.now()
	start := now.Truncate(24 * time.Hour)
	if in.StartDate != nil {
		start = in.StartDate.UTC()
	}
	a := &domain.PlanAssignment{
		TenantID:        in.TenantID,
		ClientID:        in.ClientID,
		PlanID:          in.PlanID,
		PlanVersion:     version,
		Status:          domain.AssignmentActive,
		DeliveryStatus:  domain.DeliveryPending,
		DeliveryChannel: in.Channel,
		StartDate:       start,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if !in.AssignedBy.IsZero() {
		by := in.AssignedBy
		a.AssignedBy = &by
	}
	if _, err := s.assignments.Create(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info("Plan assigned", "assignment_id", a.ID.Hex(), "plan_id", a.PlanID.Hex(), "version", a.PlanVersion)
	return a, nil
}

func (s *assignmentService) Get(ctx context.Context, assignmentID, tenantID primitive.ObjectID) (*AssignmentDetails, error) {
	a, err := s.owned(ctx, assignmentID, tenantID)
	if err != nil {
		return nil, err
	}
	checkIns, err := s.checkIns.ListByAssignment(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return &AssignmentDetails{PlanAssignment: *a, CheckIns: checkIns}, nil
}

func (s *assignmentService) List(ctx context.Context, filter repository.AssignmentFilter) ([]domain.PlanAssignment, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationf("unknown assignment status %q", filter.Status)
	}
	if filter.DeliveryStatus != "" && !filter.DeliveryStatus.Valid() {
		return nil, validationf("unknown delivery status %q", filter.DeliveryStatus)
	}
	filter.Limit = clampLimit(filter.Limit, defaultApprovalListLimit)
	return s.assignments.List(ctx, filter)
}

func (s *assignmentService) Complete(ctx context.Context, assignmentID, tenantID primitive.ObjectID) (*domain.PlanAssignment, error) {
	return s.setStatus(ctx, assignmentID, tenantID, domain.AssignmentCompleted)
}

func (s *assignmentService) Cancel(ctx context.Context, assignmentID, tenantID primitive.ObjectID) (*domain.PlanAssignment, error) {
	return s.setStatus(ctx, assignmentID, tenantID, domain.AssignmentCancelled)
}

func (s *assignmentService) setStatus(ctx context.Context, assignmentID, tenantID primitive.ObjectID, status domain.AssignmentStatus) (*domain.PlanAssignment, error) {
	if _, err := s.owned(ctx, assignmentID, tenantID); err != nil {
		return nil, err
	}
	if err := s.assignments.UpdateStatus(ctx, assignmentID, tenantID, status); err != nil {
		return nil, notFoundAs(err, ErrAssignmentNotFound)
	}
	s.log.Info("Assignment status changed", "assignment_id", assignmentID.Hex(), "status", status)
	return s.owned(ctx, assignmentID, tenantID)
}

func (s *assignmentService) owned(ctx context.Context, assignmentID, tenantID primitive.ObjectID) (*domain.PlanAssignment, error) {
	a, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	if a.TenantID != tenantID {
		return nil, ErrAssignmentAccessDenied
	}
	return a, nil
}
