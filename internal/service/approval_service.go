package service

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/observability"
	"alcyxob/plan-delivery/internal/repository"
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StepVisibility names the catalog write that follows a review decision.
const StepVisibility = "visibility"

const (
	defaultApprovalListLimit = 50
	defaultAuditLimit        = 100
	maxApprovalLimit         = 500
)

type SubmitApprovalInput struct {
	TenantID    primitive.ObjectID
	EntityType  domain.EntityType
	EntityID    primitive.ObjectID
	SubmittedBy primitive.ObjectID
	Notes       string
	Metadata    domain.ApprovalMetadata
}

// AuditReport is the decided-workflow history plus simple counts.
type AuditReport struct {
	Items   []domain.ApprovalWorkflow `json:"items"`
	Summary AuditSummary              `json:"summary"`
}

type AuditSummary struct {
	Total        int                           `json:"total"`
	ByStatus     map[domain.ApprovalStatus]int `json:"byStatus"`
	ByEntityType map[domain.EntityType]int     `json:"byEntityType"`
}

// --- Service Interface ---
type ApprovalService interface {
	Submit(ctx context.Context, in SubmitApprovalInput) (*domain.ApprovalWorkflow, error)
	Approve(ctx context.Context, workflowID, tenantID, reviewerID primitive.ObjectID, notes string) (*domain.ApprovalWorkflow, error)
	Reject(ctx context.Context, workflowID, tenantID, reviewerID primitive.ObjectID, notes string) (*domain.ApprovalWorkflow, error)
	// SyncVisibility re-applies a decided workflow's outcome to its catalog entity.
	SyncVisibility(ctx context.Context, workflowID, tenantID primitive.ObjectID) (*domain.ApprovalWorkflow, error)
	Get(ctx context.Context, workflowID, tenantID primitive.ObjectID) (*domain.ApprovalWorkflow, error)
	List(ctx context.Context, filter repository.ApprovalFilter) ([]domain.ApprovalWorkflow, error)
	Audit(ctx context.Context, filter repository.AuditFilter) (*AuditReport, error)
}

// --- Service Implementation ---
type approvalService struct {
	approvals repository.ApprovalRepository
	catalog   repository.CatalogRepository
	log       *logger.Logger
	now       func() time.Time
}

func NewApprovalService(approvals repository.ApprovalRepository, catalog repository.CatalogRepository, log *logger.Logger) ApprovalService {
	return &approvalService{
		approvals: approvals,
		catalog:   catalog,
		log:       log.With("component", "ApprovalService"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit opens a pending review and hides the entity from active catalogs.
// When hiding fails the workflow is still returned alongside a StepError.
func (s *approvalService) Submit(ctx context.Context, in SubmitApprovalInput) (*domain.ApprovalWorkflow, error) {
	if !in.EntityType.Valid() {
		return nil, validationf("unknown entity type %q", in.EntityType)
	}
	if in.EntityID.IsZero() || in.TenantID.IsZero() || in.SubmittedBy.IsZero() {
		return nil, validationf("tenant, entity and submitter are required")
	}
	if cs := in.Metadata.ConfidenceScore; cs != nil && (*cs < 0 || *cs > 1) {
		return nil, validationf("confidence score must be between 0 and 1")
	}

	exists, err := s.catalog.Exists(ctx, in.EntityType, in.EntityID, in.TenantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrEntityNotFound
	}

	now := s.now()
	w := &domain.ApprovalWorkflow{
		TenantID:    in.TenantID,
		EntityType:  in.EntityType,
		EntityID:    in.EntityID,
		Status:      domain.ApprovalPending,
		SubmittedBy: in.SubmittedBy,
		Notes:       strings.TrimSpace(in.Notes),
		Metadata:    in.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.approvals.Create(ctx, w); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrPendingReviewExists
		}
		return nil, err
	}
	s.log.Info("Approval submitted", "workflow_id", w.ID.Hex(), "entity_type", w.EntityType, "entity_id", w.EntityID.Hex())

	if err := s.catalog.SetReviewStatus(ctx, w.EntityType, w.EntityID, w.TenantID, domain.ReviewPending); err != nil {
		s.log.Error("Failed to hide entity under review", "workflow_id", w.ID.Hex(), "error", err)
		return w, &StepError{Step: StepVisibility, Err: err}
	}
	return w, nil
}

func (s *approvalService) Approve(ctx context.Context, workflowID, tenantID, reviewerID primitive.ObjectID, notes string) (*domain.ApprovalWorkflow, error) {
	return s.decide(ctx, workflowID, tenantID, reviewerID, domain.ApprovalApproved, notes)
}

func (s *approvalService) Reject(ctx context.Context, workflowID, tenantID, reviewerID primitive.ObjectID, notes string) (*domain.ApprovalWorkflow, error) {
	return s.decide(ctx, workflowID, tenantID, reviewerID, domain.ApprovalRejected, notes)
}

// decide commits the decision first and only then flips catalog visibility.
// A failed flip leaves a decided workflow that SyncVisibility can repair.
func (s *approvalService) decide(ctx context.Context, workflowID, tenantID, reviewerID primitive.ObjectID, status domain.ApprovalStatus, notes string) (*domain.ApprovalWorkflow, error) {
	ctx, span := observability.Tracer().Start(ctx, "approval.decide", trace.WithAttributes(
		attribute.String("workflow.id", workflowID.Hex()),
		attribute.String("approval.status", string(status)),
	))
	defer span.End()

	if reviewerID.IsZero() {
		return nil, validationf("reviewer is required")
	}
	if _, err := s.Get(ctx, workflowID, tenantID); err != nil {
		return nil, err
	}

	w, err := s.approvals.Decide(ctx, repository.Decision{
		WorkflowID: workflowID,
		TenantID:   tenantID,
		Status:     status,
		ReviewedBy: reviewerID,
		ReviewedAt: s.now(),
		Notes:      strings.TrimSpace(notes),
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrWorkflowNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrWorkflowDecided
		}
		return nil, err
	}
	s.log.Info("Approval decided", "workflow_id", w.ID.Hex(), "status", w.Status, "reviewer_id", reviewerID.Hex())

	if err := s.applyVisibility(ctx, w); err != nil {
		return w, err
	}
	return w, nil
}

func (s *approvalService) SyncVisibility(ctx context.Context, workflowID, tenantID primitive.ObjectID) (*domain.ApprovalWorkflow, error) {
	w, err := s.Get(ctx, workflowID, tenantID)
	if err != nil {
		return nil, err
	}
	if !w.Status.Terminal() {
		return nil, ErrWorkflowPending
	}
	if err := s.applyVisibility(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *approvalService) applyVisibility(ctx context.Context, w *domain.ApprovalWorkflow) error {
	err := s.catalog.SetReviewStatus(ctx, w.EntityType, w.EntityID, w.TenantID, w.Status.ReviewStatus())
	if err != nil {
		s.log.Error("Failed to update catalog visibility", "workflow_id", w.ID.Hex(), "entity_type", w.EntityType, "error", err)
		if errors.Is(err, repository.ErrNotFound) {
			err = ErrEntityNotFound
		}
		return &StepError{Step: StepVisibility, Err: err}
	}
	return nil
}

func (s *approvalService) Get(ctx context.Context, workflowID, tenantID primitive.ObjectID) (*domain.ApprovalWorkflow, error) {
	w, err := s.approvals.GetByID(ctx, workflowID)
	if err != nil {
		return nil, notFoundAs(err, ErrWorkflowNotFound)
	}
	if w.TenantID != tenantID {
		return nil, ErrWorkflowAccessDenied
	}
	return w, nil
}

func (s *approvalService) List(ctx context.Context, filter repository.ApprovalFilter) ([]domain.ApprovalWorkflow, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationf("unknown approval status %q", filter.Status)
	}
	if filter.EntityType != "" && !filter.EntityType.Valid() {
		return nil, validationf("unknown entity type %q", filter.EntityType)
	}
	filter.Limit = clampLimit(filter.Limit, defaultApprovalListLimit)
	return s.approvals.List(ctx, filter)
}

func (s *approvalService) Audit(ctx context.Context, filter repository.AuditFilter) (*AuditReport, error) {
	if filter.Status != "" && !filter.Status.Terminal() {
		return nil, validationf("audit status must be approved or rejected")
	}
	if filter.EntityType != "" && !filter.EntityType.Valid() {
		return nil, validationf("unknown entity type %q", filter.EntityType)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, validationf("date range is inverted")
	}
	filter.Limit = clampLimit(filter.Limit, defaultAuditLimit)

	items, err := s.approvals.Audit(ctx, filter)
	if err != nil {
		return nil, err
	}
	report := &AuditReport{
		Items: items,
		Summary: AuditSummary{
			Total:        len(items),
			ByStatus:     map[domain.ApprovalStatus]int{},
			ByEntityType: map[domain.EntityType]int{},
		},
	}
	for _, w := range items {
		report.Summary.ByStatus[w.Status]++
		report.Summary.ByEntityType[w.EntityType]++
	}
	return report, nil
}

func clampLimit(limit, def int64) int64 {
	if limit <= 0 {
		return def
	}
	if limit > maxApprovalLimit {
		return maxApprovalLimit
	}
	return limit
}
