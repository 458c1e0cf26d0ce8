package repository

import (
	"alcyxob/plan-delivery/internal/domain"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound = RepositoryError("not found")
	// ErrConflict means a conditional write matched nothing because the
	// record exists but is not in the expected state.
	ErrConflict  = RepositoryError("conflict")
	ErrDuplicate = RepositoryError("duplicate key")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// ClaimRequest describes a conditional lease acquisition on an assignment.
type ClaimRequest struct {
	AssignmentID primitive.ObjectID
	TenantID     primitive.ObjectID
	// AllowedFrom restricts which delivery statuses may be claimed.
	AllowedFrom []domain.DeliveryStatus
	// ResetTo, when set, rewrites the delivery status as part of the claim (retry: failed -> pending).
	ResetTo   domain.DeliveryStatus
	LeaseID   string
	Now       time.Time
	ExpiresAt time.Time
}

// AssignmentFilter narrows a tenant's assignment listing.
type AssignmentFilter struct {
	TenantID       primitive.ObjectID
	ClientID       *primitive.ObjectID
	Status         domain.AssignmentStatus
	DeliveryStatus domain.DeliveryStatus
	Limit          int64
}

// PlanAssignmentRepository persists assignments and their delivery progress.
// Every write taking a leaseID only applies while that lease is held.
type PlanAssignmentRepository interface {
	Create(ctx context.Context, a *domain.PlanAssignment) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.PlanAssignment, error)
	List(ctx context.Context, filter AssignmentFilter) ([]domain.PlanAssignment, error)
	// UpdateStatus is the coach-owned status change; last writer wins.
	UpdateStatus(ctx context.Context, id, tenantID primitive.ObjectID, status domain.AssignmentStatus) error

	// ClaimDelivery atomically acquires the delivery lease. It returns
	// ErrConflict when the assignment exists but cannot be claimed.
	ClaimDelivery(ctx context.Context, req ClaimRequest) (*domain.PlanAssignment, error)
	// ExtendLease pushes the lease expiry out. It fails with ErrConflict once
	// the lease has expired at now, even if nobody has claimed it yet.
	ExtendLease(ctx context.Context, id primitive.ObjectID, leaseID string, now, expiresAt time.Time) error
	SaveProgress(ctx context.Context, id primitive.ObjectID, leaseID string, p domain.DeliveryProgress) error
	MarkSent(ctx context.Context, id primitive.ObjectID, leaseID string, p domain.DeliveryProgress) error
	MarkDelivered(ctx context.Context, id primitive.ObjectID, leaseID string, deliveredAt time.Time) error
	MarkFailed(ctx context.Context, id primitive.ObjectID, leaseID string, step domain.DeliveryStep, message string, at time.Time) error
}

// TrainingPlanRepository reads plans and their immutable versions.
type TrainingPlanRepository interface {
	Create(ctx context.Context, plan *domain.Plan, content domain.PlanContent) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Plan, error)
	GetVersion(ctx context.Context, planID primitive.ObjectID, version int) (*domain.PlanVersion, error)
	AddVersion(ctx context.Context, planID primitive.ObjectID, content domain.PlanContent) (*domain.PlanVersion, error)
}

type ClientRepository interface {
	Create(ctx context.Context, client *domain.Client) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Client, error)
}

type TenantRepository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Tenant, error)
	UpdateBranding(ctx context.Context, id primitive.ObjectID, b domain.Branding) (*domain.Tenant, error)
}

// ArtifactRepository indexes rendered plan PDFs by their cache identity.
type ArtifactRepository interface {
	Create(ctx context.Context, artifact *domain.PlanArtifact) (primitive.ObjectID, error)
	Find(ctx context.Context, planID primitive.ObjectID, planVersion, brandingVersion int) (*domain.PlanArtifact, error)
}

type PortalLinkRepository interface {
	Upsert(ctx context.Context, link *domain.PortalLink) error
	GetByToken(ctx context.Context, token string) (*domain.PortalLink, error)
}

type CheckInRepository interface {
	// UpsertSchedule writes the rounds keyed on (assignment, round) and
	// returns how many rounds exist afterwards.
	UpsertSchedule(ctx context.Context, rounds []domain.CheckIn) (int, error)
	ListByAssignment(ctx context.Context, assignmentID primitive.ObjectID) ([]domain.CheckIn, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) (primitive.ObjectID, error)
	// Dismiss marks undismissed notifications of the given type for the entity
	// and returns how many were changed.
	Dismiss(ctx context.Context, tenantID, relatedEntityID primitive.ObjectID, notificationType string, at time.Time) (int64, error)
}

// ApprovalFilter drives the review queue listing. An empty Status means all.
type ApprovalFilter struct {
	TenantID    primitive.ObjectID
	Status      domain.ApprovalStatus
	EntityType  domain.EntityType
	SubmittedBy *primitive.ObjectID
	Limit       int64
}

// AuditFilter selects decided workflows.
type AuditFilter struct {
	TenantID   primitive.ObjectID
	EntityType domain.EntityType
	EntityID   *primitive.ObjectID
	ReviewedBy *primitive.ObjectID
	Status     domain.ApprovalStatus
	From       *time.Time
	To         *time.Time
	Limit      int64
}

// Decision is an atomic pending -> approved|rejected write.
type Decision struct {
	WorkflowID primitive.ObjectID
	TenantID   primitive.ObjectID
	Status     domain.ApprovalStatus
	ReviewedBy primitive.ObjectID
	ReviewedAt time.Time
	Notes      string
}

type ApprovalRepository interface {
	Create(ctx context.Context, w *domain.ApprovalWorkflow) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ApprovalWorkflow, error)
	List(ctx context.Context, filter ApprovalFilter) ([]domain.ApprovalWorkflow, error)
	Audit(ctx context.Context, filter AuditFilter) ([]domain.ApprovalWorkflow, error)
	// Decide applies the decision only while the workflow is pending and
	// returns ErrConflict otherwise.
	Decide(ctx context.Context, d Decision) (*domain.ApprovalWorkflow, error)
}

// CatalogRepository covers the reviewable library collections.
type CatalogRepository interface {
	Exists(ctx context.Context, entityType domain.EntityType, id, tenantID primitive.ObjectID) (bool, error)
	SetReviewStatus(ctx context.Context, entityType domain.EntityType, id, tenantID primitive.ObjectID, status domain.ReviewStatus) error
	ListActive(ctx context.Context, entityType domain.EntityType, tenantID primitive.ObjectID, limit int64) ([]domain.CatalogEntry, error)
	CreateExercise(ctx context.Context, exercise *domain.Exercise) (primitive.ObjectID, error)
	UpdateExercise(ctx context.Context, id, tenantID primitive.ObjectID, patch ExercisePatch) (*domain.Exercise, error)
}

// ExercisePatch is the allow-listed set of editable exercise fields.
// Nil fields are left untouched.
type ExercisePatch struct {
	Name             *string
	Description      *string
	MuscleGroup      *string
	ExecutionTechnic *string
	Difficulty       *string
	VideoURL         *string
}

func (p ExercisePatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.MuscleGroup == nil &&
		p.ExecutionTechnic == nil && p.Difficulty == nil && p.VideoURL == nil
}
