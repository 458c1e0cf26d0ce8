package service

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/repository"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type approvalFixture struct {
	svc       *approvalService
	catalog   *fakeCatalog
	approvals *fakeApprovals
	tenantID  primitive.ObjectID
	coachID   primitive.ObjectID
	now       time.Time
}

func newApprovalFixture() *approvalFixture {
	f := &approvalFixture{
		catalog:   newFakeCatalog(),
		approvals: newFakeApprovals(),
		tenantID:  primitive.NewObjectID(),
		coachID:   primitive.NewObjectID(),
		now:       time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewApprovalService(f.approvals, f.catalog, logger.NewNop()).(*approvalService)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *approvalFixture) submit(t *testing.T, entityType domain.EntityType, name string) (*domain.ApprovalWorkflow, primitive.ObjectID) {
	t.Helper()
	entityID := f.catalog.add(entityType, f.tenantID, name, domain.ReviewApproved)
	w, err := f.svc.Submit(context.Background(), SubmitApprovalInput{
		TenantID:    f.tenantID,
		EntityType:  entityType,
		EntityID:    entityID,
		SubmittedBy: f.coachID,
		Metadata:    domain.ApprovalMetadata{Source: SourceAI},
	})
	require.NoError(t, err)
	return w, entityID
}

func TestSubmitHidesEntityUntilReviewed(t *testing.T) {
	f := newApprovalFixture()
	w, entityID := f.submit(t, domain.EntityExercise, "Goblet Squat")

	assert.Equal(t, domain.ApprovalPending, w.Status)
	assert.Nil(t, w.ReviewedBy)
	assert.Equal(t, domain.ReviewPending, f.catalog.status(domain.EntityExercise, entityID))

	active, err := f.catalog.ListActive(context.Background(), domain.EntityExercise, f.tenantID, 0)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSubmitValidation(t *testing.T) {
	f := newApprovalFixture()
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, SubmitApprovalInput{TenantID: f.tenantID, EntityType: "meal", EntityID: primitive.NewObjectID(), SubmittedBy: f.coachID})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Submit(ctx, SubmitApprovalInput{TenantID: f.tenantID, EntityType: domain.EntityWorkout, EntityID: primitive.NewObjectID(), SubmittedBy: f.coachID})
	assert.ErrorIs(t, err, ErrEntityNotFound)

	_, entityID := f.submit(t, domain.EntityWorkout, "Push Day")
	_, err = f.svc.Submit(ctx, SubmitApprovalInput{TenantID: f.tenantID, EntityType: domain.EntityWorkout, EntityID: entityID, SubmittedBy: f.coachID})
	assert.ErrorIs(t, err, ErrPendingReviewExists)
}

func TestRejectKeepsEntityOutOfActiveCatalog(t *testing.T) {
	f := newApprovalFixture()
	reviewer := primitive.NewObjectID()
	w, entityID := f.submit(t, domain.EntityNutrition, "Cutting Template")

	decided, err := f.svc.Reject(context.Background(), w.ID, f.tenantID, reviewer, "incomplete")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalRejected, decided.Status)
	assert.Equal(t, "incomplete", decided.Notes)
	require.NotNil(t, decided.ReviewedBy)
	assert.Equal(t, reviewer, *decided.ReviewedBy)
	assert.Equal(t, f.now, *decided.ReviewedAt)

	assert.Equal(t, domain.ReviewRejected, f.catalog.status(domain.EntityNutrition, entityID))
	catalog := NewCatalogService(f.catalog, f.svc, logger.NewNop())
	active, err := catalog.ListActive(context.Background(), domain.EntityNutrition, f.tenantID, 0)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestApproveMakesEntityActive(t *testing.T) {
	f := newApprovalFixture()
	w, entityID := f.submit(t, domain.EntityNutrition, "Lean Bulk")

	_, err := f.svc.Approve(context.Background(), w.ID, f.tenantID, primitive.NewObjectID(), "")
	require.NoError(t, err)

	active, err := f.catalog.ListActive(context.Background(), domain.EntityNutrition, f.tenantID, 0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, entityID, active[0].ID)
}

func TestDecisionOnDecidedWorkflowIsConflict(t *testing.T) {
	f := newApprovalFixture()
	first := primitive.NewObjectID()
	w, _ := f.submit(t, domain.EntityExercise, "Deadlift")

	_, err := f.svc.Approve(context.Background(), w.ID, f.tenantID, first, "looks good")
	require.NoError(t, err)
	before, err := f.approvals.GetByID(context.Background(), w.ID)
	require.NoError(t, err)

	f.now = f.now.Add(time.Hour)
	_, err = f.svc.Reject(context.Background(), w.ID, f.tenantID, primitive.NewObjectID(), "changed my mind")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.svc.Approve(context.Background(), w.ID, f.tenantID, primitive.NewObjectID(), "")
	assert.ErrorIs(t, err, ErrWorkflowDecided)

	after, err := f.approvals.GetByID(context.Background(), w.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("decided workflow changed (-before +after):\n%s", diff)
	}
}

func TestDecideAcrossTenantsIsForbidden(t *testing.T) {
	f := newApprovalFixture()
	w, _ := f.submit(t, domain.EntityExercise, "Row")

	_, err := f.svc.Approve(context.Background(), w.ID, primitive.NewObjectID(), primitive.NewObjectID(), "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Approve(context.Background(), primitive.NewObjectID(), f.tenantID, primitive.NewObjectID(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSyncVisibilityRepairsFailedFlip(t *testing.T) {
	f := newApprovalFixture()
	w, entityID := f.submit(t, domain.EntityWorkout, "Leg Day")

	f.catalog.err = errors.New("catalog unavailable")
	decided, err := f.svc.Approve(context.Background(), w.ID, f.tenantID, primitive.NewObjectID(), "")
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepVisibility, stepErr.Step)
	require.NotNil(t, decided)
	assert.Equal(t, domain.ApprovalApproved, decided.Status)
	assert.Equal(t, domain.ReviewPending, f.catalog.status(domain.EntityWorkout, entityID))

	f.catalog.err = nil
	_, err = f.svc.SyncVisibility(context.Background(), w.ID, f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewApproved, f.catalog.status(domain.EntityWorkout, entityID))
}

func TestSyncVisibilityOnPendingIsConflict(t *testing.T) {
	f := newApprovalFixture()
	w, _ := f.submit(t, domain.EntityWorkout, "Arms")

	_, err := f.svc.SyncVisibility(context.Background(), w.ID, f.tenantID)
	assert.ErrorIs(t, err, ErrWorkflowPending)
}

func TestAuditSummarisesDecisions(t *testing.T) {
	f := newApprovalFixture()
	reviewer := primitive.NewObjectID()
	a, _ := f.submit(t, domain.EntityExercise, "Curl")
	b, _ := f.submit(t, domain.EntityNutrition, "Keto")
	f.submit(t, domain.EntityWorkout, "Still pending")

	_, err := f.svc.Approve(context.Background(), a.ID, f.tenantID, reviewer, "")
	require.NoError(t, err)
	_, err = f.svc.Reject(context.Background(), b.ID, f.tenantID, reviewer, "incomplete")
	require.NoError(t, err)

	report, err := f.svc.Audit(context.Background(), repository.AuditFilter{TenantID: f.tenantID})
	require.NoError(t, err)
	want := AuditSummary{
		Total:        2,
		ByStatus:     map[domain.ApprovalStatus]int{domain.ApprovalApproved: 1, domain.ApprovalRejected: 1},
		ByEntityType: map[domain.EntityType]int{domain.EntityExercise: 1, domain.EntityNutrition: 1},
	}
	if diff := cmp.Diff(want, report.Summary); diff != "" {
		t.Errorf("audit summary mismatch (-want +got):\n%s", diff)
	}

	_, err = f.svc.Audit(context.Background(), repository.AuditFilter{TenantID: f.tenantID, Status: domain.ApprovalPending})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateAIExerciseOpensReview(t *testing.T) {
	f := newApprovalFixture()
	catalog := NewCatalogService(f.catalog, f.svc, logger.NewNop())
	score := 0.82

	exercise, w, err := catalog.CreateExercise(context.Background(), CreateExerciseInput{
		TenantID:        f.tenantID,
		CreatedBy:       f.coachID,
		Name:            "Cossack Squat",
		Difficulty:      "Medium",
		Source:          SourceAI,
		ConfidenceScore: &score,
	})
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, domain.ReviewPending, exercise.ReviewStatus)
	assert.Equal(t, exercise.ID, w.EntityID)
	assert.Equal(t, &score, w.Metadata.ConfidenceScore)

	manual, w, err := catalog.CreateExercise(context.Background(), CreateExerciseInput{TenantID: f.tenantID, Name: "Plank"})
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.Equal(t, domain.ReviewApproved, manual.ReviewStatus)

	_, _, err = catalog.CreateExercise(context.Background(), CreateExerciseInput{TenantID: f.tenantID, Name: "X", Difficulty: "Elite"})
	assert.ErrorIs(t, err, ErrValidation)
}
