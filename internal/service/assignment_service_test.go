package service

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/repository"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newAssignmentFixture(t *testing.T) (AssignmentService, *fakePlans, *fakeClients, primitive.ObjectID) {
	t.Helper()
	tenantID := primitive.NewObjectID()
	plans := newFakePlans()
	clients := &fakeClients{}
	svc := NewAssignmentService(newFakeAssignments(), plans, clients, &fakeCheckIns{}, logger.NewNop())
	return svc, plans, clients, tenantID
}

func TestCreateAssignmentPinsCurrentVersion(t *testing.T) {
	ctx := context.Background()
	svc, plans, clients, tenantID := newAssignmentFixture(t)

	planID, err := plans.Create(ctx, &domain.Plan{TenantID: tenantID, Name: "Base"}, domain.PlanContent{})
	require.NoError(t, err)
	_, err = plans.AddVersion(ctx, planID, domain.PlanContent{DurationWeeks: 8})
	require.NoError(t, err)
	clientID, err := clients.Create(ctx, &domain.Client{TenantID: tenantID, FirstName: "Sam", Phone: "5550001"})
	require.NoError(t, err)

	start := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	a, err := svc.Create(ctx, CreateAssignmentInput{TenantID: tenantID, ClientID: clientID, PlanID: planID, StartDate: &start})
	require.NoError(t, err)
	assert.Equal(t, 2, a.PlanVersion)
	assert.Equal(t, domain.AssignmentActive, a.Status)
	assert.Equal(t, domain.DeliveryPending, a.DeliveryStatus)
	assert.Equal(t, domain.ChannelWhatsApp, a.DeliveryChannel)
	assert.Nil(t, a.DeliveredAt)
	assert.Equal(t, start, a.StartDate)

	details, err := svc.Get(ctx, a.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, details.ID)
	assert.Empty(t, details.CheckIns)

	listed, err := svc.List(ctx, repository.AssignmentFilter{TenantID: tenantID, DeliveryStatus: domain.DeliveryPending})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestCreateAssignmentValidation(t *testing.T) {
	ctx := context.Background()
	svc, plans, clients, tenantID := newAssignmentFixture(t)
	planID, _ := plans.Create(ctx, &domain.Plan{TenantID: tenantID, Name: "Base"}, domain.PlanContent{})
	emailOnly, _ := clients.Create(ctx, &domain.Client{TenantID: tenantID, FirstName: "Ana", Email: "ana@example.com"})
	otherTenant, _ := clients.Create(ctx, &domain.Client{TenantID: primitive.NewObjectID(), FirstName: "Bo", Phone: "1"})

	_, err := svc.Create(ctx, CreateAssignmentInput{TenantID: tenantID, ClientID: emailOnly, PlanID: planID})
	assert.ErrorIs(t, err, ErrValidation, "whatsapp needs a phone")

	_, err = svc.Create(ctx, CreateAssignmentInput{TenantID: tenantID, ClientID: emailOnly, PlanID: planID, Channel: domain.ChannelEmail})
	assert.NoError(t, err)

	_, err = svc.Create(ctx, CreateAssignmentInput{TenantID: tenantID, ClientID: otherTenant, PlanID: planID})
	assert.ErrorIs(t, err, ErrClientNotFound)

	_, err = svc.Create(ctx, CreateAssignmentInput{TenantID: tenantID, ClientID: emailOnly, PlanID: planID, PlanVersion: 9, Channel: domain.ChannelEmail})
	assert.ErrorIs(t, err, ErrPlanVersionNotFound)

	_, err = svc.Create(ctx, CreateAssignmentInput{TenantID: tenantID, ClientID: emailOnly, PlanID: planID, Channel: "pigeon"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCompleteAndCancel(t *testing.T) {
	ctx := context.Background()
	svc, plans, clients, tenantID := newAssignmentFixture(t)
	planID, _ := plans.Create(ctx, &domain.Plan{TenantID: tenantID, Name: "Base"}, domain.PlanContent{})
	clientID, _ := clients.Create(ctx, &domain.Client{TenantID: tenantID, FirstName: "Sam", Phone: "5550001"})
	a, err := svc.Create(ctx, CreateAssignmentInput{TenantID: tenantID, ClientID: clientID, PlanID: planID})
	require.NoError(t, err)

	done, err := svc.Complete(ctx, a.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentCompleted, done.Status)

	// last writer wins
	cancelled, err := svc.Cancel(ctx, a.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentCancelled, cancelled.Status)

	_, err = svc.Cancel(ctx, a.ID, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPortalResolveIssuesFreshURL(t *testing.T) {
	f := newDeliveryFixture(t)
	ctx := context.Background()
	_, err := f.svc.Deliver(ctx, f.assignmentID, f.tenantID)
	require.NoError(t, err)

	stored := f.assignments.get(f.assignmentID)
	portal := NewPortalService(f.portalLinks, f.assignments, f.svc.deps.Plans, f.svc.deps.Clients, f.checkIns, f.renderer, logger.NewNop())

	view, err := portal.Resolve(ctx, stored.Delivery.PortalToken)
	require.NoError(t, err)
	assert.Equal(t, "Strength Base", view.PlanName)
	assert.Equal(t, "Jane", view.ClientName)
	assert.Contains(t, view.PDFURL, "?fresh")
	assert.Len(t, view.CheckIns, 12)

	_, err = portal.Resolve(ctx, "nope")
	assert.ErrorIs(t, err, ErrPortalLinkNotFound)

	require.NoError(t, f.assignments.UpdateStatus(ctx, f.assignmentID, f.tenantID, domain.AssignmentCancelled))
	_, err = portal.Resolve(ctx, stored.Delivery.PortalToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIntakeCompleteRaisesNotificationClearedByDelivery(t *testing.T) {
	ctx := context.Background()
	tenantID := primitive.NewObjectID()
	notifications := &fakeNotifications{}
	clients := NewClientService(&fakeClients{}, notifications, logger.NewNop())

	c, err := clients.Create(ctx, CreateClientInput{TenantID: tenantID, FirstName: " Lee ", Email: "LEE@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Lee", c.FirstName)
	assert.Equal(t, "lee@example.com", c.Email)

	n, err := clients.MarkIntakeComplete(ctx, c.ID, tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationPlanReady, n.Type)

	dismissed, err := notifications.Dismiss(ctx, tenantID, c.ID, domain.NotificationPlanReady, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, dismissed)

	_, err = clients.Create(ctx, CreateClientInput{TenantID: tenantID, FirstName: "NoContact"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateBrandingValidatesColor(t *testing.T) {
	tenantID := primitive.NewObjectID()
	tenants := &fakeTenants{items: map[primitive.ObjectID]domain.Tenant{tenantID: {ID: tenantID, Branding: domain.Branding{Version: 3}}}}
	svc := NewTenantService(tenants, logger.NewNop())

	_, err := svc.UpdateBranding(context.Background(), tenantID, domain.Branding{PrimaryColor: "teal"})
	assert.ErrorIs(t, err, ErrValidation)

	b, err := svc.UpdateBranding(context.Background(), tenantID, domain.Branding{CompanyName: "Iron Studio", PrimaryColor: "#112233"})
	require.NoError(t, err)
	assert.Equal(t, 4, b.Version)
	assert.Equal(t, "Iron Studio", b.CompanyName)
}
