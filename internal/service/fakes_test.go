package service

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/messaging"
	"alcyxob/plan-delivery/internal/render"
	"alcyxob/plan-delivery/internal/repository"
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory repositories with the same conditional-write semantics as the
// Mongo implementations.

type fakeAssignments struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]*domain.PlanAssignment
}

func newFakeAssignments() *fakeAssignments {
	return &fakeAssignments{items: map[primitive.ObjectID]*domain.PlanAssignment{}}
}

func (f *fakeAssignments) put(a domain.PlanAssignment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[a.ID] = &a
}

func (f *fakeAssignments) get(id primitive.ObjectID) domain.PlanAssignment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.items[id]
}

func (f *fakeAssignments) Create(_ context.Context, a *domain.PlanAssignment) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = primitive.NewObjectID()
	cp := *a
	f.items[a.ID] = &cp
	return a.ID, nil
}

func (f *fakeAssignments) GetByID(_ context.Context, id primitive.ObjectID) (*domain.PlanAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAssignments) List(_ context.Context, filter repository.AssignmentFilter) ([]domain.PlanAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PlanAssignment
	for _, a := range f.items {
		if a.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.DeliveryStatus != "" && a.DeliveryStatus != filter.DeliveryStatus {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeAssignments) UpdateStatus(_ context.Context, id, tenantID primitive.ObjectID, status domain.AssignmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || a.TenantID != tenantID {
		return repository.ErrNotFound
	}
	a.Status = status
	return nil
}

func (f *fakeAssignments) ClaimDelivery(_ context.Context, req repository.ClaimRequest) (*domain.PlanAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[req.AssignmentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	allowed := false
	for _, s := range req.AllowedFrom {
		allowed = allowed || a.DeliveryStatus == s
	}
	leaseFree := a.Delivery.LeaseID == "" || (a.Delivery.LeaseExpiresAt != nil && !a.Delivery.LeaseExpiresAt.After(req.Now))
	if a.TenantID != req.TenantID || a.Status != domain.AssignmentActive || !allowed || !leaseFree {
		return nil, repository.ErrConflict
	}
	expires := req.ExpiresAt
	now := req.Now
	a.Delivery.LeaseID = req.LeaseID
	a.Delivery.LeaseExpiresAt = &expires
	a.Delivery.LastAttemptAt = &now
	a.Delivery.Attempts++
	if req.ResetTo != "" {
		a.DeliveryStatus = req.ResetTo
		a.DeliveredAt = nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAssignments) fenced(id primitive.ObjectID, leaseID string, status domain.DeliveryStatus) (*domain.PlanAssignment, error) {
	a, ok := f.items[id]
	if !ok || a.Delivery.LeaseID != leaseID || (status != "" && a.DeliveryStatus != status) {
		return nil, repository.ErrConflict
	}
	return a, nil
}

func (f *fakeAssignments) ExtendLease(_ context.Context, id primitive.ObjectID, leaseID string, now, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, err := f.fenced(id, leaseID, "")
	if err != nil {
		return err
	}
	if a.Delivery.LeaseExpiresAt == nil || !a.Delivery.LeaseExpiresAt.After(now) {
		return repository.ErrConflict
	}
	a.Delivery.LeaseExpiresAt = &expiresAt
	return nil
}

func applyProgress(dst *domain.DeliveryProgress, p domain.DeliveryProgress) {
	p.Attempts = dst.Attempts
	p.LeaseID = dst.LeaseID
	p.LeaseExpiresAt = dst.LeaseExpiresAt
	p.LastAttemptAt = dst.LastAttemptAt
	p.FailedStep = dst.FailedStep
	p.LastError = dst.LastError
	*dst = p
}

func (f *fakeAssignments) SaveProgress(_ context.Context, id primitive.ObjectID, leaseID string, p domain.DeliveryProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, err := f.fenced(id, leaseID, "")
	if err != nil {
		return err
	}
	applyProgress(&a.Delivery, p)
	return nil
}

func (f *fakeAssignments) MarkSent(_ context.Context, id primitive.ObjectID, leaseID string, p domain.DeliveryProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, err := f.fenced(id, leaseID, domain.DeliveryPending)
	if err != nil {
		return err
	}
	applyProgress(&a.Delivery, p)
	a.DeliveryStatus = domain.DeliverySent
	return nil
}

func (f *fakeAssignments) MarkDelivered(_ context.Context, id primitive.ObjectID, leaseID string, deliveredAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, err := f.fenced(id, leaseID, domain.DeliverySent)
	if err != nil {
		return err
	}
	if a.Delivery.SentAt == nil || a.Delivery.PDFObjectKey == "" {
		return repository.ErrConflict
	}
	a.DeliveryStatus = domain.DeliveryDelivered
	a.DeliveredAt = &deliveredAt
	a.Delivery.LeaseID = ""
	a.Delivery.LeaseExpiresAt = nil
	a.Delivery.FailedStep = ""
	a.Delivery.LastError = ""
	return nil
}

func (f *fakeAssignments) MarkFailed(_ context.Context, id primitive.ObjectID, leaseID string, step domain.DeliveryStep, message string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, err := f.fenced(id, leaseID, "")
	if err != nil {
		return err
	}
	a.DeliveryStatus = domain.DeliveryFailed
	a.DeliveredAt = nil
	a.Delivery.FailedStep = step
	a.Delivery.LastError = message
	a.Delivery.LeaseID = ""
	a.Delivery.LeaseExpiresAt = nil
	return nil
}

type fakePlans struct {
	mu       sync.Mutex
	plans    map[primitive.ObjectID]*domain.Plan
	versions map[primitive.ObjectID][]domain.PlanVersion
}

func newFakePlans() *fakePlans {
	return &fakePlans{plans: map[primitive.ObjectID]*domain.Plan{}, versions: map[primitive.ObjectID][]domain.PlanVersion{}}
}

func (f *fakePlans) Create(_ context.Context, plan *domain.Plan, content domain.PlanContent) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	plan.ID = primitive.NewObjectID()
	plan.CurrentVersion = 1
	cp := *plan
	f.plans[plan.ID] = &cp
	f.versions[plan.ID] = []domain.PlanVersion{{ID: primitive.NewObjectID(), TenantID: plan.TenantID, PlanID: plan.ID, Version: 1, Content: content, CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}}
	return plan.ID, nil
}

func (f *fakePlans) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePlans) GetVersion(_ context.Context, planID primitive.ObjectID, version int) (*domain.PlanVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.versions[planID] {
		if v.Version == version {
			cp := v
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakePlans) AddVersion(_ context.Context, planID primitive.ObjectID, content domain.PlanContent) (*domain.PlanVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[planID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p.CurrentVersion++
	v := domain.PlanVersion{ID: primitive.NewObjectID(), TenantID: p.TenantID, PlanID: planID, Version: p.CurrentVersion, Content: content}
	f.versions[planID] = append(f.versions[planID], v)
	return &v, nil
}

type fakeClients struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]domain.Client
}

func (f *fakeClients) Create(_ context.Context, c *domain.Client) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items == nil {
		f.items = map[primitive.ObjectID]domain.Client{}
	}
	c.ID = primitive.NewObjectID()
	f.items[c.ID] = *c
	return c.ID, nil
}

func (f *fakeClients) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

type fakeTenants struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]domain.Tenant
}

func (f *fakeTenants) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (f *fakeTenants) UpdateBranding(_ context.Context, id primitive.ObjectID, b domain.Branding) (*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	b.Version = t.Branding.Version + 1
	t.Branding = b
	f.items[id] = t
	return &t, nil
}

type fakePortalLinks struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]domain.PortalLink // by assignment
	err   error
}

func (f *fakePortalLinks) Upsert(_ context.Context, link *domain.PortalLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.items == nil {
		f.items = map[primitive.ObjectID]domain.PortalLink{}
	}
	f.items[link.AssignmentID] = *link
	return nil
}

func (f *fakePortalLinks) GetByToken(_ context.Context, token string) (*domain.PortalLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.items {
		if l.Token == token {
			cp := l
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeCheckIns struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]map[int]domain.CheckIn
}

func (f *fakeCheckIns) UpsertSchedule(_ context.Context, rounds []domain.CheckIn) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items == nil {
		f.items = map[primitive.ObjectID]map[int]domain.CheckIn{}
	}
	if len(rounds) == 0 {
		return 0, nil
	}
	id := rounds[0].AssignmentID
	if f.items[id] == nil {
		f.items[id] = map[int]domain.CheckIn{}
	}
	for _, r := range rounds {
		if _, ok := f.items[id][r.Round]; !ok {
			f.items[id][r.Round] = r
		}
	}
	return len(f.items[id]), nil
}

func (f *fakeCheckIns) ListByAssignment(_ context.Context, assignmentID primitive.ObjectID) ([]domain.CheckIn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CheckIn
	for _, c := range f.items[assignmentID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

type fakeNotifications struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (f *fakeNotifications) Create(_ context.Context, n *domain.Notification) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = primitive.NewObjectID()
	f.items = append(f.items, *n)
	return n.ID, nil
}

func (f *fakeNotifications) Dismiss(_ context.Context, tenantID, relatedEntityID primitive.ObjectID, notificationType string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.items {
		it := &f.items[i]
		if it.TenantID == tenantID && it.RelatedEntityID == relatedEntityID && it.Type == notificationType && !it.IsDismissed {
			it.IsDismissed = true
			it.DismissedAt = &at
			n++
		}
	}
	return n, nil
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	err   error
	// onRender runs inside every Render call.
	onRender func()
}

func (f *fakeRenderer) Render(_ context.Context, req render.Request) (*render.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onRender != nil {
		f.onRender()
	}
	if f.err != nil {
		return nil, f.err
	}
	key := render.ObjectKey(req)
	return &render.Result{ObjectKey: key, URL: "https://files.test/" + key}, nil
}

func (f *fakeRenderer) URL(_ context.Context, objectKey string) (string, error) {
	return "https://files.test/" + objectKey + "?fresh", nil
}

type fakeSender struct {
	mu       sync.Mutex
	messages []messaging.Message
	err      error
	// gate, when set, blocks every send until it is closed.
	gate chan struct{}
	// entered, when set, is signalled as a send starts waiting on gate.
	entered chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, channel domain.Channel, msg messaging.Message) (*messaging.Receipt, error) {
	if f.gate != nil {
		if f.entered != nil {
			select {
			case f.entered <- struct{}{}:
			default:
			}
		}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.messages = append(f.messages, msg)
	return &messaging.Receipt{Provider: string(channel), MessageIDs: []string{"msg-1"}}, nil
}

func (f *fakeSender) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeApprovals struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]*domain.ApprovalWorkflow
}

func newFakeApprovals() *fakeApprovals {
	return &fakeApprovals{items: map[primitive.ObjectID]*domain.ApprovalWorkflow{}}
}

func (f *fakeApprovals) Create(_ context.Context, w *domain.ApprovalWorkflow) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.EntityType == w.EntityType && it.EntityID == w.EntityID && it.Status == domain.ApprovalPending {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	w.ID = primitive.NewObjectID()
	cp := *w
	f.items[w.ID] = &cp
	return w.ID, nil
}

func (f *fakeApprovals) GetByID(_ context.Context, id primitive.ObjectID) (*domain.ApprovalWorkflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (f *fakeApprovals) List(_ context.Context, filter repository.ApprovalFilter) ([]domain.ApprovalWorkflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ApprovalWorkflow
	for _, w := range f.items {
		if w.TenantID == filter.TenantID && (filter.Status == "" || w.Status == filter.Status) {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (f *fakeApprovals) Audit(_ context.Context, filter repository.AuditFilter) ([]domain.ApprovalWorkflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ApprovalWorkflow
	for _, w := range f.items {
		if w.TenantID == filter.TenantID && w.Status.Terminal() {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (f *fakeApprovals) Decide(_ context.Context, d repository.Decision) (*domain.ApprovalWorkflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.items[d.WorkflowID]
	if !ok || w.TenantID != d.TenantID {
		return nil, repository.ErrNotFound
	}
	if w.Status != domain.ApprovalPending {
		return nil, repository.ErrConflict
	}
	reviewer := d.ReviewedBy
	at := d.ReviewedAt
	w.Status = d.Status
	w.ReviewedBy = &reviewer
	w.ReviewedAt = &at
	w.Notes = d.Notes
	cp := *w
	return &cp, nil
}

type catalogItem struct {
	tenantID primitive.ObjectID
	name     string
	status   domain.ReviewStatus
	active   bool
}

type fakeCatalog struct {
	mu    sync.Mutex
	items map[domain.EntityType]map[primitive.ObjectID]*catalogItem
	err   error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{items: map[domain.EntityType]map[primitive.ObjectID]*catalogItem{
		domain.EntityExercise:  {},
		domain.EntityNutrition: {},
		domain.EntityWorkout:   {},
	}}
}

func (f *fakeCatalog) add(entityType domain.EntityType, tenantID primitive.ObjectID, name string, status domain.ReviewStatus) primitive.ObjectID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := primitive.NewObjectID()
	f.items[entityType][id] = &catalogItem{tenantID: tenantID, name: name, status: status, active: status == domain.ReviewApproved}
	return id
}

func (f *fakeCatalog) status(entityType domain.EntityType, id primitive.ObjectID) domain.ReviewStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[entityType][id].status
}

func (f *fakeCatalog) Exists(_ context.Context, entityType domain.EntityType, id, tenantID primitive.ObjectID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[entityType][id]
	return ok && it.tenantID == tenantID, nil
}

func (f *fakeCatalog) SetReviewStatus(_ context.Context, entityType domain.EntityType, id, tenantID primitive.ObjectID, status domain.ReviewStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	it, ok := f.items[entityType][id]
	if !ok || it.tenantID != tenantID {
		return repository.ErrNotFound
	}
	it.status = status
	if entityType == domain.EntityNutrition {
		it.active = status == domain.ReviewApproved
	}
	return nil
}

func (f *fakeCatalog) ListActive(_ context.Context, entityType domain.EntityType, tenantID primitive.ObjectID, _ int64) ([]domain.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CatalogEntry
	for id, it := range f.items[entityType] {
		if it.tenantID != tenantID || it.status != domain.ReviewApproved {
			continue
		}
		if entityType == domain.EntityNutrition && !it.active {
			continue
		}
		out = append(out, domain.CatalogEntry{ID: id, TenantID: tenantID, EntityType: entityType, Name: it.name, ReviewStatus: it.status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeCatalog) CreateExercise(_ context.Context, e *domain.Exercise) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = primitive.NewObjectID()
	f.items[domain.EntityExercise][e.ID] = &catalogItem{tenantID: e.TenantID, name: e.Name, status: e.ReviewStatus}
	return e.ID, nil
}

func (f *fakeCatalog) UpdateExercise(_ context.Context, id, tenantID primitive.ObjectID, patch repository.ExercisePatch) (*domain.Exercise, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[domain.EntityExercise][id]
	if !ok || it.tenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	if patch.Name != nil {
		it.name = *patch.Name
	}
	return &domain.Exercise{ID: id, TenantID: tenantID, Name: it.name, ReviewStatus: it.status}, nil
}
