package service

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/messaging"
	"alcyxob/plan-delivery/internal/observability"
	"alcyxob/plan-delivery/internal/render"
	"alcyxob/plan-delivery/internal/repository"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DeliveryResult is what a successful delivery hands back to the caller.
type DeliveryResult struct {
	AssignmentID          primitive.ObjectID `json:"assignmentId"`
	PDFURL                string             `json:"pdfUrl"`
	PortalLink            string             `json:"portalLink"`
	DismissedNotification bool               `json:"dismissedNotification"`
	DeliveredAt           time.Time          `json:"deliveredAt"`
	// Resumed is set when earlier attempts had already completed some steps.
	Resumed bool `json:"resumed"`
}

// BatchItemResult is one assignment's outcome inside DeliverBatch.
type BatchItemResult struct {
	AssignmentID primitive.ObjectID
	Result       *DeliveryResult
	Err          error
}

// --- Service Interface ---
type DeliveryService interface {
	// Deliver runs the delivery sequence for a pending (or failed) assignment.
	Deliver(ctx context.Context, assignmentID, tenantID primitive.ObjectID) (*DeliveryResult, error)
	// Retry is Deliver restricted to failed assignments.
	Retry(ctx context.Context, assignmentID, tenantID primitive.ObjectID) (*DeliveryResult, error)
	// DeliverBatch delivers each id independently; one failure never stops the rest.
	DeliverBatch(ctx context.Context, tenantID primitive.ObjectID, assignmentIDs []primitive.ObjectID) ([]BatchItemResult, error)
}

type DeliveryOptions struct {
	LeaseTTL             time.Duration
	CheckInInterval      time.Duration
	DefaultDurationWeeks int
	BatchConcurrency     int
	PortalBaseURL        string
}

// DeliveryDeps are the collaborators of the dispatcher.
type DeliveryDeps struct {
	Assignments   repository.PlanAssignmentRepository
	Plans         repository.TrainingPlanRepository
	Clients       repository.ClientRepository
	Tenants       repository.TenantRepository
	PortalLinks   repository.PortalLinkRepository
	CheckIns      repository.CheckInRepository
	Notifications repository.NotificationRepository
	Renderer      render.Renderer
	Sender        messaging.Sender
}

const maxBatchSize = 100

// --- Service Implementation ---
type deliveryService struct {
	deps     DeliveryDeps
	opts     DeliveryOptions
	log      *logger.Logger
	now      func() time.Time
	newToken func() string
}

func NewDeliveryService(deps DeliveryDeps, opts DeliveryOptions, log *logger.Logger) DeliveryService {
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 2 * time.Minute
	}
	if opts.CheckInInterval <= 0 {
		opts.CheckInInterval = 7 * 24 * time.Hour
	}
	if opts.DefaultDurationWeeks <= 0 {
		opts.DefaultDurationWeeks = 12
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 2
	}
	opts.PortalBaseURL = strings.TrimRight(opts.PortalBaseURL, "/")
	return &deliveryService{
		deps:     deps,
		opts:     opts,
		log:      log.With("component", "DeliveryService"),
		now:      func() time.Time { return time.Now().UTC() },
		newToken: func() string { return uuid.NewString() },
	}
}

func (s *deliveryService) Deliver(ctx context.Context, assignmentID, tenantID primitive.ObjectID) (*DeliveryResult, error) {
	return s.run(ctx, assignmentID, tenantID, false)
}

func (s *deliveryService) Retry(ctx context.Context, assignmentID, tenantID primitive.ObjectID) (*DeliveryResult, error) {
	return s.run(ctx, assignmentID, tenantID, true)
}

func (s *deliveryService) DeliverBatch(ctx context.Context, tenantID primitive.ObjectID, assignmentIDs []primitive.ObjectID) ([]BatchItemResult, error) {
	if len(assignmentIDs) == 0 {
		return nil, validationf("at least one assignment id is required")
	}
	if len(assignmentIDs) > maxBatchSize {
		return nil, validationf("at most %d assignments per batch", maxBatchSize)
	}

	results := make([]BatchItemResult, len(assignmentIDs))
	var g errgroup.Group
	g.SetLimit(s.opts.BatchConcurrency)
	for i, id := range assignmentIDs {
		g.Go(func() error {
			res, err := s.Deliver(ctx, id, tenantID)
			results[i] = BatchItemResult{AssignmentID: id, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.log.Info("Batch delivery finished", "tenant_id", tenantID.Hex(), "total", len(results), "failed", failed)
	return results, nil
}

func (s *deliveryService) run(ctx context.Context, assignmentID, tenantID primitive.ObjectID, retry bool) (*DeliveryResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "delivery.run", trace.WithAttributes(
		attribute.String("assignment.id", assignmentID.Hex()),
		attribute.Bool("delivery.retry", retry),
	))
	defer span.End()

	a, err := s.preflight(ctx, assignmentID, tenantID, retry)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := s.now()
	req := repository.ClaimRequest{
		AssignmentID: a.ID,
		TenantID:     a.TenantID,
		AllowedFrom:  []domain.DeliveryStatus{a.DeliveryStatus},
		LeaseID:      s.newToken(),
		Now:          now,
		ExpiresAt:    now.Add(s.opts.LeaseTTL),
	}
	if a.DeliveryStatus == domain.DeliveryFailed {
		req.ResetTo = domain.DeliveryPending
	}
	claimed, err := s.deps.Assignments.ClaimDelivery(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrAssignmentNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrDeliveryInProgress
		}
		return nil, fmt.Errorf("claim delivery: %w", err)
	}

	// Once claimed the attempt runs to completion or failure; the caller
	// going away does not stop it.
	ctx = context.WithoutCancel(ctx)

	run := &deliveryRun{
		svc:      s,
		a:        claimed,
		leaseID:  req.LeaseID,
		progress: claimed.Delivery,
		log:      s.log.With("assignment_id", claimed.ID.Hex(), "attempt", claimed.Delivery.Attempts),
	}
	res, err := run.execute(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

// preflight reports the caller-facing reason an assignment cannot be
// claimed. The claim itself re-checks all of it atomically.
func (s *deliveryService) preflight(ctx context.Context, assignmentID, tenantID primitive.ObjectID, retry bool) (*domain.PlanAssignment, error) {
	a, err := s.deps.Assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	if a.TenantID != tenantID {
		return nil, ErrAssignmentAccessDenied
	}
	if a.Status != domain.AssignmentActive {
		return nil, ErrAssignmentNotActive
	}
	if retry && a.DeliveryStatus != domain.DeliveryFailed {
		return nil, ErrNotRetryable
	}
	switch a.DeliveryStatus {
	case domain.DeliveryDelivered:
		return nil, ErrAlreadyDelivered
	case domain.DeliverySent:
		// Sent without a live lease means an attempt died before finishing.
		if a.Delivery.LeaseActive(s.now()) {
			return nil, ErrDeliveryInProgress
		}
	case domain.DeliveryPending, domain.DeliveryFailed:
		if a.Delivery.LeaseActive(s.now()) {
			return nil, ErrDeliveryInProgress
		}
	default:
		return nil, newError(ErrConflict, fmt.Sprintf("unknown delivery status %q", a.DeliveryStatus))
	}
	return a, nil
}

// deliveryRun is one claimed attempt. All writes are fenced on leaseID.
type deliveryRun struct {
	svc      *deliveryService
	a        *domain.PlanAssignment
	leaseID  string
	progress domain.DeliveryProgress
	log      *logger.Logger

	plan    *domain.Plan
	version *domain.PlanVersion
	client  *domain.Client
	tenant  *domain.Tenant
}

func (r *deliveryRun) execute(ctx context.Context) (*DeliveryResult, error) {
	p := &r.progress
	resumed := p.Rendered() || p.Sent()
	if resumed {
		r.log.Info("Resuming delivery", "rendered", p.Rendered(), "sent", p.Sent(),
			"portal", p.PortalLinked(), "checkins", p.CheckInsScheduled())
	}

	steps := []struct {
		name domain.DeliveryStep
		fn   func(context.Context) error
	}{
		{domain.StepLoad, r.load},
		{domain.StepRender, r.render},
		{domain.StepSend, r.send},
		{domain.StepPortal, r.linkPortal},
		{domain.StepCheckIns, r.scheduleCheckIns},
		{domain.StepNotification, r.clearNotification},
		{domain.StepFinalize, r.finalize},
	}
	for _, st := range steps {
		if err := r.step(ctx, st.name, st.fn); err != nil {
			return nil, r.fail(ctx, st.name, err)
		}
	}

	r.log.Info("Plan delivered", "channel", r.a.DeliveryChannel, "resumed", resumed)
	return &DeliveryResult{
		AssignmentID:          r.a.ID,
		PDFURL:                p.PDFURL,
		PortalLink:            p.PortalLink,
		DismissedNotification: p.DismissedNotification,
		DeliveredAt:           *r.a.DeliveredAt,
		Resumed:               resumed,
	}, nil
}

func (r *deliveryRun) step(ctx context.Context, name domain.DeliveryStep, fn func(context.Context) error) error {
	ctx, span := observability.Tracer().Start(ctx, "delivery.step."+string(name))
	defer span.End()
	started := time.Now()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	r.log.Debug("Delivery step done", "step", name, "duration", time.Since(started).String())
	return nil
}

// fail records the failure on the assignment and wraps err with its step.
func (r *deliveryRun) fail(ctx context.Context, step domain.DeliveryStep, err error) error {
	r.log.Error("Delivery step failed", "step", step, "error", err)
	if markErr := r.svc.deps.Assignments.MarkFailed(ctx, r.a.ID, r.leaseID, step, err.Error(), r.svc.now()); markErr != nil {
		r.log.Error("Failed to record delivery failure", "step", step, "error", markErr)
	}
	return &StepError{Step: string(step), Err: err}
}

func (r *deliveryRun) save(ctx context.Context) error {
	return r.svc.deps.Assignments.SaveProgress(ctx, r.a.ID, r.leaseID, r.progress)
}

func (r *deliveryRun) load(ctx context.Context) error {
	var err error
	if r.plan, err = r.svc.deps.Plans.GetByID(ctx, r.a.PlanID); err != nil {
		return notFoundAs(err, ErrPlanNotFound)
	}
	if r.plan.TenantID != r.a.TenantID {
		return ErrPlanNotFound
	}
	if r.version, err = r.svc.deps.Plans.GetVersion(ctx, r.a.PlanID, r.a.PlanVersion); err != nil {
		return notFoundAs(err, ErrPlanVersionNotFound)
	}
	if r.client, err = r.svc.deps.Clients.GetByID(ctx, r.a.ClientID); err != nil {
		return notFoundAs(err, ErrClientNotFound)
	}
	if r.client.TenantID != r.a.TenantID {
		return ErrClientNotFound
	}
	if r.tenant, err = r.svc.deps.Tenants.GetByID(ctx, r.a.TenantID); err != nil {
		return notFoundAs(err, ErrTenantNotFound)
	}
	return nil
}

func (r *deliveryRun) render(ctx context.Context) error {
	p := &r.progress
	changed := false
	if p.PortalToken == "" {
		p.PortalToken = r.svc.newToken()
		p.PortalLink = r.svc.portalURL(p.PortalToken)
		changed = true
	}

	switch {
	case !p.Rendered():
		res, err := r.svc.deps.Renderer.Render(ctx, render.Request{
			Plan:     r.plan,
			Version:  r.version,
			Branding: r.tenant.Branding,
		})
		if err != nil {
			return err
		}
		now := r.svc.now()
		p.PDFObjectKey = res.ObjectKey
		p.PDFURL = res.URL
		p.RenderedAt = &now
		changed = true
	case !p.Sent():
		// The stored URL may have expired since the earlier attempt.
		url, err := r.svc.deps.Renderer.URL(ctx, p.PDFObjectKey)
		if err != nil {
			return err
		}
		p.PDFURL = url
		changed = true
	}

	if !changed {
		return nil
	}
	return r.save(ctx)
}

func (r *deliveryRun) send(ctx context.Context) error {
	p := &r.progress
	if !p.Sent() {
		name := r.client.FullName()
		greeting := r.client.FirstName
		if greeting == "" {
			greeting = name
		}
		if err := r.extendLease(ctx); err != nil {
			return err
		}
		// Past the lease another attempt may claim the assignment.
		sendCtx, cancel := context.WithTimeout(ctx, r.svc.opts.LeaseTTL)
		defer cancel()
		receipt, err := r.svc.deps.Sender.Send(sendCtx, r.a.DeliveryChannel, messaging.Message{
			To:      messaging.Recipient{Name: name, Phone: r.client.Phone, Email: r.client.Email},
			Subject: fmt.Sprintf("%s: your plan is ready", r.tenant.Branding.WithDefaults().CompanyName),
			Text:    messaging.WelcomeText(greeting, p.PortalLink),
			Attachment: &messaging.Attachment{
				URL:      p.PDFURL,
				FileName: messaging.PlanFileName(name),
				Caption:  messaging.PlanCaption,
			},
		})
		if err != nil {
			return err
		}
		now := r.svc.now()
		p.SentAt = &now
		p.MessageIDs = receipt.MessageIDs
	} else if r.a.DeliveryStatus != domain.DeliveryPending {
		return nil
	}
	// Also reached when a retry reset the status of an already sent assignment.
	if err := r.svc.deps.Assignments.MarkSent(ctx, r.a.ID, r.leaseID, r.progress); err != nil {
		return fmt.Errorf("record send: %w", err)
	}
	r.a.DeliveryStatus = domain.DeliverySent
	return nil
}

// extendLease renews the lease for a full TTL right before the provider call.
func (r *deliveryRun) extendLease(ctx context.Context) error {
	now := r.svc.now()
	err := r.svc.deps.Assignments.ExtendLease(ctx, r.a.ID, r.leaseID, now, now.Add(r.svc.opts.LeaseTTL))
	if errors.Is(err, repository.ErrConflict) {
		return ErrLeaseLost
	}
	if err != nil {
		return fmt.Errorf("extend lease: %w", err)
	}
	return nil
}

func (r *deliveryRun) linkPortal(ctx context.Context) error {
	p := &r.progress
	if p.PortalLinked() {
		return nil
	}
	now := r.svc.now()
	err := r.svc.deps.PortalLinks.Upsert(ctx, &domain.PortalLink{
		TenantID:     r.a.TenantID,
		AssignmentID: r.a.ID,
		ClientID:     r.a.ClientID,
		PlanID:       r.a.PlanID,
		Token:        p.PortalToken,
		URL:          p.PortalLink,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return err
	}
	p.PortalLinkedAt = &now
	return r.save(ctx)
}

func (r *deliveryRun) scheduleCheckIns(ctx context.Context) error {
	p := &r.progress
	if p.CheckInsScheduled() {
		return nil
	}
	now := r.svc.now()
	rounds := r.version.Content.DurationOrDefault(r.svc.opts.DefaultDurationWeeks)
	count, err := r.svc.deps.CheckIns.UpsertSchedule(ctx, domain.BuildCheckInSchedule(r.a, rounds, r.svc.opts.CheckInInterval, now))
	if err != nil {
		return err
	}
	p.CheckInsScheduledAt = &now
	p.CheckInCount = count
	return r.save(ctx)
}

func (r *deliveryRun) clearNotification(ctx context.Context) error {
	p := &r.progress
	if p.NotificationCleared() {
		return nil
	}
	now := r.svc.now()
	n, err := r.svc.deps.Notifications.Dismiss(ctx, r.a.TenantID, r.a.ClientID, domain.NotificationPlanReady, now)
	if err != nil {
		return err
	}
	p.NotificationClearedAt = &now
	p.DismissedNotification = n > 0
	return r.save(ctx)
}

func (r *deliveryRun) finalize(ctx context.Context) error {
	now := r.svc.now()
	if err := r.svc.deps.Assignments.MarkDelivered(ctx, r.a.ID, r.leaseID, now); err != nil {
		return err
	}
	r.a.DeliveryStatus = domain.DeliveryDelivered
	r.a.DeliveredAt = &now
	return nil
}

func (s *deliveryService) portalURL(token string) string {
	return s.opts.PortalBaseURL + "/portal/" + token
}

func notFoundAs(err, target error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return target
	}
	return err
}
