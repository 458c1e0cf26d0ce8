package service

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/render"
	"alcyxob/plan-delivery/internal/repository"
	"context"
	"strings"
	"time"
)

// PortalView is the unauthenticated client-facing view of a delivered plan.
type PortalView struct {
	PlanName    string           `json:"planName"`
	ClientName  string           `json:"clientName"`
	PDFURL      string           `json:"pdfUrl"`
	StartDate   time.Time        `json:"startDate"`
	DeliveredAt *time.Time       `json:"deliveredAt,omitempty"`
	CheckIns    []domain.CheckIn `json:"checkIns"`
}

// --- Service Interface ---
type PortalService interface {
	Resolve(ctx context.Context, token string) (*PortalView, error)
}

// --- Service Implementation ---
type portalService struct {
	links       repository.PortalLinkRepository
	assignments repository.PlanAssignmentRepository
	plans       repository.TrainingPlanRepository
	clients     repository.ClientRepository
	checkIns    repository.CheckInRepository
	renderer    render.Renderer
	log         *logger.Logger
}

func NewPortalService(
	links repository.PortalLinkRepository,
	assignments repository.PlanAssignmentRepository,
	plans repository.TrainingPlanRepository,
	clients repository.ClientRepository,
	checkIns repository.CheckInRepository,
	renderer render.Renderer,
	log *logger.Logger,
) PortalService {
	return &portalService{
		links:       links,
		assignments: assignments,
		plans:       plans,
		clients:     clients,
		checkIns:    checkIns,
		renderer:    renderer,
		log:         log.With("component", "PortalService"),
	}
}

// Resolve looks up a portal token and issues a fresh download URL. Tokens of
// cancelled assignments resolve as not found.
func (s *portalService) Resolve(ctx context.Context, token string) (*PortalView, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrPortalLinkNotFound
	}
	link, err := s.links.GetByToken(ctx, token)
	if err != nil {
		return nil, notFoundAs(err, ErrPortalLinkNotFound)
	}
	a, err := s.assignments.GetByID(ctx, link.AssignmentID)
	if err != nil {
		return nil, notFoundAs(err, ErrPortalLinkNotFound)
	}
	if a.Status == domain.AssignmentCancelled || a.Delivery.PDFObjectKey == "" {
		return nil, ErrPortalLinkNotFound
	}

	plan, err := s.plans.GetByID(ctx, a.PlanID)
	if err != nil {
		return nil, notFoundAs(err, ErrPlanNotFound)
	}
	client, err := s.clients.GetByID(ctx, a.ClientID)
	if err != nil {
		return nil, notFoundAs(err, ErrClientNotFound)
	}
	url, err := s.renderer.URL(ctx, a.Delivery.PDFObjectKey)
	if err != nil {
		return nil, err
	}
	checkIns, err := s.checkIns.ListByAssignment(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return &PortalView{
		PlanName:    plan.Name,
		ClientName:  client.FirstName,
		PDFURL:      url,
		StartDate:   a.StartDate,
		DeliveredAt: a.DeliveredAt,
		CheckIns:    checkIns,
	}, nil
}
