package service

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/repository"
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CreateClientInput struct {
	TenantID   primitive.ObjectID
	TrainerID  primitive.ObjectID
	ClientCode string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
}

// --- Service Interface ---
type ClientService interface {
	Create(ctx context.Context, in CreateClientInput) (*domain.Client, error)
	Get(ctx context.Context, clientID, tenantID primitive.ObjectID) (*domain.Client, error)
	// MarkIntakeComplete raises the plan-ready notification that delivery later clears.
	MarkIntakeComplete(ctx context.Context, clientID, tenantID primitive.ObjectID) (*domain.Notification, error)
}

// --- Service Implementation ---
type clientService struct {
	clients       repository.ClientRepository
	notifications repository.NotificationRepository
	log           *logger.Logger
	now           func() time.Time
}

func NewClientService(clients repository.ClientRepository, notifications repository.NotificationRepository, log *logger.Logger) ClientService {
	return &clientService{
		clients:       clients,
		notifications: notifications,
		log:           log.With("component", "ClientService"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *clientService) Create(ctx context.Context, in CreateClientInput) (*domain.Client, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.TenantID.IsZero() || in.FirstName == "" {
		return nil, validationf("tenant and first name are required")
	}
	if in.Email == "" && in.Phone == "" {
		return nil, validationf("client needs an email address or a phone number")
	}
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		return nil, validationf("invalid email address")
	}

	client := &domain.Client{
		TenantID:   in.TenantID,
		ClientCode: strings.TrimSpace(in.ClientCode),
		FirstName:  in.FirstName,
		LastName:   strings.TrimSpace(in.LastName),
		Email:      in.Email,
		Phone:      strings.TrimSpace(in.Phone),
	}
	if !in.TrainerID.IsZero() {
		trainer := in.TrainerID
		client.TrainerID = &trainer
	}
	if _, err := s.clients.Create(ctx, client); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(ErrConflict, "client code already in use")
		}
		return nil, err
	}
	s.log.Info("Client created", "client_id", client.ID.Hex())
	return client, nil
}

func (s *clientService) Get(ctx context.Context, clientID, tenantID primitive.ObjectID) (*domain.Client, error) {
	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, notFoundAs(err, ErrClientNotFound)
	}
	if client.TenantID != tenantID {
		return nil, ErrClientNotFound
	}
	return client, nil
}

func (s *clientService) MarkIntakeComplete(ctx context.Context, clientID, tenantID primitive.ObjectID) (*domain.Notification, error) {
	client, err := s.Get(ctx, clientID, tenantID)
	if err != nil {
		return nil, err
	}
	n := &domain.Notification{
		TenantID:        tenantID,
		Type:            domain.NotificationPlanReady,
		RelatedEntityID: client.ID,
		Message:         client.FullName() + " finished intake and is waiting for a plan",
		CreatedAt:       s.now(),
	}
	if _, err := s.notifications.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}
