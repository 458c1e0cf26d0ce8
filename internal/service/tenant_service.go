package service

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/render"
	"alcyxob/plan-delivery/internal/repository"
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Service Interface ---
type TenantService interface {
	GetBranding(ctx context.Context, tenantID primitive.ObjectID) (*domain.Branding, error)
	// UpdateBranding bumps the branding version, so later deliveries re-render.
	UpdateBranding(ctx context.Context, tenantID primitive.ObjectID, b domain.Branding) (*domain.Branding, error)
}

// --- Service Implementation ---
type tenantService struct {
	tenants repository.TenantRepository
	log     *logger.Logger
}

func NewTenantService(tenants repository.TenantRepository, log *logger.Logger) TenantService {
	return &tenantService{tenants: tenants, log: log.With("component", "TenantService")}
}

func (s *tenantService) GetBranding(ctx context.Context, tenantID primitive.ObjectID) (*domain.Branding, error) {
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, notFoundAs(err, ErrTenantNotFound)
	}
	b := t.Branding.WithDefaults()
	return &b, nil
}

func (s *tenantService) UpdateBranding(ctx context.Context, tenantID primitive.ObjectID, b domain.Branding) (*domain.Branding, error) {
	b.CompanyName = strings.TrimSpace(b.CompanyName)
	b.PrimaryColor = strings.TrimSpace(b.PrimaryColor)
	if b.PrimaryColor != "" {
		if _, err := render.ParseHexColor(b.PrimaryColor); err != nil {
			return nil, validationf("primary color must be a hex color like #00C26A")
		}
	}
	if len(b.CompanyName) > 80 || len(b.Tagline) > 120 {
		return nil, validationf("company name or tagline too long")
	}
	t, err := s.tenants.UpdateBranding(ctx, tenantID, b)
	if err != nil {
		return nil, notFoundAs(err, ErrTenantNotFound)
	}
	s.log.Info("Branding updated", "tenant_id", tenantID.Hex(), "version", t.Branding.Version)
	out := t.Branding.WithDefaults()
	return &out, nil
}
