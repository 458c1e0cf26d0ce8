package api

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

// PortalHandler serves the unauthenticated client portal and tenant branding.
type PortalHandler struct {
	portalService service.PortalService
	tenantService service.TenantService
}

func NewPortalHandler(portalService service.PortalService, tenantService service.TenantService) *PortalHandler {
	return &PortalHandler{portalService: portalService, tenantService: tenantService}
}

type BrandingRequest struct {
	CompanyName  string `json:"companyName" binding:"max=120"`
	PrimaryColor string `json:"primaryColor"`
	Tagline      string `json:"tagline" binding:"max=200"`
}

// ResolvePortal godoc
// @Summary Open a client portal link
// @Description Public. Returns the delivered plan summary, a freshly signed PDF URL and the check-in schedule.
// @Tags Portal
// @Produce json
// @Param token path string true "Portal token"
// @Success 200 {object} service.PortalView
// @Failure 404 {object} ErrorResponse "Unknown or inactive link"
// @Router /portal/{token} [get]
func (h *PortalHandler) ResolvePortal(c *gin.Context) {
	token := c.Param("token")
	if len(token) > 64 {
		abortWithError(c, http.StatusNotFound, "Portal link not found")
		return
	}
	view, err := h.portalService.Resolve(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, view)
}

// GetBranding godoc
// @Summary Get the tenant's PDF branding
// @Tags Tenant
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.Branding
// @Router /tenant/branding [get]
func (h *PortalHandler) GetBranding(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	b, err := h.tenantService.GetBranding(c.Request.Context(), p.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// UpdateBranding godoc
// @Summary Update the tenant's PDF branding
// @Description Bumps the branding version so the next delivery re-renders.
// @Tags Tenant
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param branding body BrandingRequest true "Branding"
// @Success 200 {object} domain.Branding
// @Failure 400 {object} ErrorResponse "Invalid color"
// @Router /tenant/branding [put]
func (h *PortalHandler) UpdateBranding(c *gin.Context) {
	var req BrandingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	b, err := h.tenantService.UpdateBranding(c.Request.Context(), p.TenantID, domain.Branding{
		CompanyName:  req.CompanyName,
		PrimaryColor: req.PrimaryColor,
		Tagline:      req.Tagline,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
