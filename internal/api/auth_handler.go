package api

import (
	"alcyxob/plan-delivery/internal/domain"
	"net/http"

	"github.com/gin-gonic/gin"
)

// MeResponse describes the caller behind the bearer token.
type MeResponse struct {
	MemberID string      `json:"memberId"`
	TenantID string      `json:"tenantId"`
	Role     domain.Role `json:"role"`
}

// Me godoc
// @Summary Describe the authenticated caller
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} MeResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /me [get]
func Me(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, MeResponse{MemberID: p.MemberID.Hex(), TenantID: p.TenantID.Hex(), Role: p.Role})
}
