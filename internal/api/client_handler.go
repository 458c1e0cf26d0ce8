package api

import (
	"alcyxob/plan-delivery/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

type ClientHandler struct {
	clientService service.ClientService
}

func NewClientHandler(clientService service.ClientService) *ClientHandler {
	return &ClientHandler{clientService: clientService}
}

// --- DTOs ---
type CreateClientRequest struct {
	ClientCode string `json:"clientCode"`
	FirstName  string `json:"firstName" binding:"required"`
	LastName   string `json:"lastName"`
	Email      string `json:"email" binding:"omitempty,email"`
	Phone      string `json:"phone"`
}

// CreateClient godoc
// @Summary Add a client to the tenant
// @Description A client needs an email or a phone number to be reachable.
// @Tags Clients
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param client body CreateClientRequest true "Client details"
// @Success 201 {object} domain.Client
// @Failure 400 {object} ErrorResponse "Invalid input"
// @Router /clients [post]
func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	client, err := h.clientService.Create(c.Request.Context(), service.CreateClientInput{
		TenantID:   p.TenantID,
		TrainerID:  p.MemberID,
		ClientCode: req.ClientCode,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Phone:      req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

// GetClient godoc
// @Summary Get a client
// @Tags Clients
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client ID"
// @Success 200 {object} domain.Client
// @Failure 404 {object} ErrorResponse "Client not found"
// @Router /clients/{clientId} [get]
func (h *ClientHandler) GetClient(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	clientID, ok := parseObjectID(c, c.Param("clientId"), "client ID")
	if !ok {
		return
	}
	client, err := h.clientService.Get(c.Request.Context(), clientID, p.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// CompleteIntake godoc
// @Summary Mark a client's intake complete
// @Description Raises the "plan ready" dashboard notification that the next delivery dismisses.
// @Tags Clients
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client ID"
// @Success 201 {object} domain.Notification
// @Failure 404 {object} ErrorResponse "Client not found"
// @Router /clients/{clientId}/intake-complete [post]
func (h *ClientHandler) CompleteIntake(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	clientID, ok := parseObjectID(c, c.Param("clientId"), "client ID")
	if !ok {
		return
	}
	n, err := h.clientService.MarkIntakeComplete(c.Request.Context(), clientID, p.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}
