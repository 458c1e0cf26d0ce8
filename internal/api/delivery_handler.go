package api

import (
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DeliveryHandler struct {
	deliveryService service.DeliveryService
	log             *logger.Logger
}

func NewDeliveryHandler(deliveryService service.DeliveryService, log *logger.Logger) *DeliveryHandler {
	return &DeliveryHandler{deliveryService: deliveryService, log: log}
}

// --- DTOs ---
type DeliverRequest struct {
	AssignmentID  string   `json:"assignment_id"`
	AssignmentIDs []string `json:"assignment_ids"`
	TenantID      string   `json:"tenant_id"`
}

type DeliverResponse struct {
	Success               bool   `json:"success"`
	AssignmentID          string `json:"assignment_id"`
	PDFURL                string `json:"pdf_url"`
	PortalLink            string `json:"portal_link"`
	DismissedNotification bool   `json:"dismissed_notification"`
	Resumed               bool   `json:"resumed,omitempty"`
}

type BatchItemResponse struct {
	AssignmentID          string `json:"assignment_id"`
	Success               bool   `json:"success"`
	PDFURL                string `json:"pdf_url,omitempty"`
	PortalLink            string `json:"portal_link,omitempty"`
	DismissedNotification bool   `json:"dismissed_notification,omitempty"`
	Error                 string `json:"error,omitempty"`
	Step                  string `json:"step,omitempty"`
}

type BatchDeliverResponse struct {
	Success    bool                `json:"success"`
	Total      int                 `json:"total"`
	Successful int                 `json:"successful"`
	Failed     int                 `json:"failed"`
	Results    []BatchItemResponse `json:"results"`
}

func mapDeliveryResult(r *service.DeliveryResult) DeliverResponse {
	return DeliverResponse{
		Success:               true,
		AssignmentID:          r.AssignmentID.Hex(),
		PDFURL:                r.PDFURL,
		PortalLink:            r.PortalLink,
		DismissedNotification: r.DismissedNotification,
		Resumed:               r.Resumed,
	}
}

// Deliver godoc
// @Summary Deliver one or many plan assignments
// @Description Renders the plan PDF, sends it to the client on the assignment's channel, links the client portal and schedules check-ins.
// @Description Send "assignment_ids" instead of "assignment_id" for a batch; each assignment is delivered independently.
// @Tags Delivery
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replays the stored response for a repeated key"
// @Param request body DeliverRequest true "Assignment(s) to deliver"
// @Success 200 {object} DeliverResponse "Delivered (or BatchDeliverResponse for a batch)"
// @Failure 400 {object} ErrorResponse "Invalid input"
// @Failure 403 {object} ErrorResponse "Assignment belongs to another tenant"
// @Failure 404 {object} ErrorResponse "Assignment not found"
// @Failure 409 {object} ErrorResponse "Already delivered, not active, or a delivery is in progress"
// @Failure 500 {object} ErrorResponse "A delivery step failed; step names which one"
// @Router /plans/assignments/deliver [post]
func (h *DeliveryHandler) Deliver(c *gin.Context) {
	p, req, ok := h.bind(c)
	if !ok {
		return
	}

	if len(req.AssignmentIDs) > 0 {
		h.deliverBatch(c, p, req.AssignmentIDs)
		return
	}
	if req.AssignmentID == "" {
		abortWithError(c, http.StatusBadRequest, "assignment_id or assignment_ids is required")
		return
	}
	assignmentID, ok := parseObjectID(c, req.AssignmentID, "assignment_id")
	if !ok {
		return
	}

	result, err := h.deliveryService.Deliver(c.Request.Context(), assignmentID, p.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapDeliveryResult(result))
}

// Retry godoc
// @Summary Retry a failed delivery
// @Description Resumes a failed delivery from the first step that has not completed.
// @Tags Delivery
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body DeliverRequest true "Assignment to retry"
// @Success 200 {object} DeliverResponse
// @Failure 400 {object} ErrorResponse "Invalid input"
// @Failure 404 {object} ErrorResponse "Assignment not found"
// @Failure 409 {object} ErrorResponse "Assignment is not in failed state"
// @Failure 500 {object} ErrorResponse "A delivery step failed again"
// @Router /plans/assignments/deliver [patch]
func (h *DeliveryHandler) Retry(c *gin.Context) {
	p, req, ok := h.bind(c)
	if !ok {
		return
	}
	if req.AssignmentID == "" {
		abortWithError(c, http.StatusBadRequest, "assignment_id is required")
		return
	}
	assignmentID, ok := parseObjectID(c, req.AssignmentID, "assignment_id")
	if !ok {
		return
	}

	result, err := h.deliveryService.Retry(c.Request.Context(), assignmentID, p.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapDeliveryResult(result))
}

func (h *DeliveryHandler) bind(c *gin.Context) (principal, DeliverRequest, bool) {
	var req DeliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return principal{}, req, false
	}
	p, ok := mustPrincipal(c)
	if !ok {
		return principal{}, req, false
	}
	if !checkTenant(c, p, req.TenantID) {
		return principal{}, req, false
	}
	return p, req, true
}

func (h *DeliveryHandler) deliverBatch(c *gin.Context, p principal, rawIDs []string) {
	ids := make([]primitive.ObjectID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, ok := parseObjectID(c, raw, "assignment_ids entry")
		if !ok {
			return
		}
		ids = append(ids, id)
	}

	items, err := h.deliveryService.DeliverBatch(c.Request.Context(), p.TenantID, ids)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := BatchDeliverResponse{Total: len(items), Results: make([]BatchItemResponse, 0, len(items))}
	for _, item := range items {
		out := BatchItemResponse{AssignmentID: item.AssignmentID.Hex()}
		if item.Err != nil {
			body := errorBody(item.Err)
			out.Error, out.Step = body.Error, body.Step
			resp.Failed++
		} else {
			out.Success = true
			out.PDFURL = item.Result.PDFURL
			out.PortalLink = item.Result.PortalLink
			out.DismissedNotification = item.Result.DismissedNotification
			resp.Successful++
		}
		resp.Results = append(resp.Results, out)
	}
	resp.Success = resp.Failed == 0
	if resp.Failed > 0 {
		h.log.Warn("Batch delivery finished with failures", "tenant_id", p.TenantID.Hex(), "total", resp.Total, "failed", resp.Failed)
	}
	c.JSON(http.StatusOK, resp)
}
