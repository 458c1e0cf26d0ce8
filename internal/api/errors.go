package api

import (
	"alcyxob/plan-delivery/internal/service"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Step  string `json:"step,omitempty"`
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	var stepErr *service.StepError
	switch {
	case errors.As(err, &stepErr):
		return http.StatusInternalServerError
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func errorBody(err error) ErrorResponse {
	var stepErr *service.StepError
	if errors.As(err, &stepErr) {
		return ErrorResponse{Error: stepErr.Error(), Step: stepErr.Step}
	}
	if statusFor(err) == http.StatusInternalServerError {
		return ErrorResponse{Error: "Internal server error"}
	}
	return ErrorResponse{Error: err.Error()}
}

// respondError writes the mapped status and body and records err on the context.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), errorBody(err))
}

func parseObjectID(c *gin.Context, raw, what string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid "+what+" format")
		return primitive.NilObjectID, false
	}
	return id, true
}

// checkTenant rejects a body tenant_id that differs from the token's tenant.
func checkTenant(c *gin.Context, p principal, bodyTenant string) bool {
	if bodyTenant == "" {
		return true
	}
	if bodyTenant != p.TenantID.Hex() {
		abortWithError(c, http.StatusForbidden, "tenant_id does not match the authenticated tenant")
		return false
	}
	return true
}
