package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a service wraps exactly one of these
// so the HTTP layer can map it with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrUpstream   = errors.New("upstream failure")
)

// kindError is a service error with a caller-facing message.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func validationf(format string, args ...interface{}) error {
	return newError(ErrValidation, fmt.Sprintf(format, args...))
}

// --- Error Definitions ---
var (
	ErrAssignmentNotFound     = newError(ErrNotFound, "assignment not found")
	ErrAssignmentAccessDenied = newError(ErrForbidden, "assignment belongs to another tenant")
	ErrAssignmentNotActive    = newError(ErrConflict, "assignment is not active")
	ErrAlreadyDelivered       = newError(ErrConflict, "plan already delivered")
	ErrDeliveryInProgress     = newError(ErrConflict, "delivery already in progress")
	ErrNotRetryable           = newError(ErrConflict, "only failed deliveries can be retried")
	ErrLeaseLost              = newError(ErrConflict, "delivery lease expired before send")

	ErrPlanNotFound        = newError(ErrNotFound, "plan not found")
	ErrPlanVersionNotFound = newError(ErrNotFound, "plan version not found")
	ErrClientNotFound      = newError(ErrNotFound, "client not found")
	ErrTenantNotFound      = newError(ErrNotFound, "tenant not found")
	ErrPortalLinkNotFound  = newError(ErrNotFound, "portal link not found")

	ErrWorkflowNotFound     = newError(ErrNotFound, "approval workflow not found")
	ErrWorkflowAccessDenied = newError(ErrForbidden, "approval workflow belongs to another tenant")
	ErrWorkflowDecided      = newError(ErrConflict, "approval workflow already decided")
	ErrWorkflowPending      = newError(ErrConflict, "approval workflow is still pending")
	ErrPendingReviewExists  = newError(ErrConflict, "entity already has a pending review")
	ErrEntityNotFound       = newError(ErrNotFound, "catalog entity not found")
	ErrExerciseNotFound     = newError(ErrNotFound, "exercise not found")
)

// StepError reports which external step of a multi-step operation failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Is makes every StepError an ErrUpstream.
func (e *StepError) Is(target error) bool { return target == ErrUpstream }
