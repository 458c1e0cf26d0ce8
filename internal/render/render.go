package render

import (
	"alcyxob/plan-delivery/internal/domain"
	"context"
	"fmt"
)

// Request is everything that affects the rendered bytes. Two requests with
// the same plan version and branding version render identically.
type Request struct {
	Plan     *domain.Plan
	Version  *domain.PlanVersion
	Branding domain.Branding
}

type Result struct {
	ObjectKey string
	URL       string
	Checksum  string
	Size      int64
	Cached    bool
}

// Renderer turns a plan version into a downloadable, branded PDF.
type Renderer interface {
	Render(ctx context.Context, req Request) (*Result, error)
	// URL issues a fresh download URL for an already rendered object.
	URL(ctx context.Context, objectKey string) (string, error)
}

// Error is returned for every renderer failure so callers can tell it apart
// from transport errors.
type Error struct {
	Op  string // layout, banner, encode, upload, presign
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ObjectKey is the deterministic storage key for a rendered plan.
func ObjectKey(req Request) string {
	return fmt.Sprintf("plans/%s/%s/v%d-b%d.pdf",
		req.Plan.TenantID.Hex(), req.Plan.ID.Hex(), req.Version.Version, req.Branding.Version)
}

func validate(req Request) error {
	if req.Plan == nil || req.Version == nil {
		return &Error{Op: "layout", Err: fmt.Errorf("plan and version are required")}
	}
	if req.Version.PlanID != req.Plan.ID {
		return &Error{Op: "layout", Err: fmt.Errorf("version %d does not belong to plan %s", req.Version.Version, req.Plan.ID.Hex())}
	}
	return nil
}
