package render

import (
	"alcyxob/plan-delivery/internal/domain"
	"alcyxob/plan-delivery/internal/kv"
	"alcyxob/plan-delivery/internal/logger"
	"alcyxob/plan-delivery/internal/repository"
	"alcyxob/plan-delivery/internal/storage"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

const contentTypePDF = "application/pdf"

type Options struct {
	URLExpiry time.Duration
	CacheTTL  time.Duration
}

// PlanRenderer renders through a two-level cache: the KV store remembers
// object keys already confirmed in storage, the artifact collection is the
// durable index.
type PlanRenderer struct {
	files     storage.FileStorage
	artifacts repository.ArtifactRepository
	cache     kv.Store
	log       *logger.Logger
	opts      Options
	build     func(Request) ([]byte, error)
}

func NewPlanRenderer(files storage.FileStorage, artifacts repository.ArtifactRepository, cache kv.Store, log *logger.Logger, opts Options) *PlanRenderer {
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = storage.MaxPresignedURLExpiry
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	return &PlanRenderer{
		files:     files,
		artifacts: artifacts,
		cache:     cache,
		log:       log.With("component", "PlanRenderer"),
		opts:      opts,
		build:     BuildPDF,
	}
}

func (r *PlanRenderer) Render(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	req.Branding = req.Branding.WithDefaults()
	key := ObjectKey(req)

	if res, ok := r.fromCache(ctx, req, key); ok {
		return res, nil
	}

	body, err := r.build(req)
	if err != nil {
		var rerr *Error
		if errors.As(err, &rerr) {
			return nil, rerr
		}
		return nil, &Error{Op: "layout", Err: err}
	}
	sum := sha256.Sum256(body)
	checksum := hex.EncodeToString(sum[:])

	if err := r.files.PutObject(ctx, key, body, contentTypePDF); err != nil {
		return nil, &Error{Op: "upload", Err: err}
	}

	artifact := &domain.PlanArtifact{
		TenantID:        req.Plan.TenantID,
		PlanID:          req.Plan.ID,
		PlanVersion:     req.Version.Version,
		BrandingVersion: req.Branding.Version,
		ObjectKey:       key,
		ContentType:     contentTypePDF,
		Size:            int64(len(body)),
		Checksum:        checksum,
	}
	if _, err := r.artifacts.Create(ctx, artifact); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		// The object is uploaded under its deterministic key; a missing index
		// row only costs a re-render next time.
		r.log.Warn("Failed to index rendered plan", "key", key, "error", err)
	}
	r.remember(ctx, key)

	url, err := r.URL(ctx, key)
	if err != nil {
		return nil, err
	}
	r.log.Info("Rendered plan", "key", key, "bytes", len(body))
	return &Result{ObjectKey: key, URL: url, Checksum: checksum, Size: int64(len(body))}, nil
}

func (r *PlanRenderer) URL(ctx context.Context, objectKey string) (string, error) {
	url, err := r.files.GeneratePresignedDownloadURL(ctx, objectKey, r.opts.URLExpiry)
	if err != nil {
		return "", &Error{Op: "presign", Err: err}
	}
	return url, nil
}

func (r *PlanRenderer) fromCache(ctx context.Context, req Request, key string) (*Result, bool) {
	if _, ok, err := r.cache.Get(ctx, cacheKey(key)); err != nil {
		r.log.Warn("Render cache lookup failed", "key", key, "error", err)
	} else if ok {
		return r.cachedResult(ctx, key, "", 0)
	}

	artifact, err := r.artifacts.Find(ctx, req.Plan.ID, req.Version.Version, req.Branding.Version)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			r.log.Warn("Artifact lookup failed", "key", key, "error", err)
		}
		return nil, false
	}
	if _, err := r.files.StatObject(ctx, artifact.ObjectKey); err != nil {
		// Index row without an object: render again.
		return nil, false
	}
	r.remember(ctx, artifact.ObjectKey)
	return r.cachedResult(ctx, artifact.ObjectKey, artifact.Checksum, artifact.Size)
}

func (r *PlanRenderer) cachedResult(ctx context.Context, key, checksum string, size int64) (*Result, bool) {
	url, err := r.URL(ctx, key)
	if err != nil {
		return nil, false
	}
	return &Result{ObjectKey: key, URL: url, Checksum: checksum, Size: size, Cached: true}, true
}

func (r *PlanRenderer) remember(ctx context.Context, key string) {
	if err := r.cache.Set(ctx, cacheKey(key), "1", r.opts.CacheTTL); err != nil {
		r.log.Warn("Render cache write failed", "key", key, "error", err)
	}
}

func cacheKey(objectKey string) string {
	return "render:" + objectKey
}
