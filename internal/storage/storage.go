package storage

import (
	"context"
	"errors"
	"time"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

// MaxPresignedURLExpiry is the SigV4 ceiling for presigned URLs.
const MaxPresignedURLExpiry = 7 * 24 * time.Hour

var ErrObjectNotFound = errors.New("object not found in storage")

// FileStorage defines the interface for object storage operations.
type FileStorage interface {
	// PutObject uploads body under objectKey, replacing any existing object.
	PutObject(ctx context.Context, objectKey string, body []byte, contentType string) error

	// StatObject returns metadata or ErrObjectNotFound.
	StatObject(ctx context.Context, objectKey string) (*ObjectMetadata, error)

	// GeneratePresignedDownloadURL creates a temporary URL that allows GET requests
	// for downloading/viewing an object directly from the storage provider.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)

	// DeleteObject removes an object from the storage provider.
	DeleteObject(ctx context.Context, objectKey string) error
}

type ObjectMetadata struct {
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

func clampExpiry(expires time.Duration) time.Duration {
	if expires <= 0 {
		return DefaultPresignedURLExpiry
	}
	if expires > MaxPresignedURLExpiry {
		return MaxPresignedURLExpiry
	}
	return expires
}
