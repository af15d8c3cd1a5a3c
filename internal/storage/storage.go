// Package storage publishes finished tracks to S3-compatible object storage.
package storage

import (
	"context"
	"time"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified *time.Time
}

// UploadOptions conveys upload metadata.
type UploadOptions struct {
	// ContentType overrides the type derived from the file extension.
	ContentType string
	// Metadata is stored as x-amz-meta-* headers on the object.
	Metadata         map[string]string
	ProgressCallback func(done, total int64)
}

// Service uploads finished tracks to remote object storage.
type Service interface {
	UploadFile(ctx context.Context, localPath, key string, opts UploadOptions) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	ObjectKey(parts ...string) string
}
