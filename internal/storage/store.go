package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object_not_found")

// ObjectStore holds finished export artifacts.
type ObjectStore interface {
	// Upload streams r to key and returns the bytes written.
	Upload(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	// SignedURL returns a time-limited download link for key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
