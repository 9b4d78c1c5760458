package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned when a key does not resolve to a stored object.
var ErrObjectNotFound = errors.New("storage: object not found")

// Backend persists uploaded objects and hands out URLs for them.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	URL(ctx context.Context, key string) (string, error)
	KeyFromURL(rawURL string) (string, error)
	Delete(ctx context.Context, key string) error
}
