package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrObjectNotFound is returned by backends when a key does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectExists is returned by Create when the key is already taken.
	ErrObjectExists = errors.New("object already exists")
)

// ObjectStorage defines common object operations across backends.
// Create never overwrites an existing key and Delete succeeds for missing keys.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Create(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}
