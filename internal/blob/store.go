// Package blob resolves uploaded file parts into schema.FileRef values and
// owns their lifecycle in a Store.
package blob

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("blob: not found")

// Store is the byte store behind file fields. Keys are slash-separated.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get fails with ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete fails with ErrNotFound for a missing key.
	Delete(ctx context.Context, key string) error
}
