// Package oxiblob stores blobs as objects in an OxiDB bucket.
package oxiblob

import (
	"context"
	"fmt"

	"github.com/parisxmas/OxiDB/OxiForms/internal/blob"
	"github.com/parisxmas/OxiDB/OxiForms/internal/db"
	"github.com/parisxmas/OxiDB/OxiForms/internal/oxidb"
)

type Store struct {
	pool   *db.Pool
	bucket string
}

var _ blob.Store = (*Store)(nil)

func New(pool *db.Pool, bucket string) *Store {
	return &Store{pool: pool, bucket: bucket}
}

// EnsureBucket creates the bucket unless it exists.
func (s *Store) EnsureBucket(ctx context.Context) error {
	if err := s.pool.Get().CreateBucket(ctx, s.bucket); err != nil && !oxidb.IsAlreadyExists(err) {
		return fmt.Errorf("oxiblob: create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.pool.Get().PutObject(ctx, s.bucket, key, data, contentType, nil); err != nil {
		return fmt.Errorf("oxiblob: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, _, err := s.pool.Get().GetObject(ctx, s.bucket, key)
	if oxidb.IsNotFound(err) {
		return nil, blob.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("oxiblob: get %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.pool.Get().DeleteObject(ctx, s.bucket, key)
	if oxidb.IsNotFound(err) {
		return blob.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("oxiblob: delete %s: %w", key, err)
	}
	return nil
}
