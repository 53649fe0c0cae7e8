// Package oxistore implements repository.Store on an OxiDB server.
package oxistore

import (
	"context"

	"github.com/parisxmas/OxiDB/OxiForms/internal/db"
	"github.com/parisxmas/OxiDB/OxiForms/internal/oxidb"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
)

// repos runs every operation on the client returned by conn: a shared pool
// client outside transactions, the pinned one inside.
type repos struct {
	conn func() *oxidb.Client
}

type Store struct {
	*repos
	pool *db.Pool
}

var _ repository.Store = (*Store)(nil)

func New(pool *db.Pool) *Store {
	return &Store{repos: &repos{conn: pool.Get}, pool: pool}
}

// EnsureIndexes creates the collections' indexes. Existing indexes are
// left alone.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	c := s.pool.Get()
	unique := []struct{ coll, field string }{
		{UsersCollection, "id"},
		{UsersCollection, "email"},
		{FormsCollection, "id"},
		{FormsCollection, "publicId"},
		{SubmissionsCollection, "id"},
	}
	for _, ix := range unique {
		if err := c.CreateUniqueIndex(ctx, ix.coll, ix.field); err != nil && !oxidb.IsAlreadyExists(err) {
			return classify("create index "+ix.coll+"."+ix.field, err)
		}
	}
	plain := []struct{ coll, field string }{
		{UsersCollection, "ownerId"},
		{FormsCollection, "ownerId"},
		{SubmissionsCollection, "formId"},
	}
	for _, ix := range plain {
		if err := c.CreateIndex(ctx, ix.coll, ix.field); err != nil && !oxidb.IsAlreadyExists(err) {
			return classify("create index "+ix.coll+"."+ix.field, err)
		}
	}
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Repos) error) error {
	return s.pool.With(ctx, func(c *oxidb.Client) error {
		tx := &repos{conn: func() *oxidb.Client { return c }}
		var fnErr error
		err := c.WithTransaction(ctx, func() error {
			fnErr = fn(tx)
			return fnErr
		})
		if fnErr != nil {
			return fnErr
		}
		if err != nil {
			return classify("commit", err)
		}
		return nil
	})
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.HealthCheck(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
