package oxistore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parisxmas/OxiDB/OxiForms/internal/approval"
	"github.com/parisxmas/OxiDB/OxiForms/internal/db"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/oxidb/oxidbtest"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository/repotest"
)

func newStore(t *testing.T) (*Store, *oxidbtest.Server) {
	t.Helper()
	srv := oxidbtest.Start(t)
	pool, err := db.NewPool(context.Background(), srv.Host(), srv.Port(), 2, logger.NewForTests())
	require.NoError(t, err)
	s := New(pool)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureIndexes(context.Background()))
	return s, srv
}

func TestStoreContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Store {
		s, _ := newStore(t)
		return s
	})
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Should be idempotent when indexes already exist", func(t *testing.T) {
		s, srv := newStore(t)
		srv.FailNext("create_unique_index", "index already exists")
		assert.NoError(t, s.EnsureIndexes(ctx))
	})

	t.Run("Should not store the server's numeric id on the record", func(t *testing.T) {
		s, srv := newStore(t)
		require.NoError(t, s.CreateUser(ctx, repotest.Admin("u1", "a@example.com", approval.Pending)))
		docs := srv.Docs(UsersCollection)
		require.Len(t, docs, 1)
		assert.Equal(t, "u1", docs[0]["id"])

		u, err := s.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", u.ID)
	})

	t.Run("Should wrap server failures without classifying them", func(t *testing.T) {
		s, srv := newStore(t)
		srv.FailNext("find_one", "disk full")
		_, err := s.GetForm(ctx, "f1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, repository.ErrNotFound)
		assert.Contains(t, err.Error(), "disk full")
	})

	t.Run("Should report a failed commit", func(t *testing.T) {
		s, srv := newStore(t)
		srv.FailNext("commit_tx", "write conflict")
		err := s.WithTx(ctx, func(tx repository.Repos) error {
			return tx.CreateForm(ctx, repotest.Form("f1", "a1", "2024-01-01T00:00:00Z"))
		})
		require.Error(t, err)
		_, err = s.GetForm(ctx, "f1")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Should pass the health check", func(t *testing.T) {
		s, _ := newStore(t)
		assert.NoError(t, s.HealthCheck(ctx))
	})
}
