package oxiblob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parisxmas/OxiDB/OxiForms/internal/blob"
	"github.com/parisxmas/OxiDB/OxiForms/internal/db"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/oxidb/oxidbtest"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	srv := oxidbtest.Start(t)
	pool, err := db.NewPool(ctx, srv.Host(), srv.Port(), 1, logger.NewForTests())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool, "files")
	require.NoError(t, s.EnsureBucket(ctx))
	require.NoError(t, s.EnsureBucket(ctx), "existing bucket is fine")

	t.Run("Should put, get and delete objects", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "forms/f1/u/cv.pdf", []byte("pdf"), "application/pdf"))
		assert.True(t, srv.Object("files", "forms/f1/u/cv.pdf"))

		data, err := s.Get(ctx, "forms/f1/u/cv.pdf")
		require.NoError(t, err)
		assert.Equal(t, []byte("pdf"), data)

		require.NoError(t, s.Delete(ctx, "forms/f1/u/cv.pdf"))
		assert.False(t, srv.Object("files", "forms/f1/u/cv.pdf"))
	})

	t.Run("Should map missing objects to ErrNotFound", func(t *testing.T) {
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, blob.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "nope"), blob.ErrNotFound)
	})

	t.Run("Should surface other server errors", func(t *testing.T) {
		srv.FailNext("put_object", "quota exceeded")
		err := s.Put(ctx, "k", []byte("x"), "")
		require.Error(t, err)
		assert.NotErrorIs(t, err, blob.ErrNotFound)
	})
}
