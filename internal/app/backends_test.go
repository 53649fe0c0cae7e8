package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parisxmas/OxiDB/OxiForms/internal/blob/fsblob"
	"github.com/parisxmas/OxiDB/OxiForms/internal/blob/oxiblob"
	"github.com/parisxmas/OxiDB/OxiForms/internal/config"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/oxidb/oxidbtest"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository/oxistore"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository/sqlstore"
)

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	log := logger.NewForTests()

	t.Run("Should run everything on OxiDB over one pool", func(t *testing.T) {
		srv := oxidbtest.Start(t)
		cfg := config.Default()
		cfg.Store.Driver = "oxidb"
		cfg.Blob.Driver = "oxidb"
		cfg.OxiDB.Host, cfg.OxiDB.Port = srv.Host(), srv.Port()
		require.NoError(t, config.Validate(cfg))

		b, err := OpenBackends(ctx, cfg, log)
		require.NoError(t, err)
		defer b.Close()
		assert.IsType(t, &oxistore.Store{}, b.Store)
		assert.IsType(t, &oxiblob.Store{}, b.Blobs)

		require.NoError(t, b.Prepare(ctx))
		assert.Positive(t, srv.Calls("create_unique_index"))
		assert.Equal(t, 1, srv.Calls("create_bucket"))
		// a second run finds everything in place
		require.NoError(t, b.Prepare(ctx))
		require.NoError(t, b.Blobs.Put(ctx, "forms/f1/k/a.txt", []byte("hi"), "text/plain"))
		assert.True(t, srv.Object(cfg.Blob.Bucket, "forms/f1/k/a.txt"))
		assert.NoError(t, b.Store.HealthCheck(ctx))
	})

	t.Run("Should mix a SQL store with filesystem blobs", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.DSN = "file:" + filepath.Join(t.TempDir(), "b.db")
		cfg.Blob.Dir = t.TempDir()

		b, err := OpenBackends(ctx, cfg, log)
		require.NoError(t, err)
		defer b.Close()
		assert.IsType(t, &sqlstore.Store{}, b.Store)
		assert.IsType(t, &fsblob.Store{}, b.Blobs)
		require.NoError(t, b.Prepare(ctx))
		require.NoError(t, b.Prepare(ctx))
		n, err := b.Store.CountForms(ctx, "")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Should fail fast on an unreachable OxiDB", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Driver = "oxidb"
		cfg.OxiDB.Host, cfg.OxiDB.Port = "127.0.0.1", 1
		_, err := OpenBackends(ctx, cfg, log)
		assert.Error(t, err)
	})
}
