package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/oxidb"
	"github.com/parisxmas/OxiDB/OxiForms/internal/oxidb/oxidbtest"
)

func newPool(t *testing.T, size int) (*Pool, *oxidbtest.Server) {
	t.Helper()
	srv := oxidbtest.Start(t)
	p, err := NewPool(context.Background(), srv.Host(), srv.Port(), size, logger.NewForTests())
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p, srv
}

func TestPool(t *testing.T) {
	t.Run("Should reject a non-positive size", func(t *testing.T) {
		_, err := NewPool(context.Background(), "127.0.0.1", 1, 0, logger.NewForTests())
		assert.Error(t, err)
	})

	t.Run("Should pass a health check", func(t *testing.T) {
		p, _ := newPool(t, 2)
		assert.NoError(t, p.HealthCheck(context.Background()))
	})

	t.Run("Should rotate shared clients", func(t *testing.T) {
		p, _ := newPool(t, 2)
		assert.NotSame(t, p.Get(), p.Get())
	})

	t.Run("Should replace a broken shared client on Get", func(t *testing.T) {
		p, srv := newPool(t, 1)
		srv.Stall("ping", 100*time.Millisecond)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		broken := p.Get()
		_, _ = broken.Ping(ctx)
		require.True(t, broken.Broken())
		srv.Stall("ping", 0)

		fresh := p.Get()
		assert.NotSame(t, broken, fresh)
		assert.False(t, fresh.Broken())
	})

	t.Run("Should hand out a pinned connection for the duration of With", func(t *testing.T) {
		p, srv := newPool(t, 1)
		ctx := context.Background()
		err := p.With(ctx, func(c *oxidb.Client) error {
			return c.WithTransaction(ctx, func() error {
				_, err := c.Insert(ctx, "forms", map[string]any{"id": "f1"})
				return err
			})
		})
		require.NoError(t, err)
		assert.Len(t, srv.Docs("forms"), 1)

		busy, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		err = p.With(ctx, func(*oxidb.Client) error {
			return p.With(busy, func(*oxidb.Client) error { return nil })
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
