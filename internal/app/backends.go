package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/parisxmas/OxiDB/OxiForms/internal/blob"
	"github.com/parisxmas/OxiDB/OxiForms/internal/blob/fsblob"
	"github.com/parisxmas/OxiDB/OxiForms/internal/blob/oxiblob"
	"github.com/parisxmas/OxiDB/OxiForms/internal/config"
	"github.com/parisxmas/OxiDB/OxiForms/internal/db"
	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository/oxistore"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository/sqlstore"
)

// Backends are the opened record store and blob store. Both OxiDB drivers
// share one connection pool.
type Backends struct {
	Store repository.Store
	Blobs blob.Store
	pool  *db.Pool
}

// OpenBackends connects the configured drivers. It does no schema work; see
// Prepare.
func OpenBackends(ctx context.Context, cfg *config.Config, log logger.Logger) (*Backends, error) {
	b := &Backends{}
	if cfg.Store.Driver == "oxidb" || cfg.Blob.Driver == "oxidb" {
		pool, err := db.NewPool(ctx, cfg.OxiDB.Host, cfg.OxiDB.Port, cfg.OxiDB.PoolSize, log)
		if err != nil {
			return nil, fmt.Errorf("app: connect oxidb: %w", err)
		}
		log.Info("Connected to OxiDB", "host", cfg.OxiDB.Host, "port", cfg.OxiDB.Port, "pool_size", cfg.OxiDB.PoolSize)
		b.pool = pool
	}

	switch cfg.Store.Driver {
	case "oxidb":
		b.Store = oxistore.New(b.pool)
	default:
		s, err := sqlstore.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Store = s
	}

	switch cfg.Blob.Driver {
	case "oxidb":
		b.Blobs = oxiblob.New(b.pool, cfg.Blob.Bucket)
	default:
		fs, err := fsblob.NewOS(cfg.Blob.Dir)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("app: open blob dir: %w", err)
		}
		b.Blobs = fs
	}
	return b, nil
}

// Prepare migrates SQL stores, creates OxiDB indexes and the blob bucket.
// Every step is idempotent.
func (b *Backends) Prepare(ctx context.Context) error {
	log := logger.FromContext(ctx)
	switch s := b.Store.(type) {
	case *sqlstore.Store:
		log.Info("Applying migrations", "driver", s.Driver())
		if err := s.Migrate(ctx); err != nil {
			return err
		}
	case *oxistore.Store:
		log.Info("Creating OxiDB indexes")
		if err := s.EnsureIndexes(ctx); err != nil {
			return err
		}
	}
	if ob, ok := b.Blobs.(*oxiblob.Store); ok {
		log.Info("Ensuring blob bucket")
		if err := ob.EnsureBucket(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backends) Close() error {
	var errs []error
	if b.Store != nil {
		errs = append(errs, b.Store.Close())
	}
	if b.pool != nil {
		b.pool.Close()
	}
	return errors.Join(errs...)
}
