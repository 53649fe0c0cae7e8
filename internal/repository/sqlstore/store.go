// Package sqlstore implements repository.Store on database/sql, for SQLite
// (modernc) and Postgres (pgx stdlib).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	// Register pgx stdlib driver as "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	pgUniqueViolation = "23505"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type repos struct {
	db dbtx
	sq squirrel.StatementBuilderType
}

type Store struct {
	*repos
	db     *sql.DB
	driver string
}

var _ repository.Store = (*Store)(nil)

// Open connects to the database. It does not migrate; call Migrate.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		sqlDriver   string
		placeholder squirrel.PlaceholderFormat
	)
	switch driver {
	case DriverSQLite:
		sqlDriver, placeholder = "sqlite", squirrel.Question
	case DriverPostgres:
		sqlDriver, placeholder = "pgx", squirrel.Dollar
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer at a time; concurrent writers only trade SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", driver, err)
	}
	return &Store{
		repos:  &repos{db: db, sq: squirrel.StatementBuilder.PlaceholderFormat(placeholder)},
		db:     db,
		driver: driver,
	}, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Driver() string { return s.driver }

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Repos) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rb := tx.Rollback(); rb != nil && !errors.Is(rb, sql.ErrTxDone) {
				logger.FromContext(ctx).Warn("sqlstore: rollback failed", "error", rb)
			}
		}
	}()
	if err = fn(&repos{db: tx, sq: s.sq}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit: %w", classify(err))
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlstore: ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// classify marks unique violations with repository.ErrDuplicate.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
		}
	}
	return err
}

func rowsAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: rows affected (%s): %w", op, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
