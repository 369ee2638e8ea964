// Package postgres implements the wallet store on PostgreSQL via pgx.
// Every scope is one database transaction at read-committed isolation;
// exclusive account locks are taken with SELECT ... FOR UPDATE in ascending
// account-ID order.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/walletops/internal/domain"
	"github.com/punchamoorthee/walletops/internal/wallet"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
	pgLockNotAvail    = "55P03"
)

type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

var _ wallet.Store = (*Store)(nil)

// New opens a connection pool and verifies connectivity. lockTimeout bounds
// how long a spend may wait on a contended account row; zero disables the
// bound.
func New(ctx context.Context, connString string, lockTimeout time.Duration) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{pool: pool, lockTimeout: lockTimeout}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) WithinTx(ctx context.Context, fn func(wallet.Scope) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return translate(err, "tx begin failed")
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		// SET LOCAL scopes the timeout to this transaction only.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return translate(err, "setting lock timeout")
		}
	}

	if err := fn(&txScope{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err, "tx commit failed")
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(wallet.Scope) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly})
	if err != nil {
		return translate(err, "tx begin failed")
	}
	defer tx.Rollback(ctx)

	if err := fn(&txScope{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err, "tx commit failed")
	}
	return nil
}

// translate maps driver errors onto the engine's error kinds. Errors that
// already carry a kind pass through untouched.
func translate(err error, message string) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return domain.WrapE(domain.KindDuplicateKeyRace, err, message)
		case pgLockNotAvail:
			return domain.WrapE(domain.KindLockTimeout, err, message)
		case pgCheckViolation:
			return domain.WrapE(domain.KindInvalidAmount, err, message)
		}
	}
	return domain.WrapE(domain.KindStoreUnavailable, err, message)
}
