package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/telemed-scheduling/internal/apperr"
)

// DBTX is what repositories run statements against: the pool or an open
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is satisfied by *pgxpool.Pool and by pgxmock pools.
type Pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxRunner runs fn inside one transaction. Repositories called with the
// context fn receives join that transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// Executor returns the transaction bound to ctx, or fallback when there is none.
func Executor(ctx context.Context, fallback DBTX) DBTX {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return fallback
}

// InTx reports whether ctx already carries a transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(pgx.Tx)
	return ok
}

type pgTxRunner struct {
	pool Pool
}

func NewTxRunner(pool Pool) TxRunner {
	return &pgTxRunner{pool: pool}
}

func (r *pgTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	// Nested calls join the outer transaction.
	if InTx(ctx) {
		return fn(ctx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Unavailable("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return Unavailable("commit transaction", err)
	}
	return nil
}

// Unavailable wraps a datastore failure so callers can tell it apart from
// domain errors.
func Unavailable(op string, err error) error {
	return &unavailableError{op: op, err: err}
}

type unavailableError struct {
	op  string
	err error
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *unavailableError) Unwrap() []error {
	return []error{apperr.ErrUnavailable, e.err}
}

// uniqueViolation is the SQLSTATE Postgres reports for a unique constraint.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
