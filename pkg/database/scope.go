package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx operations repositories need. Both a
// pooled connection and an open transaction satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connection is the slice of a pooled connection the scope needs. It is
// satisfied by *pgxpool.Conn.
type Connection interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Release()
}

// Scope wraps the connection a batch operates on, plus the transaction the
// current record is being processed in, if any. Repositories read their
// querier from the scope so the same code runs inside and outside a
// transaction.
type Scope struct {
	Conn Connection
	Tx   pgx.Tx
}

// Q returns the querier for the current scope: the open transaction when
// one is active, otherwise the scoped connection.
func (s *Scope) Q() Querier {
	if s.Tx != nil {
		return s.Tx
	}
	return s.Conn
}

// Close releases the scoped connection back to the pool.
func (s *Scope) Close() {
	if s.Conn != nil {
		s.Conn.Release()
	}
}

type contextKey string

// ScopeKey is the context key for storing the scoped database connection.
const ScopeKey contextKey = "dbScope"

// GetScope retrieves the database scope from context.
// Returns nil and false if not present.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	return scope, ok
}

// SetScope stores the database scope in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// Acquire checks out a connection and returns a context carrying its scope.
// The cleanup function must be called when the scope is no longer needed.
func (db *DB) Acquire(ctx context.Context) (context.Context, func(), error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	scope := &Scope{Conn: conn}
	return SetScope(ctx, scope), func() { scope.Close() }, nil
}

// WithTransaction runs fn inside a transaction on the scoped connection.
// The context passed to fn carries a derived scope whose querier is the
// transaction; a non-nil error from fn rolls everything back.
func WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	scope, ok := GetScope(ctx)
	if !ok {
		return errors.New("no database scope in context")
	}
	if scope.Tx != nil {
		return errors.New("transaction already open on scope")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := SetScope(ctx, &Scope{Conn: scope.Conn, Tx: tx})
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
