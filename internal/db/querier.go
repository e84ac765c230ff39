package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier represents the minimal database operations used by services.
// Both *pgxpool.Pool and pgxmock pools satisfy this interface.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrNotConnected is returned by Disconnected operations.
var ErrNotConnected = errors.New("db: not connected")

// Disconnected is a Querier whose every operation fails. It stands in when
// no pool could be created, so dependents fall back to their retry paths
// instead of dereferencing a nil pool.
type Disconnected struct{}

func (Disconnected) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, ErrNotConnected
}

func (Disconnected) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, ErrNotConnected
}

func (Disconnected) QueryRow(context.Context, string, ...any) pgx.Row {
	return disconnectedRow{}
}

type disconnectedRow struct{}

func (disconnectedRow) Scan(...any) error { return ErrNotConnected }
