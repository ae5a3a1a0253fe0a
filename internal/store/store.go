/*
Package store persists announcement records in Postgres. The primary key is
the exchange's newsid, so re-ingesting a feed is idempotent end to end.
*/
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool is the pgx surface the store uses. *pgxpool.Pool satisfies it, as does
// the pgxmock pool in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Filter narrows a listing query. Zero values mean no constraint; Limit <= 0
// applies the default page size.
type Filter struct {
	Category string
	Company  string
	Limit    int
	Offset   int
}
