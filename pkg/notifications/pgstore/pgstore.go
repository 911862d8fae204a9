// Package pgstore implements notification and preference storage on PostgreSQL
// using pgx. The schema ships as embedded goose migrations:
//
//	pool, err := pg.Connect(ctx, cfg)
//	err = pg.Migrate(ctx, pool, cfg, pgstore.Migrations, pgstore.MigrationsDir, log)
//	store := pgstore.New(pool)
//	prefs := pgstore.NewPreferenceStore(pool)
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/notifyengine/pkg/notifications"
	"github.com/dmitrymomot/notifyengine/pkg/pg"
)

//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"

// DB is the part of *pgxpool.Pool the stores need.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// wrapErr reports connection-level failures and timeouts as transient.
// Anything else is a statement error and is wrapped as is.
func wrapErr(op string, err error) error {
	if pg.IsConnectionError(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return notifications.Transient(op, err)
	}
	return fmt.Errorf("pgstore: %s: %w", op, err)
}
