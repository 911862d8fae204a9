// Package pg bootstraps PostgreSQL access with jackc/pgx/v5: pool creation with
// retry (Connect), goose/v3 migrations from an embedded filesystem (Migrate),
// a readiness probe (Healthcheck) and error classification helpers.
package pg
