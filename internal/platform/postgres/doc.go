// Package postgres provides the PostgreSQL implementation of the cron task
// store defined in the internal/store package, together with the connection
// layer it runs on: a Manager owning two pgx pools (sync and async), session
// scopes that guarantee rollback and connection release, and the embedded
// goose migrations that create the cron_task table.
package postgres
