// Package sqlitestore implements queue.Store on a local SQLite database.
//
// It serves single-host deployments and tests. Claims run in an IMMEDIATE
// transaction, so concurrent claimants on the same file serialize on the
// database write lock and never receive the same row. Busy errors are retried
// with bounded exponential backoff.
//
// Schema changes bump schemaVersion; an existing database with a different
// version is rejected with queue.ErrSchemaMismatch.
package sqlitestore
