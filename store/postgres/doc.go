// Package postgres implements store.Store on PostgreSQL using pgx/v5.
//
// Records live in jobcore_jobs and audit rows in jobcore_job_history. Every
// lifecycle change is a single status-gated UPDATE ... RETURNING, so the
// pending→running claim is won by exactly one caller across processes.
// Schema changes ship as embedded SQL files applied by Migrate.
package postgres
