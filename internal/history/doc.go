// Package history persists the append-only stage-history log in SQLite and
// exposes the narrow store surface the progression engine, SLA sweep, and
// one-way update emitter read through.
//
// An Entry is one timed attempt at a stage by one worker for one file. At most
// one entry per file is open (completed_at IS NULL) at a time; the close/open
// transaction in CloseAndOpenNext preserves that invariant under concurrent
// completion attempts. Entries are never deleted; rework appends new rows for
// the same stage.
//
// Treat this package as the single source of truth for stage-history
// semantics; schema changes go through schema.sql and bump schemaVersion.
package history
