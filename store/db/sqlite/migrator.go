package sqlite

import (
	"context"

	"github.com/pkg/errors"
)

// schemaVersion is bumped whenever a table or index is added. Migrate only
// ever creates missing objects, so replaying it on an old database is safe.
const schemaVersion = 2

var migrationStmts = []string{
	`CREATE TABLE IF NOT EXISTS schema_migration (
		version INTEGER NOT NULL PRIMARY KEY,
		applied_ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversation (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		starred INTEGER NOT NULL DEFAULT 0,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversation_user_id ON conversation (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversation_updated_ts ON conversation (updated_ts)`,
	`CREATE TABLE IF NOT EXISTS message (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL UNIQUE,
		conversation_uid TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		files TEXT NOT NULL DEFAULT '[]',
		created_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_message_conversation_uid ON message (conversation_uid)`,
	`CREATE INDEX IF NOT EXISTS idx_message_created_ts ON message (created_ts)`,
	`CREATE TABLE IF NOT EXISTS pending_request (
		id TEXT NOT NULL PRIMARY KEY,
		timestamp BIGINT NOT NULL,
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		headers TEXT NOT NULL DEFAULT '{}',
		body BLOB,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_request_timestamp ON pending_request (timestamp)`,
	`CREATE TABLE IF NOT EXISTS cache_entry (
		generation TEXT NOT NULL,
		url TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		header TEXT NOT NULL DEFAULT '{}',
		body BLOB,
		fetched_ts BIGINT NOT NULL,
		PRIMARY KEY (generation, url)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_entry_generation ON cache_entry (generation)`,
}

func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrationStmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to run migration statement: %s", stmt)
		}
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO schema_migration (version, applied_ts) VALUES (?, strftime('%s', 'now'))
		 ON CONFLICT (version) DO NOTHING`,
		schemaVersion,
	)
	if err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}

	d.forgetIndexes()
	return nil
}
