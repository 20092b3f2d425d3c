package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/kvelle/parley/store"
	"github.com/pkg/errors"
)

func (d *DB) UpsertCacheEntry(ctx context.Context, upsert *store.CacheEntry) (*store.CacheEntry, error) {
	header := upsert.Header
	if header == nil {
		header = map[string]string{}
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal header")
	}

	stmt := `
		INSERT INTO cache_entry (generation, url, status_code, header, body, fetched_ts)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (generation, url) DO UPDATE SET
			status_code = excluded.status_code,
			header = excluded.header,
			body = excluded.body,
			fetched_ts = excluded.fetched_ts
		RETURNING generation, url, status_code, header, body, fetched_ts
	`
	entry, err := scanCacheEntry(d.db.QueryRowContext(ctx, stmt,
		upsert.Generation,
		upsert.URL,
		upsert.StatusCode,
		string(headerJSON),
		upsert.Body,
		upsert.FetchedTs,
	))
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert cache entry")
	}
	return entry, nil
}

func (d *DB) GetCacheEntry(ctx context.Context, find *store.FindCacheEntry) (*store.CacheEntry, error) {
	stmt := `SELECT generation, url, status_code, header, body, fetched_ts
		FROM cache_entry WHERE generation = ? AND url = ?`

	entry, err := scanCacheEntry(d.db.QueryRowContext(ctx, stmt, find.Generation, find.URL))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get cache entry")
	}
	return entry, nil
}

func (d *DB) ListCacheGenerations(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT DISTINCT generation FROM cache_entry")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list cache generations")
	}
	defer rows.Close()

	generations := []string{}
	for rows.Next() {
		var generation string
		if err := rows.Scan(&generation); err != nil {
			return nil, errors.Wrap(err, "failed to scan generation")
		}
		generations = append(generations, generation)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return generations, nil
}

// DeleteCacheGeneration removes a superseded generation wholesale.
func (d *DB) DeleteCacheGeneration(ctx context.Context, generation string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM cache_entry WHERE generation = ?", generation); err != nil {
		return errors.Wrap(err, "failed to delete cache generation")
	}
	return nil
}

func scanCacheEntry(row rowScanner) (*store.CacheEntry, error) {
	var entry store.CacheEntry
	var headerJSON string
	if err := row.Scan(
		&entry.Generation,
		&entry.URL,
		&entry.StatusCode,
		&headerJSON,
		&entry.Body,
		&entry.FetchedTs,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headerJSON), &entry.Header); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal header")
	}
	return &entry, nil
}
