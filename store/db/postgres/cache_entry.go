package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kvelle/parley/store"
)

func (d *DB) UpsertCacheEntry(ctx context.Context, upsert *store.CacheEntry) (*store.CacheEntry, error) {
	header := upsert.Header
	if header == nil {
		header = map[string]string{}
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}

	stmt := `INSERT INTO cache_entry (generation, url, status_code, header, body, fetched_ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (generation, url) DO UPDATE SET
			status_code = excluded.status_code,
			header = excluded.header,
			body = excluded.body,
			fetched_ts = excluded.fetched_ts
		RETURNING generation, url, status_code, header, body, fetched_ts`

	entry, err := scanCacheEntry(d.db.QueryRowContext(ctx, stmt,
		upsert.Generation,
		upsert.URL,
		upsert.StatusCode,
		string(headerJSON),
		upsert.Body,
		upsert.FetchedTs,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return entry, nil
}

func (d *DB) GetCacheEntry(ctx context.Context, find *store.FindCacheEntry) (*store.CacheEntry, error) {
	stmt := `SELECT generation, url, status_code, header, body, fetched_ts
		FROM cache_entry WHERE generation = $1 AND url = $2`

	entry, err := scanCacheEntry(d.db.QueryRowContext(ctx, stmt, find.Generation, find.URL))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return entry, nil
}

func (d *DB) ListCacheGenerations(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT DISTINCT generation FROM cache_entry")
	if err != nil {
		return nil, fmt.Errorf("failed to list cache generations: %w", err)
	}
	defer rows.Close()

	generations := []string{}
	for rows.Next() {
		var generation string
		if err := rows.Scan(&generation); err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		generations = append(generations, generation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return generations, nil
}

func (d *DB) DeleteCacheGeneration(ctx context.Context, generation string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM cache_entry WHERE generation = $1", generation); err != nil {
		return fmt.Errorf("failed to delete cache generation: %w", err)
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
		return nil, fmt.Errorf("failed to unmarshal header: %w", err)
	}
	return &entry, nil
}
