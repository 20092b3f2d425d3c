package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kvelle/parley/store"
)

func (d *DB) CreatePendingRequest(ctx context.Context, create *store.PendingRequest) (*store.PendingRequest, error) {
	headers := create.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal headers: %w", err)
	}

	fields := []string{"id", "timestamp", "method", "url", "headers", "body", "retry_count", "max_retries"}
	args := []any{create.ID, create.Timestamp, create.Method, create.URL, string(headersJSON), create.Body, create.RetryCount, create.MaxRetries}

	stmt := `INSERT INTO pending_request (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (id) DO UPDATE SET
			timestamp = excluded.timestamp,
			method = excluded.method,
			url = excluded.url,
			headers = excluded.headers,
			body = excluded.body,
			retry_count = excluded.retry_count,
			max_retries = excluded.max_retries
		RETURNING id, timestamp, method, url, headers, body, retry_count, max_retries`

	request, err := scanPendingRequest(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to create pending request: %w", err)
	}
	return request, nil
}

func (d *DB) ListPendingRequests(ctx context.Context, find *store.FindPendingRequest) ([]*store.PendingRequest, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}

	query := `SELECT id, timestamp, method, url, headers, body, retry_count, max_retries
		FROM pending_request
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY timestamp ASC, id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	list := []*store.PendingRequest{}
	for rows.Next() {
		request, err := scanPendingRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending request: %w", err)
		}
		list = append(list, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return list, nil
}

func (d *DB) UpdatePendingRequest(ctx context.Context, update *store.UpdatePendingRequest) (*store.PendingRequest, error) {
	if update.RetryCount == nil {
		return nil, fmt.Errorf("no fields to update")
	}

	stmt := `UPDATE pending_request SET retry_count = $1 WHERE id = $2
		RETURNING id, timestamp, method, url, headers, body, retry_count, max_retries`

	request, err := scanPendingRequest(d.db.QueryRowContext(ctx, stmt, *update.RetryCount, update.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update pending request: %w", err)
	}
	return request, nil
}

func (d *DB) DeletePendingRequest(ctx context.Context, delete *store.DeletePendingRequest) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM pending_request WHERE id = $1", delete.ID); err != nil {
		return fmt.Errorf("failed to delete pending request: %w", err)
	}
	return nil
}

func (d *DB) ClearPendingRequests(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM pending_request"); err != nil {
		return fmt.Errorf("failed to clear pending requests: %w", err)
	}
	return nil
}

func scanPendingRequest(row rowScanner) (*store.PendingRequest, error) {
	var request store.PendingRequest
	var headersJSON string
	if err := row.Scan(
		&request.ID,
		&request.Timestamp,
		&request.Method,
		&request.URL,
		&headersJSON,
		&request.Body,
		&request.RetryCount,
		&request.MaxRetries,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headersJSON), &request.Headers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
	}
	return &request, nil
}
