package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/kvelle/parley/store"
	"github.com/pkg/errors"
)

func (d *DB) CreatePendingRequest(ctx context.Context, create *store.PendingRequest) (*store.PendingRequest, error) {
	headers := create.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal headers")
	}

	stmt := `
		INSERT INTO pending_request (id, timestamp, method, url, headers, body, retry_count, max_retries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			timestamp = excluded.timestamp,
			method = excluded.method,
			url = excluded.url,
			headers = excluded.headers,
			body = excluded.body,
			retry_count = excluded.retry_count,
			max_retries = excluded.max_retries
		RETURNING id, timestamp, method, url, headers, body, retry_count, max_retries
	`
	row := d.db.QueryRowContext(ctx, stmt,
		create.ID,
		create.Timestamp,
		create.Method,
		create.URL,
		string(headersJSON),
		create.Body,
		create.RetryCount,
		create.MaxRetries,
	)
	request, err := scanPendingRequest(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pending request")
	}
	return request, nil
}

func (d *DB) ListPendingRequests(ctx context.Context, find *store.FindPendingRequest) ([]*store.PendingRequest, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}

	// Drain order: oldest first, id as deterministic tiebreaker.
	query := `SELECT id, timestamp, method, url, headers, body, retry_count, max_retries
		FROM pending_request
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY timestamp ASC, id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending requests")
	}
	defer rows.Close()

	list := []*store.PendingRequest{}
	for rows.Next() {
		request, err := scanPendingRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan pending request")
		}
		list = append(list, request)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return list, nil
}

func (d *DB) UpdatePendingRequest(ctx context.Context, update *store.UpdatePendingRequest) (*store.PendingRequest, error) {
	if update.RetryCount == nil {
		return nil, errors.New("no fields to update")
	}

	stmt := `UPDATE pending_request SET retry_count = ? WHERE id = ?
		RETURNING id, timestamp, method, url, headers, body, retry_count, max_retries`

	request, err := scanPendingRequest(d.db.QueryRowContext(ctx, stmt, *update.RetryCount, update.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to update pending request")
	}
	return request, nil
}

func (d *DB) DeletePendingRequest(ctx context.Context, delete *store.DeletePendingRequest) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM pending_request WHERE id = ?", delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete pending request")
	}
	return nil
}

func (d *DB) ClearPendingRequests(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM pending_request"); err != nil {
		return errors.Wrap(err, "failed to clear pending requests")
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
		return nil, errors.Wrap(err, "failed to unmarshal headers")
	}
	return &request, nil
}
