package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/kvelle/parley/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	fields := []string{"uid", "user_id", "title", "starred", "created_ts", "updated_ts"}
	args := []any{create.UID, create.UserID, create.Title, create.Starred, create.CreatedTs, create.UpdatedTs}

	stmt := `INSERT INTO conversation (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (uid) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			starred = excluded.starred,
			updated_ts = excluded.updated_ts
		RETURNING id, uid, user_id, title, starred, created_ts, updated_ts`

	var conversation store.Conversation
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&conversation.ID,
		&conversation.UID,
		&conversation.UserID,
		&conversation.Title,
		&conversation.Starred,
		&conversation.CreatedTs,
		&conversation.UpdatedTs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &conversation, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if find.Starred != nil {
		where, args = append(where, "starred = "+placeholder(len(args)+1)), append(args, *find.Starred)
	}

	query := `SELECT id, uid, user_id, title, starred, created_ts, updated_ts
		FROM conversation
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_ts DESC, id DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	list := []*store.Conversation{}
	for rows.Next() {
		var conversation store.Conversation
		if err := rows.Scan(
			&conversation.ID,
			&conversation.UID,
			&conversation.UserID,
			&conversation.Title,
			&conversation.Starred,
			&conversation.CreatedTs,
			&conversation.UpdatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		list = append(list, &conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.Starred != nil {
		set, args = append(set, "starred = "+placeholder(len(args)+1)), append(args, *update.Starred)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	args = append(args, update.UID)

	stmt := `UPDATE conversation SET ` + strings.Join(set, ", ") + `
		WHERE uid = ` + placeholder(len(args)) + `
		RETURNING id, uid, user_id, title, starred, created_ts, updated_ts`

	var conversation store.Conversation
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&conversation.ID,
		&conversation.UID,
		&conversation.UserID,
		&conversation.Title,
		&conversation.Starred,
		&conversation.CreatedTs,
		&conversation.UpdatedTs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	return &conversation, nil
}

func (d *DB) DeleteConversation(ctx context.Context, delete *store.DeleteConversation) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM conversation WHERE uid = $1", delete.UID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}
