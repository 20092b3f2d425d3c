package sqlite

import (
	"context"
	"strings"

	"github.com/kvelle/parley/store"
	"github.com/pkg/errors"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	stmt := `
		INSERT INTO conversation (uid, user_id, title, starred, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			starred = excluded.starred,
			updated_ts = excluded.updated_ts
		RETURNING id, uid, user_id, title, starred, created_ts, updated_ts
	`
	var conversation store.Conversation
	err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.UserID,
		create.Title,
		create.Starred,
		create.CreatedTs,
		create.UpdatedTs,
	).Scan(
		&conversation.ID,
		&conversation.UID,
		&conversation.UserID,
		&conversation.Title,
		&conversation.Starred,
		&conversation.CreatedTs,
		&conversation.UpdatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	return &conversation, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.Starred != nil {
		where, args = append(where, "starred = ?"), append(args, *find.Starred)
	}

	query := `SELECT id, uid, user_id, title, starred, created_ts, updated_ts
		FROM conversation
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_ts DESC, id DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
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
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		list = append(list, &conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return list, nil
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = ?"), append(args, *update.Title)
	}
	if update.Starred != nil {
		set, args = append(set, "starred = ?"), append(args, *update.Starred)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = ?"), append(args, *update.UpdatedTs)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}
	args = append(args, update.UID)

	stmt := `UPDATE conversation SET ` + strings.Join(set, ", ") + ` WHERE uid = ?
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
		return nil, errors.Wrap(err, "failed to update conversation")
	}
	return &conversation, nil
}

func (d *DB) DeleteConversation(ctx context.Context, delete *store.DeleteConversation) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM conversation WHERE uid = ?", delete.UID); err != nil {
		return errors.Wrap(err, "failed to delete conversation")
	}
	return nil
}
