package sqlite

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kvelle/parley/store"
	"github.com/pkg/errors"
)

const messageConversationIndex = "idx_message_conversation_uid"

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	files := create.Files
	if files == nil {
		files = []string{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal files")
	}

	stmt := `
		INSERT INTO message (uid, conversation_uid, user_id, role, content, files, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			conversation_uid = excluded.conversation_uid,
			user_id = excluded.user_id,
			role = excluded.role,
			content = excluded.content,
			files = excluded.files
		RETURNING id, uid, conversation_uid, user_id, role, content, files, created_ts
	`
	row := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.ConversationUID,
		create.UserID,
		create.Role,
		create.Content,
		string(filesJSON),
		create.CreatedTs,
	)
	message, err := scanMessage(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}
	return message, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	// Messages must stay retrievable by conversation even when the secondary
	// index is missing from the current schema: degrade to a full scan with
	// a client-side filter.
	if find.ConversationUID != nil && !d.hasIndex(ctx, messageConversationIndex) {
		d.observeFallback()
		return d.scanMessagesForConversation(ctx, *find.ConversationUID)
	}

	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.ConversationUID != nil {
		where, args = append(where, "conversation_uid = ?"), append(args, *find.ConversationUID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}

	query := `SELECT id, uid, conversation_uid, user_id, role, content, files, created_ts
		FROM message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	list := []*store.Message{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		list = append(list, message)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return list, nil
}

// scanMessagesForConversation is the degraded path: read every row and
// filter client-side.
func (d *DB) scanMessagesForConversation(ctx context.Context, conversationUID string) ([]*store.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, uid, conversation_uid, user_id, role, content, files, created_ts
		 FROM message ORDER BY created_ts ASC, id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan messages")
	}
	defer rows.Close()

	list := []*store.Message{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		if message.ConversationUID == conversationUID {
			list = append(list, message)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return list, nil
}

func (d *DB) DeleteMessages(ctx context.Context, delete *store.DeleteMessage) error {
	where, args := []string{"1 = 1"}, []any{}

	if delete.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *delete.UID)
	}
	if delete.ConversationUID != nil {
		where, args = append(where, "conversation_uid = ?"), append(args, *delete.ConversationUID)
	}
	if len(where) == 1 {
		return errors.New("refusing to delete messages without a filter")
	}

	// Deletes every matching record, not just the first.
	stmt := `DELETE FROM message WHERE ` + strings.Join(where, " AND ")
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to delete messages")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var message store.Message
	var filesJSON string
	if err := row.Scan(
		&message.ID,
		&message.UID,
		&message.ConversationUID,
		&message.UserID,
		&message.Role,
		&message.Content,
		&filesJSON,
		&message.CreatedTs,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(filesJSON), &message.Files); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal files")
	}
	return &message, nil
}
