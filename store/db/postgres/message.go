package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/kvelle/parley/store"
)

const messageConversationIndex = "idx_message_conversation_uid"

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	// files is TEXT[] - use pq.Array
	files := create.Files
	if files == nil {
		files = []string{}
	}

	fields := []string{"uid", "conversation_uid", "user_id", "role", "content", "files", "created_ts"}
	args := []any{create.UID, create.ConversationUID, create.UserID, create.Role, create.Content, pq.Array(files), create.CreatedTs}

	stmt := `INSERT INTO message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (uid) DO UPDATE SET
			conversation_uid = excluded.conversation_uid,
			user_id = excluded.user_id,
			role = excluded.role,
			content = excluded.content,
			files = excluded.files
		RETURNING id, uid, conversation_uid, user_id, role, content, files, created_ts`

	message, err := scanMessage(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return message, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	if find.ConversationUID != nil && !d.hasIndex(ctx, messageConversationIndex) {
		d.observeFallback()
		return d.scanMessagesForConversation(ctx, *find.ConversationUID)
	}

	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.ConversationUID != nil {
		where, args = append(where, "conversation_uid = "+placeholder(len(args)+1)), append(args, *find.ConversationUID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}

	query := `SELECT id, uid, conversation_uid, user_id, role, content, files, created_ts
		FROM message
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, id ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	list := []*store.Message{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		list = append(list, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return list, nil
}

func (d *DB) scanMessagesForConversation(ctx context.Context, conversationUID string) ([]*store.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, uid, conversation_uid, user_id, role, content, files, created_ts
		 FROM message ORDER BY created_ts ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan messages: %w", err)
	}
	defer rows.Close()

	list := []*store.Message{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if message.ConversationUID == conversationUID {
			list = append(list, message)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return list, nil
}

func (d *DB) DeleteMessages(ctx context.Context, delete *store.DeleteMessage) error {
	where, args := []string{"1 = 1"}, []any{}

	if delete.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *delete.UID)
	}
	if delete.ConversationUID != nil {
		where, args = append(where, "conversation_uid = "+placeholder(len(args)+1)), append(args, *delete.ConversationUID)
	}
	if len(where) == 1 {
		return fmt.Errorf("refusing to delete messages without a filter")
	}

	stmt := `DELETE FROM message WHERE ` + strings.Join(where, " AND ")
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var message store.Message
	var files pq.StringArray
	if err := row.Scan(
		&message.ID,
		&message.UID,
		&message.ConversationUID,
		&message.UserID,
		&message.Role,
		&message.Content,
		&files,
		&message.CreatedTs,
	); err != nil {
		return nil, err
	}
	message.Files = []string(files)
	return &message, nil
}
