package store

import (
	"fmt"
	"strings"
	"time"
)

// RawMessage is one line of the raw transcript tier. Raw messages are never
// summarized twice: once a summary covers them they are flagged archived.
type RawMessage struct {
	ID        string
	UserID    string
	SessionID string
	UserName  string
	Role      string // "user" or "assistant"
	Content   string
	MsgType   string
	Archived  bool
	CreatedAt int64
}

// SaveMessage inserts a raw message.
func (db *DB) SaveMessage(m *RawMessage) error {
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}
	if m.MsgType == "" {
		m.MsgType = "text"
	}
	_, err := db.Exec(`
		INSERT INTO raw_messages (id, user_id, session_id, user_name, role, content, msg_type, archived, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`, m.ID, m.UserID, m.SessionID, m.UserName, m.Role, m.Content, m.MsgType, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// UnarchivedMessages returns a user's raw messages not yet covered by a
// summary, oldest first.
func (db *DB) UnarchivedMessages(userID string) ([]RawMessage, error) {
	rows, err := db.Query(`
		SELECT id, user_id, session_id, user_name, role, content, msg_type, archived, created_at
		FROM raw_messages
		WHERE user_id = ? AND archived = 0
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("unarchived messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ArchivedMessages returns a user's archived messages within [from, to),
// oldest first. Zero bounds are open. A limit <= 0 means no limit.
func (db *DB) ArchivedMessages(userID string, from, to int64, limit int) ([]RawMessage, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, user_id, session_id, user_name, role, content, msg_type, archived, created_at
		FROM raw_messages WHERE user_id = ? AND archived = 1`)
	args := []any{userID}
	if from > 0 {
		sb.WriteString(" AND created_at >= ?")
		args = append(args, from)
	}
	if to > 0 {
		sb.WriteString(" AND created_at < ?")
		args = append(args, to)
	}
	sb.WriteString(" ORDER BY created_at ASC")
	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := db.Query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("archived messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MarkArchived flags the given raw messages as covered by a summary.
func (db *DB) MarkArchived(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf("UPDATE raw_messages SET archived = 1 WHERE id IN (%s)", placeholders(len(ids)))
	if _, err := db.Exec(query, toAny(ids)...); err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	return nil
}

// MarkUnarchived clears the archived flag, used when a summary is deleted
// and its source messages become eligible for re-summarization.
func (db *DB) MarkUnarchived(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf("UPDATE raw_messages SET archived = 0 WHERE id IN (%s)", placeholders(len(ids)))
	if _, err := db.Exec(query, toAny(ids)...); err != nil {
		return fmt.Errorf("mark unarchived: %w", err)
	}
	return nil
}

// DeleteUserMessages removes all raw messages for a user.
func (db *DB) DeleteUserMessages(userID string) error {
	if _, err := db.Exec("DELETE FROM raw_messages WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete user messages: %w", err)
	}
	return nil
}

func scanMessages(rows rowScanner) ([]RawMessage, error) {
	var msgs []RawMessage
	for rows.Next() {
		var m RawMessage
		var archived int
		if err := rows.Scan(&m.ID, &m.UserID, &m.SessionID, &m.UserName, &m.Role,
			&m.Content, &m.MsgType, &archived, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Archived = archived != 0
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// rowScanner abstracts *sql.Rows for the scan helpers.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
