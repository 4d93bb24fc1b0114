package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicateToken reports that a message with the same client token
	// already exists. Callers resolve it to the original id via LookupByToken.
	ErrDuplicateToken = errors.New("store: duplicate client token")

	// ErrNotFound reports that no message matched the lookup.
	ErrNotFound = errors.New("store: message not found")
)

// Message is a single durable chat message. ID is assigned by the store on
// insert and doubles as the delivery offset; it is never reused or mutated.
type Message struct {
	ID      int64
	Content string
}

// Append inserts a message and returns it with its assigned id. The write is
// committed before Append returns.
//
// clientToken may be nil for anonymous submissions, which are always treated
// as new. A non-nil token that already exists in the log makes the insert
// fail with ErrDuplicateToken; the constraint is enforced by SQLite so two
// concurrent writers racing on the same token cannot both insert.
func (s *Store) Append(ctx context.Context, content string, clientToken *string) (Message, error) {
	var token sql.NullString
	if clientToken != nil {
		token = sql.NullString{String: *clientToken, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (content, client_offset)
		VALUES (?, ?)
	`, content, token)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return Message{}, ErrDuplicateToken
		}
		return Message{}, fmt.Errorf("append message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("append message: last insert id: %w", err)
	}

	return Message{ID: id, Content: content}, nil
}

// LookupByToken returns the message previously inserted with the given
// client token. Used to resolve an Append conflict into the original id.
func (s *Store) LookupByToken(ctx context.Context, clientToken string) (Message, error) {
	var msg Message
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content FROM messages WHERE client_offset = ?
	`, clientToken).Scan(&msg.ID, &msg.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("lookup by token: %w", err)
	}
	return msg, nil
}

// ListAfter returns up to limit messages with id strictly greater than
// offset, in ascending id order. Backlogs beyond limit are truncated;
// callers needing more must page.
func (s *Store) ListAfter(ctx context.Context, offset int64, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content
		FROM messages
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list after %d: %w", offset, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Content); err != nil {
			return nil, fmt.Errorf("list after %d: scan: %w", offset, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list after %d: %w", offset, err)
	}

	return messages, nil
}
