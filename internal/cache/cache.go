// Package cache keeps a local SQLite copy of fetched conversations so
// history can be read without the server.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yolodolo42/dagent/internal/api"
	"github.com/yolodolo42/dagent/internal/transcript"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a conversation is not cached.
var ErrNotFound = errors.New("conversation not cached")

// Store is the SQLite-backed history cache.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("missing db path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutConversation inserts or updates the conversation row.
func (s *Store) PutConversation(ctx context.Context, c api.Conversation) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO conversations (id, title, created_at, updated_at, cached_at_unix_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  title = excluded.title,
  created_at = CASE WHEN excluded.created_at = '' THEN conversations.created_at ELSE excluded.created_at END,
  updated_at = CASE WHEN excluded.updated_at = '' THEN conversations.updated_at ELSE excluded.updated_at END,
  cached_at_unix_ms = excluded.cached_at_unix_ms
`, c.ID, c.Title, c.CreatedAt, c.UpdatedAt, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("cache conversation %d: %w", c.ID, err)
	}
	return nil
}

// PutMessages replaces the cached messages of a conversation. The
// conversation row is created when missing.
func (s *Store) PutMessages(ctx context.Context, conversationID int64, messages []transcript.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO conversations (id, cached_at_unix_ms) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET cached_at_unix_ms = excluded.cached_at_unix_ms
`, conversationID, time.Now().UnixMilli()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO messages (conversation_id, seq, message_id, role, content, blocks_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i, m := range messages {
		blocks := ""
		if len(m.Blocks) > 0 {
			b, err := json.Marshal(m.Blocks)
			if err != nil {
				return fmt.Errorf("encode blocks of message %s: %w", m.ID, err)
			}
			blocks = string(b)
		}
		created := ""
		if m.CreatedAt != nil {
			created = m.CreatedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := stmt.ExecContext(ctx, conversationID, i, m.ID, string(m.Role), m.Content, blocks, created); err != nil {
			return fmt.Errorf("cache message %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// Conversations lists cached conversations, most recently updated first.
func (s *Store) Conversations(ctx context.Context, limit int) ([]api.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, created_at, updated_at
FROM conversations
ORDER BY updated_at DESC, cached_at_unix_ms DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]api.Conversation, 0)
	for rows.Next() {
		var c api.Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Conversation returns one cached conversation.
func (s *Store) Conversation(ctx context.Context, id int64) (api.Conversation, error) {
	var c api.Conversation
	err := s.db.QueryRowContext(ctx, `
SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?
`, id).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Conversation{}, ErrNotFound
	}
	if err != nil {
		return api.Conversation{}, err
	}
	return c, nil
}

// Messages returns the cached messages of a conversation in order.
func (s *Store) Messages(ctx context.Context, conversationID int64) ([]transcript.Message, error) {
	if _, err := s.Conversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT message_id, role, content, blocks_json, created_at
FROM messages
WHERE conversation_id = ?
ORDER BY seq ASC
`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]transcript.Message, 0)
	for rows.Next() {
		var (
			m       transcript.Message
			role    string
			blocks  string
			created string
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &blocks, &created); err != nil {
			return nil, err
		}
		m.Role = transcript.Role(role)
		if blocks != "" {
			if err := json.Unmarshal([]byte(blocks), &m.Blocks); err != nil {
				return nil, fmt.Errorf("decode blocks of message %s: %w", m.ID, err)
			}
		}
		if created != "" {
			if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
				m.CreatedAt = &ts
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete drops a conversation and its messages.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Purge removes everything, used on logout.
func (s *Store) Purge(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"messages", "conversations"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("purge %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}

	const targetVersion = 1
	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
  id INTEGER PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL DEFAULT '',
  updated_at TEXT NOT NULL DEFAULT '',
  cached_at_unix_ms INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE TABLE IF NOT EXISTS messages (
  conversation_id INTEGER NOT NULL,
  seq INTEGER NOT NULL,
  message_id TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL,
  content TEXT NOT NULL DEFAULT '',
  blocks_json TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (conversation_id, seq)
);`,
		fmt.Sprintf(`PRAGMA user_version = %d;`, targetVersion),
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
