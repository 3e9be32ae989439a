// Package history keeps the per-sender conversation history in SQLite.
//
// A history is the ordered list of chat messages exchanged with one phone
// number. Its first entry is always a system message; it is created with
// the default system message on first contact, appended to on every turn,
// replaced by /system and deleted by /clear.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultSystemMessage seeds every new conversation.
const DefaultSystemMessage = "you're a helpful assistant. Your messages are text messages. Be consise"

// Roles used in a History.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotFound is returned when no history exists for a phone number.
var ErrNotFound = errors.New("conversation not found")

// Message is one entry of a conversation, in the shape the completion API
// expects.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is a conversation, oldest entry first.
type History []Message

// Summary describes a stored conversation without its content.
type Summary struct {
	Phone     string    `json:"phone"`
	Messages  int       `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a SQLite-backed history store. It is safe for concurrent use.
type Store struct {
	db            *sql.DB
	logger        *slog.Logger
	defaultSystem string
}

// NewStore opens (creating if needed) the database at dbPath. An empty
// defaultSystem selects DefaultSystemMessage.
func NewStore(dbPath, defaultSystem string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if defaultSystem == "" {
		defaultSystem = DefaultSystemMessage
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logger, defaultSystem: defaultSystem}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	logger.Info("History store opened", "path", dbPath)
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		phoneno     TEXT PRIMARY KEY,
		messages    TEXT NOT NULL,
		updated_at  INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DefaultSystem returns the system message new conversations start with.
func (s *Store) DefaultSystem() string {
	return s.defaultSystem
}

// Get returns the history for phone, or ErrNotFound.
func (s *Store) Get(ctx context.Context, phone string) (History, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT messages FROM conversations WHERE phoneno = ?`, phone,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get history for %s: %w", phone, err)
	}
	return decode(phone, raw)
}

// Reset replaces the history for phone with a single system entry. An
// empty system selects the store's default system message.
func (s *Store) Reset(ctx context.Context, phone, system string) (History, error) {
	if system == "" {
		system = s.defaultSystem
	}
	h := History{{Role: RoleSystem, Content: system}}
	if err := s.put(ctx, s.db, phone, h); err != nil {
		return nil, fmt.Errorf("reset history for %s: %w", phone, err)
	}
	return h, nil
}

// Append adds an entry to the history for phone and returns the updated
// history. A phone without history starts from the default system
// message.
func (s *Store) Append(ctx context.Context, phone, content, role string) (History, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("append to history for %s: %w", phone, err)
	}
	defer tx.Rollback()

	var raw string
	var h History
	err = tx.QueryRowContext(ctx,
		`SELECT messages FROM conversations WHERE phoneno = ?`, phone,
	).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.Debug("Starting new conversation", "phone", phone)
		h = History{{Role: RoleSystem, Content: s.defaultSystem}}
	case err != nil:
		return nil, fmt.Errorf("append to history for %s: %w", phone, err)
	default:
		if h, err = decode(phone, raw); err != nil {
			return nil, err
		}
	}

	h = append(h, Message{Role: role, Content: content})
	if err := s.put(ctx, tx, phone, h); err != nil {
		return nil, fmt.Errorf("append to history for %s: %w", phone, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("append to history for %s: %w", phone, err)
	}
	return h, nil
}

// Clear deletes the history for phone. Clearing an absent history is not
// an error.
func (s *Store) Clear(ctx context.Context, phone string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE phoneno = ?`, phone); err != nil {
		return fmt.Errorf("clear history for %s: %w", phone, err)
	}
	return nil
}

// List returns every stored conversation, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phoneno, messages, updated_at FROM conversations ORDER BY updated_at DESC, phoneno`,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			phone, raw string
			updated    int64
		)
		if err := rows.Scan(&phone, &raw, &updated); err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		h, err := decode(phone, raw)
		if err != nil {
			s.logger.Warn("Skipping unreadable conversation", "phone", phone, "error", err)
			continue
		}
		out = append(out, Summary{Phone: phone, Messages: len(h), UpdatedAt: time.UnixMilli(updated)})
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) put(ctx context.Context, db execer, phone string, h History) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO conversations (phoneno, messages, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(phoneno) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at`,
		phone, string(raw), time.Now().UnixMilli(),
	)
	return err
}

func decode(phone, raw string) (History, error) {
	var h History
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", phone, err)
	}
	return h, nil
}
