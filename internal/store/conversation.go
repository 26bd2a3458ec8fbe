package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"termcoder/internal/logging"
	"termcoder/internal/types"
)

var (
	// ErrThreadNotFound is returned for operations on an unknown thread.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrThreadExists is returned when creating a thread with a used id.
	ErrThreadExists = errors.New("thread already exists")
)

// Thread is one conversation.
type Thread struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  int
}

// StoredMessage is one persisted conversation message.
type StoredMessage struct {
	ID        string
	ThreadID  string
	Role      types.Role
	Content   string
	Seq       int64
	CreatedAt time.Time
}

// Message converts the row into a conversation message.
func (m StoredMessage) Message() types.Message {
	return types.Message{Role: m.Role, Content: m.Content}
}

// ConversationStore persists threads and their ordered messages.
type ConversationStore struct {
	db *sql.DB
	mu sync.Mutex
}

const conversationSchema = `
CREATE TABLE IF NOT EXISTS threads (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	seq INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_thread_seq ON messages(thread_id, seq);
`

// NewConversationStore opens the conversation database at path.
func NewConversationStore(path string) (*ConversationStore, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	s, err := NewConversationStoreWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewConversationStoreWithDB creates the schema on an already open database.
func NewConversationStoreWithDB(db *sql.DB) (*ConversationStore, error) {
	if _, err := db.Exec(conversationSchema); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create conversation schema: %v", err)
		return nil, fmt.Errorf("failed to create conversation schema: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return &ConversationStore{db: db}, nil
}

// Close closes the underlying database.
func (s *ConversationStore) Close() error {
	return s.db.Close()
}

// CreateThread registers a new thread.
func (s *ConversationStore) CreateThread(ctx context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO threads (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		id, title, now, now,
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrThreadExists, id)
		}
		logging.Get(logging.CategoryStore).Error("Failed to create thread %s: %v", id, err)
		return err
	}
	logging.StoreDebug("Thread created: id=%s title=%q", id, title)
	return nil
}

// EnsureThread creates the thread if it does not exist yet.
func (s *ConversationStore) EnsureThread(ctx context.Context, id, title string) error {
	err := s.CreateThread(ctx, id, title)
	if errors.Is(err, ErrThreadExists) {
		return nil
	}
	return err
}

// AppendMessage appends a message to the end of a thread.
func (s *ConversationStore) AppendMessage(ctx context.Context, threadID, messageID string, role types.Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("invalid message role %q", role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := threadExists(ctx, tx, threadID); err != nil {
		return err
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE thread_id = ?", threadID,
	).Scan(&seq); err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO messages (id, thread_id, role, content, created_at, seq) VALUES (?, ?, ?, ?, ?, ?)",
		messageID, threadID, string(role), content, now, seq,
	); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to append message to %s: %v", threadID, err)
		return fmt.Errorf("failed to append message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE threads SET updated_at = ? WHERE id = ?", now, threadID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logging.StoreDebug("Message appended: thread=%s seq=%d role=%s len=%d", threadID, seq, role, len(content))
	return nil
}

// GetMessages returns a thread's messages in insertion order.
func (s *ConversationStore) GetMessages(ctx context.Context, threadID string) ([]StoredMessage, error) {
	timer := logging.StartTimer(logging.CategoryStore, "GetMessages")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := threadExists(ctx, s.db, threadID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, role, content, seq, created_at
		 FROM messages WHERE thread_id = ? ORDER BY seq ASC`,
		threadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var role string
		var created int64
		if err := rows.Scan(&m.ID, &m.ThreadID, &role, &m.Content, &m.Seq, &created); err != nil {
			return nil, err
		}
		m.Role = types.Role(role)
		m.CreatedAt = time.UnixMilli(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// History returns a thread's messages as conversation messages.
func (s *ConversationStore) History(ctx context.Context, threadID string) ([]types.Message, error) {
	stored, err := s.GetMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	msgs := make([]types.Message, len(stored))
	for i, m := range stored {
		msgs[i] = m.Message()
	}
	return msgs, nil
}

// RenameThread changes a thread's title.
func (s *ConversationStore) RenameThread(ctx context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE threads SET title = ?, updated_at = ? WHERE id = ?",
		title, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, id)
}

// DeleteThread removes a thread and, by cascade, its messages.
func (s *ConversationStore) DeleteThread(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM threads WHERE id = ?", id)
	if err != nil {
		return err
	}
	if err := requireAffected(res, id); err != nil {
		return err
	}
	logging.Store("Thread deleted: %s", id)
	return nil
}

// GetThread returns one thread.
func (s *ConversationStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	threads, err := s.listThreads(ctx, "WHERE t.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(threads) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	return &threads[0], nil
}

// ListThreads returns all threads, most recently active first.
func (s *ConversationStore) ListThreads(ctx context.Context) ([]Thread, error) {
	return s.listThreads(ctx, "")
}

func (s *ConversationStore) listThreads(ctx context.Context, where string, args ...interface{}) ([]Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.title, t.created_at, t.updated_at, COUNT(m.id)
		FROM threads t LEFT JOIN messages m ON m.thread_id = t.id
		`+where+`
		GROUP BY t.id
		ORDER BY t.updated_at DESC, t.created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Thread
	for rows.Next() {
		var t Thread
		var created, updated int64
		if err := rows.Scan(&t.ID, &t.Title, &created, &updated, &t.Messages); err != nil {
			return nil, err
		}
		t.CreatedAt = time.UnixMilli(created)
		t.UpdatedAt = time.UnixMilli(updated)
		out = append(out, t)
	}
	return out, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func threadExists(ctx context.Context, q queryer, id string) error {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM threads WHERE id = ?", id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	return nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	return nil
}

func isConstraintError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}
