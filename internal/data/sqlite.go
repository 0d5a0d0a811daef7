package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"

	_ "modernc.org/sqlite"
)

// sqliteStore keeps the log and the pending buffers in one SQLite file
type sqliteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteStore opens (and migrates) the SQLite store at dbPath
func NewSQLiteStore(dbPath string, log zerolog.Logger) (Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	// Immediate transactions take the write lock up front, so two processes
	// sharing the file wait on busy_timeout instead of failing an upgrade.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			msg_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			author_name TEXT NOT NULL DEFAULT '',
			content_text TEXT NOT NULL DEFAULT '',
			content_data BLOB,
			origin TEXT NOT NULL,
			ts INTEGER NOT NULL,
			UNIQUE (conversation_id, msg_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_conv_ts ON messages(conversation_id, ts)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS pending_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			msg_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			author_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			UNIQUE (conversation_id, msg_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create pending_messages table: %w", err)
	}

	// Every message id ever recorded, so a redelivery is not buffered again
	// after its batch was drained
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS recorded_messages (
			conversation_id TEXT NOT NULL,
			msg_id TEXT NOT NULL,
			PRIMARY KEY (conversation_id, msg_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create recorded_messages table: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite store initialized")
	return &sqliteStore{db: db, log: log}, nil
}

// Append implements repo.ConversationRepo
func (s *sqliteStore) Append(ctx context.Context, msg *domain.Message) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND msg_id = ?`,
		msg.ConversationID, msg.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check message: %w", err)
	}
	if exists > 0 {
		return false, nil
	}

	var last int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ts), 0) FROM messages WHERE conversation_id = ?`,
		msg.ConversationID).Scan(&last)
	if err != nil {
		return false, fmt.Errorf("failed to read last timestamp: %w", err)
	}
	ts := nextTimestamp(toMicros(msg.Timestamp), last)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, msg_id, author_id, author_name, content_text, content_data, origin, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ConversationID, msg.ID, msg.AuthorID, msg.AuthorName,
		msg.Content.Text, contentData(msg.Content), string(msg.Origin), ts)
	if err != nil {
		return false, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit message: %w", err)
	}
	msg.Timestamp = time.UnixMicro(ts)
	return true, nil
}

// QueryRecent implements repo.ConversationRepo (newest first)
func (s *sqliteStore) QueryRecent(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT msg_id, conversation_id, author_id, author_name, content_text, content_data, origin, ts
		FROM messages
		WHERE conversation_id = ?
		ORDER BY ts DESC
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var (
			m      domain.Message
			text   string
			data   []byte
			origin string
			ts     int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.AuthorID, &m.AuthorName, &text, &data, &origin, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Content = contentFrom(text, data)
		m.Origin = domain.Origin(origin)
		m.Timestamp = time.UnixMicro(ts)
		result = append(result, m)
	}
	return result, rows.Err()
}

// Record implements repo.BufferRepo
func (s *sqliteStore) Record(ctx context.Context, conversationID string, msg domain.PendingMessage) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO recorded_messages (conversation_id, msg_id) VALUES (?, ?)`,
		conversationID, msg.MessageID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark message recorded: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pending_messages (conversation_id, msg_id, role, content, author_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, conversationID, msg.MessageID, string(msg.Role), msg.Content, msg.AuthorID, toMicros(msg.CreatedAt))
		if err != nil {
			return 0, fmt.Errorf("failed to add pending message: %w", err)
		}
	}

	var size int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_messages WHERE conversation_id = ?`, conversationID).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit pending message: %w", err)
	}
	return size, nil
}

// Drain implements repo.BufferRepo. The DELETE is a single statement, so
// of two concurrent drains only one gets the rows.
func (s *sqliteStore) Drain(ctx context.Context, conversationID string) ([]domain.PendingMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM pending_messages
		WHERE conversation_id = ?
		RETURNING id, msg_id, role, content, author_id, created_at
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to drain pending messages: %w", err)
	}
	defer rows.Close()

	type drained struct {
		id  int64
		msg domain.PendingMessage
	}
	var batch []drained
	for rows.Next() {
		var d drained
		if err := scanPending(rows, &d.id, &d.msg); err != nil {
			return nil, err
		}
		batch = append(batch, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to drain pending messages: %w", err)
	}

	// RETURNING order is unspecified
	sort.Slice(batch, func(i, j int) bool { return batch[i].id < batch[j].id })
	result := make([]domain.PendingMessage, len(batch))
	for i := range batch {
		result[i] = batch[i].msg
	}
	return result, nil
}

// Peek implements repo.BufferRepo
func (s *sqliteStore) Peek(ctx context.Context, conversationID string) ([]domain.PendingMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, msg_id, role, content, author_id, created_at
		FROM pending_messages
		WHERE conversation_id = ?
		ORDER BY id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending messages: %w", err)
	}
	defer rows.Close()

	var result []domain.PendingMessage
	for rows.Next() {
		var (
			id  int64
			msg domain.PendingMessage
		)
		if err := scanPending(rows, &id, &msg); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

// Ping checks the database connection
func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func scanPending(rows *sql.Rows, id *int64, msg *domain.PendingMessage) error {
	var (
		role      string
		createdAt int64
	)
	if err := rows.Scan(id, &msg.MessageID, &role, &msg.Content, &msg.AuthorID, &createdAt); err != nil {
		return fmt.Errorf("failed to scan pending message: %w", err)
	}
	msg.Role = domain.Role(role)
	msg.CreatedAt = time.UnixMicro(createdAt)
	return nil
}
