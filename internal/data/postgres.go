package data

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS relay_messages (
	id BIGSERIAL PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	msg_id TEXT NOT NULL,
	author_id TEXT NOT NULL,
	author_name TEXT NOT NULL DEFAULT '',
	content_text TEXT NOT NULL DEFAULT '',
	content_data BYTEA,
	origin TEXT NOT NULL,
	ts BIGINT NOT NULL,
	UNIQUE (conversation_id, msg_id)
);
CREATE INDEX IF NOT EXISTS relay_messages_conv_ts ON relay_messages (conversation_id, ts DESC);
CREATE TABLE IF NOT EXISTS relay_pending (
	id BIGSERIAL PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	msg_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	author_id TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL,
	UNIQUE (conversation_id, msg_id)
);
CREATE TABLE IF NOT EXISTS relay_recorded (
	conversation_id TEXT NOT NULL,
	msg_id TEXT NOT NULL,
	PRIMARY KEY (conversation_id, msg_id)
);
`

// postgresStore keeps the log and the pending buffers in PostgreSQL
type postgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgresStore connects to databaseURL and migrates the schema
func NewPostgresStore(ctx context.Context, databaseURL string, log zerolog.Logger) (Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Info().Msg("postgres store initialized")
	return &postgresStore{pool: pool, log: log}, nil
}

// Append implements repo.ConversationRepo. A transaction-scoped advisory
// lock on the conversation serializes appenders across instances.
func (s *postgresStore) Append(ctx context.Context, msg *domain.Message) (bool, error) {
	var (
		inserted bool
		ts       int64
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, msg.ConversationID); err != nil {
			return fmt.Errorf("failed to lock conversation: %w", err)
		}

		var last int64
		err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(ts), 0) FROM relay_messages WHERE conversation_id = $1`,
			msg.ConversationID).Scan(&last)
		if err != nil {
			return fmt.Errorf("failed to read last timestamp: %w", err)
		}
		ts = nextTimestamp(toMicros(msg.Timestamp), last)

		tag, err := tx.Exec(ctx, `
			INSERT INTO relay_messages (conversation_id, msg_id, author_id, author_name, content_text, content_data, origin, ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (conversation_id, msg_id) DO NOTHING
		`, msg.ConversationID, msg.ID, msg.AuthorID, msg.AuthorName,
			msg.Content.Text, contentData(msg.Content), string(msg.Origin), ts)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		inserted = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	if inserted {
		msg.Timestamp = time.UnixMicro(ts)
	}
	return inserted, nil
}

// QueryRecent implements repo.ConversationRepo (newest first)
func (s *postgresStore) QueryRecent(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT msg_id, author_id, author_name, content_text, content_data, origin, ts
		FROM relay_messages
		WHERE conversation_id = $1
		ORDER BY ts DESC
		LIMIT $2
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
		if err := rows.Scan(&m.ID, &m.AuthorID, &m.AuthorName, &text, &data, &origin, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.ConversationID = conversationID
		m.Content = contentFrom(text, data)
		m.Origin = domain.Origin(origin)
		m.Timestamp = time.UnixMicro(ts)
		result = append(result, m)
	}
	return result, rows.Err()
}

// Record implements repo.BufferRepo
func (s *postgresStore) Record(ctx context.Context, conversationID string, msg domain.PendingMessage) (int, error) {
	var size int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO relay_recorded (conversation_id, msg_id) VALUES ($1, $2)
			ON CONFLICT (conversation_id, msg_id) DO NOTHING
		`, conversationID, msg.MessageID)
		if err != nil {
			return fmt.Errorf("failed to mark message recorded: %w", err)
		}
		if tag.RowsAffected() == 1 {
			_, err = tx.Exec(ctx, `
				INSERT INTO relay_pending (conversation_id, msg_id, role, content, author_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, conversationID, msg.MessageID, string(msg.Role), msg.Content, msg.AuthorID, toMicros(msg.CreatedAt))
			if err != nil {
				return fmt.Errorf("failed to add pending message: %w", err)
			}
		}
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM relay_pending WHERE conversation_id = $1`, conversationID).Scan(&size)
		if err != nil {
			return fmt.Errorf("failed to count pending messages: %w", err)
		}
		return nil
	})
	return size, err
}

// Drain implements repo.BufferRepo. The conversation's advisory lock is held
// for the DELETE, so concurrent drains never split a batch.
func (s *postgresStore) Drain(ctx context.Context, conversationID string) ([]domain.PendingMessage, error) {
	var result []domain.PendingMessage
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, conversationID); err != nil {
			return fmt.Errorf("failed to lock conversation: %w", err)
		}
		rows, err := tx.Query(ctx, `
			DELETE FROM relay_pending
			WHERE conversation_id = $1
			RETURNING id, msg_id, role, content, author_id, created_at
		`, conversationID)
		if err != nil {
			return fmt.Errorf("failed to drain pending messages: %w", err)
		}
		result, err = collectPending(rows, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Peek implements repo.BufferRepo
func (s *postgresStore) Peek(ctx context.Context, conversationID string) ([]domain.PendingMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, msg_id, role, content, author_id, created_at
		FROM relay_pending
		WHERE conversation_id = $1
		ORDER BY id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending messages: %w", err)
	}
	return collectPending(rows, false)
}

func collectPending(rows pgx.Rows, sortByID bool) ([]domain.PendingMessage, error) {
	defer rows.Close()

	type row struct {
		id  int64
		msg domain.PendingMessage
	}
	var batch []row
	for rows.Next() {
		var (
			r         row
			role      string
			createdAt int64
		)
		if err := rows.Scan(&r.id, &r.msg.MessageID, &role, &r.msg.Content, &r.msg.AuthorID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending message: %w", err)
		}
		r.msg.Role = domain.Role(role)
		r.msg.CreatedAt = time.UnixMicro(createdAt)
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending messages: %w", err)
	}

	if sortByID {
		sort.Slice(batch, func(i, j int) bool { return batch[i].id < batch[j].id })
	}
	result := make([]domain.PendingMessage, len(batch))
	for i := range batch {
		result[i] = batch[i].msg
	}
	return result, nil
}

// Ping checks the database connection
func (s *postgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
