package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
)

// appendScript inserts a message into a conversation log atomically.
// KEYS[1] is the seen-id set, KEYS[2] the log sorted set.
// ARGV: message id, requested timestamp (µs), encoded message.
// Returns the stored timestamp, or -1 for a duplicate.
var appendScript = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 0 then
	return -1
end
local ts = tonumber(ARGV[2])
local last = redis.call('ZRANGE', KEYS[2], -1, -1, 'WITHSCORES')
if #last == 2 then
	local lastTs = tonumber(last[2])
	if ts <= lastTs then
		ts = lastTs + 1
	end
end
redis.call('ZADD', KEYS[2], ts, ARGV[3])
return ts
`)

// recordScript adds a message to a pending buffer once per message id.
// KEYS[1] is the recorded-id set, KEYS[2] the pending list.
// ARGV: message id, encoded pending message. Returns the list length.
var recordScript = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 1 then
	redis.call('RPUSH', KEYS[2], ARGV[2])
end
return redis.call('LLEN', KEYS[2])
`)

// redisStore keeps each conversation as a sorted set scored by timestamp
// and each pending buffer as a list
type redisStore struct {
	client *redis.Client
	log    zerolog.Logger
}

// redisMessage is the stored member; the timestamp lives in the score
type redisMessage struct {
	ID         string          `json:"id"`
	AuthorID   string          `json:"author_id"`
	AuthorName string          `json:"author_name,omitempty"`
	Text       string          `json:"text,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Origin     domain.Origin   `json:"origin"`
}

type redisPending struct {
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	AuthorID  string      `json:"author_id,omitempty"`
	MessageID string      `json:"message_id"`
	CreatedAt int64       `json:"created_at"`
}

// NewRedisStore connects to Redis at redisURL
func NewRedisStore(ctx context.Context, redisURL string, log zerolog.Logger) (Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("addr", opts.Addr).Msg("redis store initialized")
	return &redisStore{client: client, log: log}, nil
}

func logKey(conversationID string) string {
	return fmt.Sprintf("relay:conv:%s:log", conversationID)
}

func seenKey(conversationID string) string {
	return fmt.Sprintf("relay:conv:%s:ids", conversationID)
}

func pendingKey(conversationID string) string {
	return fmt.Sprintf("relay:conv:%s:pending", conversationID)
}

func recordedKey(conversationID string) string {
	return fmt.Sprintf("relay:conv:%s:recorded", conversationID)
}

// Append implements repo.ConversationRepo
func (s *redisStore) Append(ctx context.Context, msg *domain.Message) (bool, error) {
	member, err := json.Marshal(redisMessage{
		ID:         msg.ID,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Text:       msg.Content.Text,
		Data:       contentData(msg.Content),
		Origin:     msg.Origin,
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode message: %w", err)
	}

	keys := []string{seenKey(msg.ConversationID), logKey(msg.ConversationID)}
	ts, err := appendScript.Run(ctx, s.client, keys, msg.ID, toMicros(msg.Timestamp), string(member)).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to append message: %w", err)
	}
	if ts < 0 {
		return false, nil
	}
	msg.Timestamp = time.UnixMicro(ts)
	return true, nil
}

// QueryRecent implements repo.ConversationRepo (newest first)
func (s *redisStore) QueryRecent(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	members, err := s.client.ZRevRangeWithScores(ctx, logKey(conversationID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	result := make([]domain.Message, 0, len(members))
	for _, z := range members {
		raw, ok := z.Member.(string)
		if !ok {
			continue
		}
		var rm redisMessage
		if err := json.Unmarshal([]byte(raw), &rm); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("skipping undecodable message")
			continue
		}
		result = append(result, domain.Message{
			ID:             rm.ID,
			ConversationID: conversationID,
			AuthorID:       rm.AuthorID,
			AuthorName:     rm.AuthorName,
			Content:        contentFrom(rm.Text, rm.Data),
			Timestamp:      time.UnixMicro(int64(z.Score)),
			Origin:         rm.Origin,
		})
	}
	return result, nil
}

// Record implements repo.BufferRepo
func (s *redisStore) Record(ctx context.Context, conversationID string, msg domain.PendingMessage) (int, error) {
	data, err := json.Marshal(redisPending{
		Role:      msg.Role,
		Content:   msg.Content,
		AuthorID:  msg.AuthorID,
		MessageID: msg.MessageID,
		CreatedAt: toMicros(msg.CreatedAt),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode pending message: %w", err)
	}

	keys := []string{recordedKey(conversationID), pendingKey(conversationID)}
	size, err := recordScript.Run(ctx, s.client, keys, msg.MessageID, string(data)).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to add pending message: %w", err)
	}
	return int(size), nil
}

// Drain implements repo.BufferRepo. LRANGE and DEL run in one MULTI/EXEC,
// so concurrent drains cannot both see the same entries.
func (s *redisStore) Drain(ctx context.Context, conversationID string) ([]domain.PendingMessage, error) {
	key := pendingKey(conversationID)

	var rangeCmd *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rangeCmd = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain pending messages: %w", err)
	}
	return s.decodePending(conversationID, rangeCmd.Val()), nil
}

// Peek implements repo.BufferRepo
func (s *redisStore) Peek(ctx context.Context, conversationID string) ([]domain.PendingMessage, error) {
	items, err := s.client.LRange(ctx, pendingKey(conversationID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to query pending messages: %w", err)
	}
	return s.decodePending(conversationID, items), nil
}

func (s *redisStore) decodePending(conversationID string, items []string) []domain.PendingMessage {
	result := make([]domain.PendingMessage, 0, len(items))
	for _, item := range items {
		var p redisPending
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("skipping undecodable pending message")
			continue
		}
		result = append(result, domain.PendingMessage{
			Role:      p.Role,
			Content:   p.Content,
			AuthorID:  p.AuthorID,
			MessageID: p.MessageID,
			CreatedAt: time.UnixMicro(p.CreatedAt),
		})
	}
	return result
}

// Ping checks the Redis connection
func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *redisStore) Close() error {
	return s.client.Close()
}
