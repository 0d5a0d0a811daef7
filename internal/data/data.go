package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/DevRickLin/chat-relay/internal/biz/domain"
	"github.com/DevRickLin/chat-relay/internal/biz/repo"
)

// Store drivers
const (
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Store is a durable conversation log together with its pending buffers
type Store interface {
	repo.ConversationRepo
	repo.BufferRepo
	Ping(ctx context.Context) error
}

// StoreConfig selects and configures a store driver
type StoreConfig struct {
	Driver      string
	SQLitePath  string
	RedisURL    string
	DatabaseURL string
}

// NewStore opens the store selected by cfg.Driver
func NewStore(ctx context.Context, cfg StoreConfig, log zerolog.Logger) (Store, error) {
	log = log.With().Str("driver", cfg.Driver).Logger()
	switch cfg.Driver {
	case DriverSQLite, "":
		return NewSQLiteStore(cfg.SQLitePath, log)
	case DriverRedis:
		return NewRedisStore(ctx, cfg.RedisURL, log)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.DatabaseURL, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// nextTimestamp keeps the per-conversation sort key strictly increasing.
// Both values are Unix microseconds; last is 0 for an empty conversation.
func nextTimestamp(ts, last int64) int64 {
	if ts <= last {
		return last + 1
	}
	return ts
}

func toMicros(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMicro()
}

// contentData returns the structured payload for storage, nil for plain text
func contentData(c domain.Content) []byte {
	if !c.IsStructured() {
		return nil
	}
	return []byte(c.Data)
}

func contentFrom(text string, data []byte) domain.Content {
	if len(data) == 0 {
		return domain.TextContent(text)
	}
	return domain.Content{Text: text, Data: json.RawMessage(data)}
}
