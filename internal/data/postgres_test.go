package data

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func newTestPostgresStore(t *testing.T) Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("set TEST_DATABASE_URL to run postgres-backed store tests")
	}
	s, err := NewPostgresStore(context.Background(), url, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresAppendAndQueryRecent(t *testing.T) {
	testConversationLog(t, newTestPostgresStore(t))
}

func TestPostgresBuffer(t *testing.T) {
	testPendingBuffer(t, newTestPostgresStore(t))
}

func TestPostgresRecordIdempotent(t *testing.T) {
	testIdempotentRecord(t, newTestPostgresStore(t))
}

func TestPostgresConcurrentDrain(t *testing.T) {
	testConcurrentDrain(t, newTestPostgresStore(t))
}

func TestNewStoreUnknownDriver(t *testing.T) {
	if _, err := NewStore(context.Background(), StoreConfig{Driver: "mongo"}, zerolog.Nop()); err == nil {
		t.Error("Expected error for unknown driver")
	}
}
