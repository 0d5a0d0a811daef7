package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(&buf, false), "cycle")

	log.Debug().Msg("hidden")
	log.Info().Str("conversation_id", "telegram:group:-1").Msg("cycle finished")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line (debug suppressed), got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON output: %v", err)
	}
	if entry["component"] != "cycle" || entry["conversation_id"] != "telegram:group:-1" {
		t.Errorf("Unexpected entry: %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("Expected timestamp field")
	}
}

func TestNewDebugConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, true)

	log.Debug().Msg("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("Expected debug line in console output, got %q", buf.String())
	}
	if json.Valid(buf.Bytes()) {
		t.Error("Expected console (non-JSON) output in debug mode")
	}
}
