package domain

import (
	"encoding/json"
	"testing"
)

func TestContent_PlainText(t *testing.T) {
	c := TextContent("hello there")
	if c.IsStructured() {
		t.Error("Expected plain text content to not be structured")
	}
	if c.String() != "hello there" {
		t.Errorf("Expected 'hello there', got %q", c.String())
	}
}

func TestContent_StructuredIsDeterministic(t *testing.T) {
	a := Content{Data: json.RawMessage(`{"longitude": 121.5, "latitude": 25.03, "title":"Taipei"}`)}
	b := Content{Data: json.RawMessage(`{"title":"Taipei","latitude":25.03,"longitude":121.5}`)}

	if !a.IsStructured() {
		t.Fatal("Expected structured content")
	}
	if a.String() != b.String() {
		t.Errorf("Expected same rendering, got %q and %q", a.String(), b.String())
	}

	want := `{"latitude":25.03,"longitude":121.5,"title":"Taipei"}`
	if a.String() != want {
		t.Errorf("Expected %s, got %s", want, a.String())
	}
}

func TestContent_StructuredKeepsNumbers(t *testing.T) {
	c := Content{Data: json.RawMessage(`{"id": 12345678901234567890}`)}
	if c.String() != `{"id":12345678901234567890}` {
		t.Errorf("Expected large number preserved, got %s", c.String())
	}
}

func TestContent_InvalidJSONFallsBackToText(t *testing.T) {
	c := Content{Data: json.RawMessage("  not json  ")}
	if c.String() != "not json" {
		t.Errorf("Expected raw text fallback, got %q", c.String())
	}
}

func TestStructuredContent(t *testing.T) {
	c, err := StructuredContent(map[string]any{"sticker": "smile", "pack": "default"})
	if err != nil {
		t.Fatalf("StructuredContent failed: %v", err)
	}
	if c.String() != `{"pack":"default","sticker":"smile"}` {
		t.Errorf("Unexpected rendering: %s", c.String())
	}
}
