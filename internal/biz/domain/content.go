package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Content is the body of a message: either plain text or a structured
// payload (location, sticker, card...) kept as JSON.
type Content struct {
	Text string
	Data json.RawMessage
}

// TextContent wraps plain text
func TextContent(text string) Content {
	return Content{Text: text}
}

// StructuredContent encodes v as the message payload
func StructuredContent(v any) (Content, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Content{}, fmt.Errorf("encode structured content: %w", err)
	}
	return Content{Data: data}, nil
}

// IsStructured reports whether the content carries a non-text payload
func (c Content) IsStructured() bool {
	return len(bytes.TrimSpace(c.Data)) > 0
}

// String renders the content as text. Structured payloads are re-encoded
// canonically (sorted object keys, no insignificant whitespace), so the
// same payload always yields the same string whatever order it was stored in.
func (c Content) String() string {
	if !c.IsStructured() {
		return c.Text
	}
	return canonicalJSON(c.Data)
}

func canonicalJSON(raw json.RawMessage) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		// Not valid JSON; pass the bytes through as text rather than fail
		return string(bytes.TrimSpace(raw))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return string(bytes.TrimSpace(raw))
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
