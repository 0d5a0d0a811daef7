package domain

import (
	"errors"
	"fmt"
)

// Platform identifies the chat platform an event came from
type Platform string

const (
	PlatformFeishu   Platform = "feishu"
	PlatformTelegram Platform = "telegram"
)

// SourceKind is the closed set of conversation sources
type SourceKind string

const (
	SourceGroup SourceKind = "group"
	SourceRoom  SourceKind = "room"
	SourceUser  SourceKind = "user"
)

// Source identifies where a message was posted. It is resolved once at
// ingress; past that point only the ConversationID is used.
type Source struct {
	Platform Platform
	Kind     SourceKind
	ID       string
}

// ConversationID returns the stable conversation key for this source
func (s Source) ConversationID() string {
	return fmt.Sprintf("%s:%s:%s", s.Platform, s.Kind, s.ID)
}

// Validate checks the source is complete and of a known kind
func (s Source) Validate() error {
	if s.Platform == "" {
		return errors.New("source platform is required")
	}
	if s.ID == "" {
		return errors.New("source id is required")
	}
	switch s.Kind {
	case SourceGroup, SourceRoom, SourceUser:
		return nil
	default:
		return fmt.Errorf("unknown source kind %q", s.Kind)
	}
}

// ReplyHandle is the opaque token needed to answer the message that
// triggered a reply cycle
type ReplyHandle struct {
	Platform  Platform
	ChatID    string
	MessageID string
}
