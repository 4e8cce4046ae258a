// Package domain contains core domain types for the goal coach.
package domain

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known message role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// titleMaxRunes bounds conversation titles derived from the first message.
const titleMaxRunes = 50

// Conversation is a chat thread owned by a single user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is an immutable entry in a conversation.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	Role           Role            `json:"role"`
	Content        string          `json:"content"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// TitleFromMessage derives a conversation title from its first user message.
func TitleFromMessage(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if title == "" {
		return "New conversation"
	}
	if utf8.RuneCountInString(title) <= titleMaxRunes {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:titleMaxRunes])) + "..."
}
