// Package chat holds the chat-side authorization model: message
// visibility and chat membership permissions. Pure data-model
// operations, no I/O.
package chat

import (
	"slices"
	"time"

	"github.com/fyrsmithlabs/knowledged/internal/auth"
)

// Visibility controls who may read a message.
type Visibility string

const (
	// VisibilityPublic messages are readable by any chat member.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate messages are readable only by the author, the
	// explicitly listed users, and holders of a listed role.
	VisibilityPrivate Visibility = "private"
)

// MessageRole distinguishes who produced a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is a single chat message. The AccessScope is computed from
// the author's context at creation time and never changes afterward.
type Message struct {
	ID              string
	ChatID          string
	AuthorID        string
	ParentID        string
	Role            MessageRole
	Content         string
	Visibility      Visibility
	VisibilityRoles []string
	VisibilityUsers []string
	AccessScope     auth.AccessScope
	ModelUsed       string
	Metadata        map[string]any
	CreatedAt       time.Time
}

// NewPublicMessage builds a public message, deriving its AccessScope
// from the author's context.
func NewPublicMessage(chatID string, author auth.Context, role MessageRole, content string) Message {
	return Message{
		ChatID:      chatID,
		AuthorID:    author.UserID,
		Role:        role,
		Content:     content,
		Visibility:  VisibilityPublic,
		AccessScope: auth.ScopeFromContext(author),
		Metadata:    map[string]any{},
	}
}

// NewPrivateMessage builds a private message visible to the author plus
// the given users and roles.
func NewPrivateMessage(chatID string, author auth.Context, role MessageRole, content string, users, roles []string) Message {
	m := NewPublicMessage(chatID, author, role, content)
	m.Visibility = VisibilityPrivate
	m.VisibilityUsers = users
	m.VisibilityRoles = roles
	return m
}

// CanViewMessage reports whether the caller may read the message.
// Public messages are visible to every chat member; private messages
// only to the author, explicitly listed users, and listed roles.
func CanViewMessage(m Message, ctx auth.Context) bool {
	switch m.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityPrivate:
		if ctx.UserID != "" && ctx.UserID == m.AuthorID {
			return true
		}
		if ctx.UserID != "" && slices.Contains(m.VisibilityUsers, ctx.UserID) {
			return true
		}
		return ctx.HasAnyRole(m.VisibilityRoles)
	default:
		return false
	}
}

// FilterVisibleMessages keeps only the messages the caller may read,
// preserving order.
func FilterVisibleMessages(messages []Message, ctx auth.Context) []Message {
	visible := make([]Message, 0, len(messages))
	for _, m := range messages {
		if CanViewMessage(m, ctx) {
			visible = append(visible, m)
		}
	}
	return visible
}
