// Package chatlog holds the ordered, append-only message record of a session.
package chatlog

import (
	"time"

	"ragchat/internal/domain"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable chat entry.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Log is the conversation of a single session in display order.
// It is not safe for concurrent use; the session manager serializes access.
type Log struct {
	messages []Message
}

// New returns an empty log.
func New() *Log { return &Log{} }

// FromMessages rebuilds a log from persisted messages, dropping entries
// with an unknown role.
func FromMessages(msgs []Message) *Log {
	l := &Log{messages: make([]Message, 0, len(msgs))}
	for _, m := range msgs {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		l.messages = append(l.messages, m)
	}
	return l
}

// Append adds m at the end of the log.
func (l *Log) Append(m Message) {
	l.messages = append(l.messages, m)
}

// Snapshot returns a copy of the committed messages.
func (l *Log) Snapshot() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int { return len(l.messages) }

// Counts returns the number of user and assistant messages.
func (l *Log) Counts() (user, assistant int) {
	for _, m := range l.messages {
		switch m.Role {
		case RoleUser:
			user++
		case RoleAssistant:
			assistant++
		}
	}
	return user, assistant
}

// FirstUserMessage returns the content of the first user message, if any.
func (l *Log) FirstUserMessage() (string, bool) {
	return FirstUserMessage(l.messages)
}

// FirstUserMessage returns the content of the first user message in msgs.
func FirstUserMessage(msgs []Message) (string, bool) {
	for _, m := range msgs {
		if m.Role == RoleUser {
			return m.Content, true
		}
	}
	return "", false
}

// Turns converts messages to the completer's history representation.
func Turns(msgs []Message) []domain.Turn {
	out := make([]domain.Turn, len(msgs))
	for i, m := range msgs {
		out[i] = domain.Turn{Role: string(m.Role), Content: m.Content}
	}
	return out
}
