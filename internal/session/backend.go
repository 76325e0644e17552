package session

import (
	"context"
	"time"

	"ragchat/internal/chatlog"
)

// Transcript is the durable part of a session.
type Transcript struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Messages  []chatlog.Message `json:"messages"`
}

// Info is the listing entry of a stored transcript.
type Info struct {
	ID            string
	FirstQuestion string
	UpdatedAt     time.Time
}

// Backend stores one transcript per session id. Load returns an error
// wrapping domain.ErrNotFound for missing and for unreadable records.
type Backend interface {
	Save(ctx context.Context, t Transcript) error
	Load(ctx context.Context, id string) (Transcript, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Info, error)
}

func infoOf(t Transcript) Info {
	q, _ := chatlog.FirstUserMessage(t.Messages)
	return Info{ID: t.ID, FirstQuestion: q, UpdatedAt: t.UpdatedAt}
}

func cloneTranscript(t Transcript) Transcript {
	msgs := make([]chatlog.Message, len(t.Messages))
	copy(msgs, t.Messages)
	t.Messages = msgs
	return t
}
