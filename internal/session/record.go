// Package session keeps the chat sessions of one user: their message logs,
// their knowledge bases, and which one is active.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/chatlog"
	"ragchat/internal/knowledge"
)

// IDTimeLayout is the sortable timestamp prefix of session ids.
const IDTimeLayout = "2006-01-02_15-04-05"

const displayQueryRunes = 40

// Record binds a session id to its chat log and knowledge base. KB is nil
// until the first successful ingestion and is never persisted.
type Record struct {
	ID        string
	Log       *chatlog.Log
	KB        *knowledge.Base
	Summary   string
	CreatedAt time.Time
	UpdatedAt time.Time

	dirty bool
}

func newRecord(id string, now time.Time) *Record {
	return &Record{ID: id, Log: chatlog.New(), CreatedAt: now, UpdatedAt: now}
}

func recordFromTranscript(t Transcript) *Record {
	return &Record{
		ID:        t.ID,
		Log:       chatlog.FromMessages(t.Messages),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// Ready reports whether the session can answer questions.
func (r *Record) Ready() bool { return r.KB != nil }

func (r *Record) transcript() Transcript {
	return Transcript{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, Messages: r.Log.Snapshot()}
}

// NewID returns a session id: the creation time in IDTimeLayout followed by
// a random suffix that keeps ids created in the same second apart.
func NewID(now time.Time) string {
	return now.Format(IDTimeLayout) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// IDTime parses the creation time encoded in a session id.
func IDTime(id string) (time.Time, bool) {
	if len(id) < len(IDTimeLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(IDTimeLayout, id[:len(IDTimeLayout)], time.Local)
	return t, err == nil
}

// DisplayName renders a session for the history list: the first question,
// shortened, and the creation date. Sessions without questions show their id.
func DisplayName(id, firstQuestion string) string {
	q := strings.Join(strings.Fields(firstQuestion), " ")
	if q == "" {
		return id
	}
	if r := []rune(q); len(r) > displayQueryRunes {
		q = string(r[:displayQueryRunes]) + "..."
	}
	if t, ok := IDTime(id); ok {
		return fmt.Sprintf("%s - %s", q, t.Format("Jan 02, 2006"))
	}
	return q
}
