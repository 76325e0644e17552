package chatlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendKeepsOrderAndDuplicates(t *testing.T) {
	l := New()
	l.Append(Message{Role: RoleUser, Content: "hi"})
	l.Append(Message{Role: RoleUser, Content: "hi"})
	l.Append(Message{Role: RoleAssistant, Content: "hello"})

	snap := l.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "hi", snap[0].Content)
	assert.Equal(t, "hi", snap[1].Content)
	assert.Equal(t, RoleAssistant, snap[2].Role)

	u, a := l.Counts()
	assert.Equal(t, 2, u)
	assert.Equal(t, 1, a)
}

func TestLog_SnapshotIsACopy(t *testing.T) {
	l := New()
	l.Append(Message{Role: RoleUser, Content: "original"})
	snap := l.Snapshot()
	snap[0].Content = "changed"
	l.Append(Message{Role: RoleAssistant, Content: "reply"})

	assert.Equal(t, "original", l.Snapshot()[0].Content)
	assert.Len(t, snap, 1)
}

func TestFromMessagesDropsUnknownRoles(t *testing.T) {
	l := FromMessages([]Message{
		{Role: "system", Content: "ignored"},
		{Role: RoleAssistant, Content: "welcome"},
		{Role: RoleUser, Content: "question"},
	})
	assert.Equal(t, 2, l.Len())
	first, ok := l.FirstUserMessage()
	assert.True(t, ok)
	assert.Equal(t, "question", first)
}

func TestTurns(t *testing.T) {
	turns := Turns([]Message{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}})
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "a", turns[1].Content)
}
