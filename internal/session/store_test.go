package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/chatlog"
	"ragchat/internal/domain"
)

type countingBackend struct {
	Backend
	saves int
	loads int
}

func (c *countingBackend) Save(ctx context.Context, t Transcript) error {
	c.saves++
	return c.Backend.Save(ctx, t)
}

func (c *countingBackend) Load(ctx context.Context, id string) (Transcript, error) {
	c.loads++
	return c.Backend.Load(ctx, id)
}

func steppingClock() func() time.Time {
	t := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func openStore(t *testing.T, b Backend) *Store {
	t.Helper()
	s, err := Open(context.Background(), b, WithClock(steppingClock()))
	require.NoError(t, err)
	return s
}

func say(s *Store, role chatlog.Role, text string) {
	s.Active().Log.Append(chatlog.Message{Role: role, Content: text})
	s.Touch()
}

func TestOpen_StartsWithOneActiveSession(t *testing.T) {
	s := openStore(t, NewMemoryBackend())

	require.NotNil(t, s.Active())
	assert.Equal(t, []string{s.Active().ID}, s.IDs())
	assert.False(t, s.Active().Ready())
	assert.Zero(t, s.Active().Log.Len())
}

func TestCreate_DistinctIDs(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, NewMemoryBackend())

	seen := map[string]bool{s.Active().ID: true}
	for range 5 {
		id, err := s.Create(ctx)
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
		assert.Equal(t, id, s.Active().ID)
		assert.Zero(t, s.Active().Log.Len())
	}
	assert.Len(t, s.IDs(), 6)
}

func TestCreate_RegeneratesCollidingID(t *testing.T) {
	ctx := context.Background()
	ids := []string{"a", "a", "a", "b"}
	gen := func(time.Time) string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	s, err := Open(ctx, NewMemoryBackend(), WithIDGenerator(gen))
	require.NoError(t, err)
	require.Equal(t, "a", s.Active().ID)

	id, err := s.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", id)
}

func TestCreate_FlushesPreviousSession(t *testing.T) {
	ctx := context.Background()
	b := &countingBackend{Backend: NewMemoryBackend()}
	s := openStore(t, b)
	first := s.Active().ID
	say(s, chatlog.RoleUser, "hello")

	_, err := s.Create(ctx)
	require.NoError(t, err)

	got, err := b.Backend.Load(ctx, first)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestSwitchTo_UnknownID(t *testing.T) {
	s := openStore(t, NewMemoryBackend())
	before := s.Active()

	err := s.SwitchTo(context.Background(), "2020-01-01_00-00-00_deadbeef")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Same(t, before, s.Active())
}

func TestSwitchTo_SameIDIsNoop(t *testing.T) {
	b := &countingBackend{Backend: NewMemoryBackend()}
	s := openStore(t, b)
	say(s, chatlog.RoleUser, "pending")

	require.NoError(t, s.SwitchTo(context.Background(), s.Active().ID))
	assert.Zero(t, b.saves)
	assert.Zero(t, b.loads)
	assert.True(t, s.Active().dirty)
}

func TestSwitchTo_RestoresInMemoryRecord(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, NewMemoryBackend())
	first := s.Active()
	say(s, chatlog.RoleUser, "q1")
	say(s, chatlog.RoleAssistant, "a1")

	_, err := s.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SwitchTo(ctx, first.ID))

	assert.Same(t, first, s.Active())
	assert.Equal(t, 2, s.Active().Log.Len())
}

func TestIDs_MostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, NewMemoryBackend())
	a := s.Active().ID
	b, err := s.Create(ctx)
	require.NoError(t, err)
	c, err := s.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{c, b, a}, s.IDs())

	require.NoError(t, s.SwitchTo(ctx, a))
	say(s, chatlog.RoleUser, "bump")
	assert.Equal(t, []string{a, c, b}, s.IDs())
}

func TestSessions_Titles(t *testing.T) {
	s := openStore(t, NewMemoryBackend())
	id := s.Active().ID
	assert.Equal(t, id, s.Sessions()[0].Title)

	say(s, chatlog.RoleUser, "What is the capital of France and why is it there?")
	sum := s.Sessions()[0]
	assert.True(t, sum.Active)
	assert.Equal(t, DisplayName(id, "What is the capital of France and why is it there?"), sum.Title)
}

func TestFileBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fb, err := NewFileBackend(dir, nil)
	require.NoError(t, err)

	s := openStore(t, fb)
	id := s.Active().ID
	for i := range 4 {
		say(s, chatlog.RoleUser, fmt.Sprintf("question %d", i))
		say(s, chatlog.RoleAssistant, fmt.Sprintf("answer %d", i))
	}
	require.NoError(t, s.Flush(ctx))
	assert.FileExists(t, filepath.Join(dir, id+".json"))

	// a new process sees the session and loads it lazily
	reopened := openStore(t, fb)
	assert.Contains(t, reopened.IDs(), id)
	require.NoError(t, reopened.SwitchTo(ctx, id))

	msgs := reopened.Active().Log.Snapshot()
	require.Len(t, msgs, 8)
	for i := range 4 {
		assert.Equal(t, chatlog.RoleUser, msgs[2*i].Role)
		assert.Equal(t, fmt.Sprintf("question %d", i), msgs[2*i].Content)
		assert.Equal(t, fmt.Sprintf("answer %d", i), msgs[2*i+1].Content)
	}
	assert.False(t, reopened.Active().Ready())
}

func TestFileBackend_CorruptIsNotFound(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fb, err := NewFileBackend(dir, nil)
	require.NoError(t, err)

	id := "2026-01-02_03-04-05_0badf00d"
	require.NoError(t, fb.Save(ctx, Transcript{ID: id, Messages: []chatlog.Message{{Role: chatlog.RoleUser, Content: "hi"}}}))
	s := openStore(t, fb)
	require.Contains(t, s.IDs(), id)

	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), []byte("{not json"), 0o644))
	before := s.Active()
	err = s.SwitchTo(ctx, id)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Same(t, before, s.Active())

	_, err = fb.Load(ctx, "../escape")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFileBackend_ReadsBareMessageArrays(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fb, err := NewFileBackend(dir, nil)
	require.NoError(t, err)

	id := "2024-05-06_07-08-09"
	data := `[{"role":"user","content":"old question"},{"role":"assistant","content":"old answer"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), []byte(data), 0o644))

	got, err := fb.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, 2024, got.CreatedAt.Year())

	infos, err := fb.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "old question", infos[0].FirstQuestion)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	s := openStore(t, b)
	a := s.Active().ID
	say(s, chatlog.RoleUser, "keep me")
	bID, err := s.Create(ctx)
	require.NoError(t, err)

	require.ErrorIs(t, s.Delete(ctx, "missing"), domain.ErrNotFound)

	require.NoError(t, s.Delete(ctx, bID))
	assert.Equal(t, []string{a}, s.IDs())
	assert.Equal(t, a, s.Active().ID)
	_, err = b.Load(ctx, bID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Delete(ctx, a))
	require.Len(t, s.IDs(), 1)
	assert.NotEqual(t, a, s.Active().ID)
	assert.Zero(t, s.Active().Log.Len())
}

func TestDisplayName(t *testing.T) {
	id := "2025-07-04_12-00-00_abcdef01"
	assert.Equal(t, id, DisplayName(id, ""))
	assert.Equal(t, "Short question - Jul 04, 2025", DisplayName(id, "Short question"))
	long := "This question is definitely longer than forty runes in total"
	assert.Equal(t, "This question is definitely longer than ... - Jul 04, 2025", DisplayName(id, long))
	assert.Equal(t, "no date", DisplayName("custom", "no date"))
}

func TestNewID(t *testing.T) {
	now := time.Date(2025, 7, 4, 12, 0, 0, 0, time.Local)
	a, b := NewID(now), NewID(now)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^2025-07-04_12-00-00_[0-9a-f]{8}$`, a)
	ts, ok := IDTime(a)
	require.True(t, ok)
	assert.True(t, ts.Equal(now))
}
