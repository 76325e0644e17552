package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/chunker"
	"ragchat/internal/completion"
	"ragchat/internal/embedding/hashing"
	"ragchat/internal/extract"
	"ragchat/internal/knowledge"
	"ragchat/internal/service"
	"ragchat/internal/session"
	"ragchat/internal/summarizer"
	"ragchat/internal/vectorstore/memory"
)

func newTestModel(t *testing.T) (Model, *service.Manager) {
	t.Helper()
	ctx := context.Background()
	store, err := session.Open(ctx, session.NewMemoryBackend())
	require.NoError(t, err)
	builder := knowledge.NewBuilder(chunker.NewSentenceChunker(3, 0), hashing.NewEmbedder(hashing.DefaultDimension), memory.Factory(), completion.NewExtractive(2))
	mgr := service.NewManager(store, extract.New(), builder, summarizer.NewFrequencySummarizer())

	m := New(ctx, mgr)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model), mgr
}

// drain runs cmd and feeds every resulting action message back into the model.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	for _, msg := range collect(cmd) {
		if done, ok := msg.(actionDoneMsg); ok {
			next, _ := m.Update(done)
			m = next.(Model)
		}
	}
	return m
}

func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func typeAndEnter(t *testing.T, m Model, text string) Model {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.True(t, m.busy)
	return drain(t, m, cmd)
}

func TestAskBeforeUploadWarns(t *testing.T) {
	m, _ := newTestModel(t)

	m = typeAndEnter(t, m, "hello?")

	assert.False(t, m.busy)
	assert.Equal(t, statusWarn, m.statusKind)
	require.Len(t, m.view.Messages, 1)
	assert.Contains(t, m.View(), "hello?")
}

func TestUploadThenAsk(t *testing.T) {
	m, _ := newTestModel(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "tides.txt")
	require.NoError(t, os.WriteFile(path, []byte("The moon causes ocean tides. Spring tides happen at full moon. Neap tides are weaker."), 0o644))

	m = typeAndEnter(t, m, "/upload "+filepath.Join(dir, "*.txt")+" "+filepath.Join(dir, "missing.txt"))
	assert.Equal(t, statusInfo, m.statusKind, m.status)
	assert.True(t, m.view.Ready)
	require.NotNil(t, m.upload)
	assert.Len(t, m.upload.Skipped, 1)
	assert.Contains(t, m.View(), "tides.txt")

	m = typeAndEnter(t, m, "What causes ocean tides?")
	assert.Equal(t, statusInfo, m.statusKind, m.status)
	require.Len(t, m.view.Messages, 2)
	assert.Contains(t, m.view.Messages[1].Content, "moon")
}

func TestUploadUsage(t *testing.T) {
	m, _ := newTestModel(t)
	m.input.SetValue("/upload")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)

	assert.Nil(t, cmd)
	assert.False(t, m.busy)
	assert.Equal(t, statusWarn, m.statusKind)
}

func TestNewSessionAndSwitchBack(t *testing.T) {
	m, _ := newTestModel(t)
	m = typeAndEnter(t, m, "first question")
	first := m.view.SessionID

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	m = drain(t, next.(Model), cmd)
	assert.NotEqual(t, first, m.view.SessionID)
	assert.Empty(t, m.view.Messages)
	require.Len(t, m.view.Sessions, 2)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	require.Equal(t, focusSessions, m.focus)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	require.Equal(t, first, m.view.Sessions[m.cursor].ID)

	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = drain(t, next.(Model), cmd)
	assert.Equal(t, first, m.view.SessionID)
	assert.Equal(t, focusInput, m.focus)
	require.Len(t, m.view.Messages, 1)
}

func TestBusyIgnoresInput(t *testing.T) {
	m, _ := newTestModel(t)
	m.busy = true

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Nil(t, cmd)
	assert.Len(t, next.(Model).view.Sessions, 1)
}

func TestHighlightBestSentence(t *testing.T) {
	answer := "Cats sleep a lot. Dogs bark at strangers.\n\nSources: pets.txt"
	out := highlightBestSentence(answer, "Why do dogs bark?")

	assert.True(t, strings.HasSuffix(out, "\n\nSources: pets.txt"))
	assert.Contains(t, out, "Cats sleep a lot.")
	assert.Contains(t, out, highlightStyle.Render("Dogs bark at strangers."))

	assert.Equal(t, "single sentence.", highlightBestSentence("single sentence.", "sentence"))
}
