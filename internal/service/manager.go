// Package service coordinates sessions, their knowledge bases and questions.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ragchat/internal/chatlog"
	"ragchat/internal/domain"
	"ragchat/internal/extract"
	"ragchat/internal/knowledge"
	"ragchat/internal/session"
)

const defaultSummarySentences = 3

// IngestResult reports what an upload did to the active session.
type IngestResult struct {
	Documents []string
	Skipped   []extract.Skipped
	Summary   string
	Created   bool
	Total     int
}

// View is a snapshot of the state a user interface renders.
type View struct {
	SessionID          string
	Title              string
	Messages           []chatlog.Message
	Ready              bool
	Summary            string
	Documents          []string
	Chunks             int
	Sessions           []session.Summary
	UploaderGeneration int
}

// Manager runs one action at a time against the session store.
type Manager struct {
	mu sync.Mutex

	store            *session.Store
	extractor        *extract.Extractor
	builder          *knowledge.Builder
	summarizer       domain.Summarizer
	summarySentences int
	now              func() time.Time
	logger           *slog.Logger

	uploaderGeneration int
}

type Option func(*Manager)

func WithSummarySentences(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.summarySentences = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store *session.Store, extractor *extract.Extractor, builder *knowledge.Builder, summarizer domain.Summarizer, opts ...Option) *Manager {
	m := &Manager{
		store:            store,
		extractor:        extractor,
		builder:          builder,
		summarizer:       summarizer,
		summarySentences: defaultSummarySentences,
		now:              time.Now,
		logger:           slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// StartNewSession creates an empty session and makes it active.
func (m *Manager) StartNewSession(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.store.Create(ctx)
	if err != nil {
		return "", err
	}
	m.uploaderGeneration++
	return id, nil
}

// SwitchSession activates an existing session.
func (m *Manager) SwitchSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store.Active().ID == id {
		return nil
	}
	if err := m.store.SwitchTo(ctx, id); err != nil {
		return err
	}
	m.uploaderGeneration++
	return nil
}

// DeleteSession removes a session and everything bound to it.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasActive := m.store.Active().ID == id
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	if wasActive {
		m.uploaderGeneration++
	}
	return nil
}

// IngestDocuments extracts files and indexes them into the active session,
// creating its knowledge base on the first upload and growing it afterwards.
func (m *Manager) IngestDocuments(ctx context.Context, files []domain.RawFile) (IngestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs, skipped := m.extractor.Extract(files)
	res := IngestResult{Skipped: skipped}
	if len(docs) == 0 {
		return res, fmt.Errorf("%w: no readable documents in %d file(s)", domain.ErrEmptyInput, len(files))
	}

	rec := m.store.Active()
	if rec.KB == nil {
		kb, err := m.builder.Create(ctx, docs)
		if err != nil {
			return res, err
		}
		rec.KB = kb
		res.Created = true
	} else if err := rec.KB.Merge(ctx, docs); err != nil {
		return res, err
	}

	var text strings.Builder
	for _, d := range docs {
		res.Documents = append(res.Documents, d.Name)
		text.WriteString(d.Content)
		text.WriteString("\n")
	}
	summary, err := m.summarizer.Summarize(text.String(), m.summarySentences)
	if err != nil {
		m.logger.Warn("summarize upload failed", "session", rec.ID, "error", err)
	}
	rec.Summary = summary
	res.Summary = summary
	res.Total = len(rec.KB.Documents())
	m.store.Touch()

	m.logger.Info("documents ingested", "session", rec.ID, "kb", rec.KB.ID(), "created", res.Created,
		"documents", len(docs), "skipped", len(skipped), "total_documents", res.Total)
	return res, nil
}

// Ask records the question in the active session and answers it from the
// session's knowledge base. The question stays in the log even when no
// answer can be produced.
func (m *Manager) Ask(ctx context.Context, query string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	query = strings.TrimSpace(query)
	if query == "" {
		return "", domain.ErrEmptyInput
	}

	rec := m.store.Active()
	rec.Log.Append(chatlog.Message{Role: chatlog.RoleUser, Content: query, CreatedAt: m.now()})
	m.store.Touch()

	if rec.KB == nil {
		m.flush(ctx)
		return "", domain.ErrNotReady
	}

	answer, err := rec.KB.Answer(ctx, query, rec.Log.Snapshot())
	if err != nil {
		m.flush(ctx)
		m.logger.Error("answer failed", "session", rec.ID, "error", err)
		if !domain.IsUpstream(err) {
			err = domain.Upstream("answer question", err)
		}
		return "", err
	}

	rec.Log.Append(chatlog.Message{Role: chatlog.RoleAssistant, Content: answer, CreatedAt: m.now()})
	m.store.Touch()
	if err := m.store.Flush(ctx); err != nil {
		return answer, err
	}
	return answer, nil
}

func (m *Manager) flush(ctx context.Context) {
	if err := m.store.Flush(ctx); err != nil {
		m.logger.Warn("flush session failed", "session", m.store.Active().ID, "error", err)
	}
}

// Sessions lists sessions, most recent first.
func (m *Manager) Sessions() []session.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Sessions()
}

// View returns a render snapshot of the active session.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.store.Active()
	first, _ := rec.Log.FirstUserMessage()
	v := View{
		SessionID:          rec.ID,
		Title:              session.DisplayName(rec.ID, first),
		Messages:           rec.Log.Snapshot(),
		Ready:              rec.Ready(),
		Summary:            rec.Summary,
		Sessions:           m.store.Sessions(),
		UploaderGeneration: m.uploaderGeneration,
	}
	if rec.KB != nil {
		for _, d := range rec.KB.Documents() {
			v.Documents = append(v.Documents, d.Name)
		}
		v.Chunks = rec.KB.ChunkCount()
	}
	return v
}

// Close persists the active session and releases knowledge bases.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Close(ctx)
}
