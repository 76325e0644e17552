package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"ragchat/internal/domain"
)

const maxIDAttempts = 16

// Summary describes a session for listing.
type Summary struct {
	ID        string
	Title     string
	UpdatedAt time.Time
	Active    bool
	Ready     bool
}

type entry struct {
	info Info
	rec  *Record // nil until loaded
}

// Store tracks every known session and which one is active. Transcripts of
// sessions found in the backend are loaded on first switch.
// It is not safe for concurrent use.
type Store struct {
	backend Backend
	entries map[string]*entry
	active  *Record
	now     func() time.Time
	newID   func(time.Time) string
	logger  *slog.Logger
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(f func(time.Time) string) Option {
	return func(s *Store) { s.newID = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open indexes the sessions held by backend and starts a fresh active session.
// The fresh session is written on its first change.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		entries: make(map[string]*entry),
		now:     time.Now,
		newID:   NewID,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	infos, err := backend.List(ctx)
	if err != nil {
		return nil, domain.Upstream("list sessions", err)
	}
	for _, in := range infos {
		s.entries[in.ID] = &entry{info: in}
	}
	s.logger.Info("session store opened", "stored", len(infos))

	rec, err := s.create()
	if err != nil {
		return nil, err
	}
	s.active = rec
	return s, nil
}

// Active returns the active record; never nil on an opened store.
func (s *Store) Active() *Record { return s.active }

// Create flushes the active session, then adds an empty one, persists it
// and makes it active.
func (s *Store) Create(ctx context.Context) (string, error) {
	if err := s.Flush(ctx); err != nil {
		return "", err
	}
	rec, err := s.create()
	if err != nil {
		return "", err
	}
	if err := s.backend.Save(ctx, rec.transcript()); err != nil {
		delete(s.entries, rec.ID)
		return "", domain.Upstream("save session", err)
	}
	s.active = rec
	s.logger.Info("session created", "id", rec.ID)
	return rec.ID, nil
}

func (s *Store) create() (*Record, error) {
	now := s.now()
	for range maxIDAttempts {
		id := s.newID(now)
		if _, taken := s.entries[id]; taken {
			continue
		}
		rec := newRecord(id, now)
		s.entries[id] = &entry{info: Info{ID: id, UpdatedAt: now}, rec: rec}
		return rec, nil
	}
	return nil, fmt.Errorf("no free session id after %d attempts", maxIDAttempts)
}

// SwitchTo makes id the active session. Switching to the active id does
// nothing; otherwise the current session is flushed first.
func (s *Store) SwitchTo(ctx context.Context, id string) error {
	if s.active != nil && s.active.ID == id {
		return nil
	}
	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err := s.Flush(ctx); err != nil {
		return err
	}
	rec, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	s.active = rec
	s.logger.Info("session switched", "id", id, "messages", rec.Log.Len(), "ready", rec.Ready())
	return nil
}

func (s *Store) load(ctx context.Context, id string) (*Record, error) {
	e := s.entries[id]
	if e.rec != nil {
		return e.rec, nil
	}
	t, err := s.backend.Load(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, domain.Upstream("load session", err)
	}
	t.ID = id
	e.rec = recordFromTranscript(t)
	return e.rec, nil
}

// Touch marks the active session as changed now.
func (s *Store) Touch() {
	r := s.active
	r.UpdatedAt = s.now()
	r.dirty = true
	e := s.entries[r.ID]
	e.info.UpdatedAt = r.UpdatedAt
	e.info.FirstQuestion, _ = r.Log.FirstUserMessage()
}

// Flush persists the active session's transcript if it changed.
func (s *Store) Flush(ctx context.Context) error {
	r := s.active
	if r == nil || !r.dirty {
		return nil
	}
	if err := s.backend.Save(ctx, r.transcript()); err != nil {
		return domain.Upstream("save session", err)
	}
	r.dirty = false
	return nil
}

// Delete removes a session. Deleting the active session activates the most
// recent remaining one, or a new empty session if none is left.
func (s *Store) Delete(ctx context.Context, id string) error {
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err := s.backend.Delete(ctx, id); err != nil {
		return domain.Upstream("delete session", err)
	}
	delete(s.entries, id)
	if e.rec != nil && e.rec.KB != nil {
		if err := e.rec.KB.Close(ctx); err != nil {
			s.logger.Warn("failed to release knowledge base", "session", id, "error", err)
		}
	}
	s.logger.Info("session deleted", "id", id)

	if s.active == nil || s.active.ID != id {
		return nil
	}
	s.active = nil
	for _, next := range s.IDs() {
		rec, err := s.load(ctx, next)
		if err != nil {
			s.logger.Warn("skipping unreadable session", "id", next, "error", err)
			continue
		}
		s.active = rec
		return nil
	}
	rec, err := s.create()
	if err != nil {
		return err
	}
	s.active = rec
	return nil
}

// IDs lists session ids, most recently updated first.
func (s *Store) IDs() []string {
	ordered := s.ordered()
	ids := make([]string, len(ordered))
	for i, e := range ordered {
		ids[i] = e.info.ID
	}
	return ids
}

// Sessions lists sessions with display titles, most recently updated first.
func (s *Store) Sessions() []Summary {
	ordered := s.ordered()
	out := make([]Summary, len(ordered))
	for i, e := range ordered {
		out[i] = Summary{
			ID:        e.info.ID,
			Title:     DisplayName(e.info.ID, e.info.FirstQuestion),
			UpdatedAt: e.info.UpdatedAt,
			Active:    s.active != nil && s.active.ID == e.info.ID,
			Ready:     e.rec != nil && e.rec.Ready(),
		}
	}
	return out
}

func (s *Store) ordered() []*entry {
	out := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].info, out[j].info
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID > b.ID
	})
	return out
}

// Close flushes the active session and releases every loaded knowledge base.
func (s *Store) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	for id, e := range s.entries {
		if e.rec == nil || e.rec.KB == nil {
			continue
		}
		if cerr := e.rec.KB.Close(ctx); cerr != nil {
			s.logger.Warn("failed to release knowledge base", "session", id, "error", cerr)
		}
	}
	return err
}
