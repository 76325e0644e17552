package session

import (
	"context"
	"fmt"

	"github.com/patrickmn/go-cache"

	"ragchat/internal/domain"
)

// MemoryBackend keeps transcripts for the lifetime of the process only.
type MemoryBackend struct {
	cache *cache.Cache
}

func NewMemoryBackend() *MemoryBackend {
	// no expiration and no janitor: entries live until deleted
	return &MemoryBackend{cache: cache.New(cache.NoExpiration, 0)}
}

func (m *MemoryBackend) Save(_ context.Context, t Transcript) error {
	m.cache.Set(t.ID, cloneTranscript(t), cache.NoExpiration)
	return nil
}

func (m *MemoryBackend) Load(_ context.Context, id string) (Transcript, error) {
	x, found := m.cache.Get(id)
	if !found {
		return Transcript{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return cloneTranscript(x.(Transcript)), nil
}

func (m *MemoryBackend) Delete(_ context.Context, id string) error {
	m.cache.Delete(id)
	return nil
}

func (m *MemoryBackend) List(context.Context) ([]Info, error) {
	items := m.cache.Items()
	out := make([]Info, 0, len(items))
	for _, it := range items {
		out = append(out, infoOf(it.Object.(Transcript)))
	}
	return out, nil
}
