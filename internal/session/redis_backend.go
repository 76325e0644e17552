package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ragchat/internal/domain"
)

// RedisBackend stores transcripts as JSON strings and keeps a sorted set of
// session ids scored by last update.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisBackend connects to redisURL and checks the connection.
func NewRedisBackend(ctx context.Context, redisURL, prefix string, ttl time.Duration, logger *slog.Logger) (*RedisBackend, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisBackendFromClient(client, prefix, ttl, logger), nil
}

func NewRedisBackendFromClient(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *RedisBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *RedisBackend) sessionKey(id string) string { return r.prefix + "session:" + id }
func (r *RedisBackend) indexKey() string            { return r.prefix + "sessions" }

func (r *RedisBackend) Save(ctx context.Context, t Transcript) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.sessionKey(t.ID), data, r.ttl)
		p.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(t.UpdatedAt.UnixMilli()), Member: t.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session to Redis: %w", err)
	}
	return nil
}

func (r *RedisBackend) Load(ctx context.Context, id string) (Transcript, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Transcript{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to load session from Redis: %w", err)
	}
	t, err := decodeTranscript(data)
	if err != nil {
		return Transcript{}, fmt.Errorf("%w: %s is corrupt: %v", domain.ErrNotFound, id, err)
	}
	t.ID = id
	return t, nil
}

func (r *RedisBackend) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.sessionKey(id))
		p.ZRem(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List reads the index and the transcripts it points to. Index members whose
// transcript expired are removed from the index.
func (r *RedisBackend) List(ctx context.Context) ([]Info, error) {
	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.sessionKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var (
		out   []Info
		stale []any
	)
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		t, err := decodeTranscript([]byte(s))
		if err != nil {
			r.logger.Warn("skipping unreadable session", "id", ids[i], "error", err)
			continue
		}
		t.ID = ids[i]
		out = append(out, infoOf(t))
	}
	if len(stale) > 0 {
		if err := r.client.ZRem(ctx, r.indexKey(), stale...).Err(); err != nil {
			r.logger.Warn("failed to prune expired sessions from index", "count", len(stale), "error", err)
		}
	}
	return out, nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
