package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RedisClient is the minimal surface NewRedisStore needs, satisfied by a
// thin wrapper over github.com/redis/go-redis/v9 (see GoRedisAdapter in
// redis_adapter.go for the concrete adapter). Keeping this package independent of the driver
// mirrors the reference backend's fabric.RedisClient pattern — including
// that pattern's habit of keying each independently-updated record under
// its own key (there: one key per spoke; here: one hash field per chat)
// rather than folding everything into a single document.
type RedisClient interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error

	// HSet/HGet/HGetAll back the per-chat cursor hash; each is a single
	// atomic Redis command, so two chats' SetCursor calls can never race
	// on each other the way a shared-document read-modify-write would.
	HSet(ctx context.Context, key, field string, value []byte) error
	HGet(ctx context.Context, key, field string) ([]byte, error)
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// RedisStore persists session metadata (the token pair, mid, primary flag)
// under one key and each chat's cursor under its own field of a separate
// hash key, so concurrent SetCursor calls for different chats never
// read-modify-write the same document.
type RedisStore struct {
	client     RedisClient
	key        string
	cursorsKey string
	ttl        time.Duration
}

func NewRedisStore(client RedisClient, keyPrefix, mid string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "line:session:"
	}
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}
	key := keyPrefix + mid
	return &RedisStore{client: client, key: key, cursorsKey: key + ":cursors", ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context) (*Session, error) {
	data, err := r.client.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	if data == nil {
		return nil, ErrNotFound
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	raw, err := r.client.HGetAll(ctx, r.cursorsKey)
	if err != nil {
		return nil, fmt.Errorf("redis get cursors: %w", err)
	}
	if len(raw) > 0 {
		s.Cursors = make(map[string]Cursor, len(raw))
		for chatID, data := range raw {
			var c Cursor
			if err := json.Unmarshal(data, &c); err != nil {
				return nil, fmt.Errorf("decode cursor %s: %w", chatID, err)
			}
			s.Cursors[chatID] = c
		}
	}
	return &s, nil
}

// Save persists session metadata only; cursors are owned by SetCursor and
// are never written here, so a Save racing a concurrent SetCursor can never
// clobber the other's update.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	meta := *s
	meta.Cursors = nil
	data, err := json.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, r.ttl); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *RedisStore) GetCursor(ctx context.Context, chatID string) (Cursor, bool, error) {
	data, err := r.client.HGet(ctx, r.cursorsKey, chatID)
	if err != nil {
		return Cursor{}, false, fmt.Errorf("redis get cursor: %w", err)
	}
	if data == nil {
		return Cursor{}, false, nil
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, false, fmt.Errorf("decode cursor: %w", err)
	}
	return c, true, nil
}

// SetCursor writes chatID's cursor as a single hash field: HSet is atomic
// per-field, so concurrent SetCursor calls for different chats (one fetch
// worker each, per C7) never race on a shared read-modify-write cycle.
func (r *RedisStore) SetCursor(ctx context.Context, chatID string, c Cursor) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	if err := r.client.HSet(ctx, r.cursorsKey, chatID, data); err != nil {
		return fmt.Errorf("redis set cursor: %w", err)
	}
	if err := r.client.Expire(ctx, r.cursorsKey, r.ttl); err != nil {
		return fmt.Errorf("redis expire cursors: %w", err)
	}
	return nil
}
