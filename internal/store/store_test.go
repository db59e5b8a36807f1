package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeRedisClient is an in-memory stand-in for RedisClient, enough to
// exercise RedisStore's key/hash layout without a live Redis instance.
type fakeRedisClient struct {
	mu     sync.Mutex
	docs   map[string][]byte
	hashes map[string]map[string][]byte
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{docs: make(map[string][]byte), hashes: make(map[string]map[string][]byte)}
}

func (f *fakeRedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[key] = value
	return nil
}

func (f *fakeRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[key], nil
}

func (f *fakeRedisClient) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.docs, k)
	}
	return nil
}

func (f *fakeRedisClient) HSet(ctx context.Context, key, field string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		f.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (f *fakeRedisClient) HGet(ctx context.Context, key, field string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[key]
	if !ok {
		return nil, nil
	}
	return h[field], nil
}

func (f *fakeRedisClient) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]byte, len(f.hashes[key]))
	for field, v := range f.hashes[key] {
		out[field] = v
	}
	return out, nil
}

func (f *fakeRedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func runStoreConformance(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	sess := &Session{Mid: "u123", AccessToken: "at", RefreshToken: "rt"}
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Mid != "u123" || got.AccessToken != "at" {
		t.Fatalf("unexpected session: %+v", got)
	}

	if err := s.SetCursor(ctx, "chat1", Cursor{SyncToken: "s1", ContinuationToken: "c1"}); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	c, ok, err := s.GetCursor(ctx, "chat1")
	if err != nil || !ok {
		t.Fatalf("get cursor: %v ok=%v", err, ok)
	}
	if c.SyncToken != "s1" || c.ContinuationToken != "c1" {
		t.Fatalf("cursor mismatch: %+v", c)
	}

	if err := s.SetCursor(ctx, "chat1", Cursor{SyncToken: "s2"}); err != nil {
		t.Fatalf("set cursor (clear continuation): %v", err)
	}
	c2, ok, err := s.GetCursor(ctx, "chat1")
	if err != nil || !ok {
		t.Fatalf("get cursor 2: %v ok=%v", err, ok)
	}
	if c2.SyncToken != "s2" || c2.ContinuationToken != "" {
		t.Fatalf("expected continuation token cleared atomically, got %+v", c2)
	}

	if _, ok, _ := s.GetCursor(ctx, "nonexistent"); ok {
		t.Fatal("expected missing chat cursor to report ok=false")
	}
}

func TestMemoryStoreConformance(t *testing.T) {
	runStoreConformance(t, NewMemoryStore())
}

func TestFileStoreConformance(t *testing.T) {
	dir := t.TempDir()
	runStoreConformance(t, NewFileStore(filepath.Join(dir, "session.json")))
}

func TestRedisStoreConformance(t *testing.T) {
	runStoreConformance(t, NewRedisStore(newFakeRedisClient(), "", "u123", 0))
}

// TestRedisStoreSetCursorConcurrentChatsDontRace guards the fix for lost
// cursor updates: many chats' SetCursor calls racing concurrently must each
// land, since every chat writes its own hash field rather than sharing one
// whole-document read-modify-write cycle.
func TestRedisStoreSetCursorConcurrentChatsDontRace(t *testing.T) {
	s := NewRedisStore(newFakeRedisClient(), "", "u123", 0)
	ctx := context.Background()

	const chatCount = 50
	var wg sync.WaitGroup
	for i := 0; i < chatCount; i++ {
		chatID := fmt.Sprintf("chat-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.SetCursor(ctx, chatID, Cursor{SyncToken: "tok-" + chatID})
			if err != nil {
				t.Errorf("set cursor %s: %v", chatID, err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < chatCount; i++ {
		chatID := fmt.Sprintf("chat-%d", i)
		c, ok, err := s.GetCursor(ctx, chatID)
		if err != nil || !ok {
			t.Fatalf("get cursor %s: err=%v ok=%v", chatID, err, ok)
		}
		if c.SyncToken != "tok-"+chatID {
			t.Fatalf("lost update for %s: got %+v", chatID, c)
		}
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	ctx := context.Background()

	a := NewFileStore(path)
	if err := a.Save(ctx, &Session{Mid: "m1", AccessToken: "tok"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	b := NewFileStore(path)
	got, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("load from new instance: %v", err)
	}
	if got.Mid != "m1" || got.AccessToken != "tok" {
		t.Fatalf("unexpected reload: %+v", got)
	}
}
