package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FetchLock serialises push-driven fetch cycles: a flood of push frames
// must trigger at most one in-flight sweep across all watched chats at a
// time, and any trigger that arrives while a sweep is running is dropped
// rather than queued.
type FetchLock interface {
	// TryAcquire reports whether the caller may start a sweep now. A false
	// result means a sweep is already running; the caller should do nothing.
	TryAcquire(ctx context.Context) (bool, error)
	// Release ends the sweep started by a successful TryAcquire.
	Release(ctx context.Context) error
}

// LocalFetchLock is an in-process FetchLock for a single gateway instance,
// backed by a plain mutex's non-blocking TryLock.
type LocalFetchLock struct {
	mu sync.Mutex
}

func NewLocalFetchLock() *LocalFetchLock {
	return &LocalFetchLock{}
}

func (l *LocalFetchLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

func (l *LocalFetchLock) Release(ctx context.Context) error {
	l.mu.Unlock()
	return nil
}

// RedisNXClient is the minimal surface RedisFetchLock needs from a
// github.com/redis/go-redis/v9 client, kept independent of the driver the
// way store.RedisClient is.
type RedisNXClient interface {
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisFetchLock is a cross-process FetchLock for deployments where more
// than one gateway process shares a session and its push connection's
// notifications must still only trigger one sweep at a time. The lock key
// carries a TTL so a crashed holder doesn't wedge every other process
// forever.
type RedisFetchLock struct {
	client RedisNXClient
	key    string
	ttl    time.Duration
}

func NewRedisFetchLock(client RedisNXClient, mid string, ttl time.Duration) *RedisFetchLock {
	if ttl == 0 {
		ttl = 10 * time.Second
	}
	return &RedisFetchLock{client: client, key: fmt.Sprintf("line:fetchlock:%s", mid), ttl: ttl}
}

func (l *RedisFetchLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.ttl)
}

func (l *RedisFetchLock) Release(ctx context.Context) error {
	return l.client.Del(ctx, l.key)
}

// PushTrigger turns a stream of push notifications into single-shot,
// coalesced fetch sweeps: while a sweep is running, further triggers are
// dropped rather than queued, matching the "coalesced, not queued" trigger
// contract.
type PushTrigger struct {
	lock  FetchLock
	sweep func(ctx context.Context)
}

// NewPushTrigger builds a PushTrigger that runs sweep under lock whenever
// Fire is called and no sweep is currently in flight.
func NewPushTrigger(lock FetchLock, sweep func(ctx context.Context)) *PushTrigger {
	return &PushTrigger{lock: lock, sweep: sweep}
}

// Fire is called once per qualifying push frame (serviceKind == square). It
// never blocks: if the lock is busy it returns immediately, and otherwise it
// runs the sweep in a new goroutine and releases the lock when done.
func (t *PushTrigger) Fire(ctx context.Context) {
	acquired, err := t.lock.TryAcquire(ctx)
	if err != nil || !acquired {
		return
	}
	go func() {
		defer t.lock.Release(ctx)
		t.sweep(ctx)
	}()
}
