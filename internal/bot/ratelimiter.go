// Package bot holds the thin, intentionally shallow collaborators that sit
// on top of the core client: an admin-command dispatcher, an opt-in read
// checker, and a per-user reply rate limiter. None of these encode real
// bot behavior — they exist to give the core's interfaces (facade, bus,
// dispatch) working consumers to exercise.
package bot

import (
	"log/slog"
	"sync"
	"time"
)

// RateLimitConfig defines the reply rate limiting thresholds for one bot
// instance.
type RateLimitConfig struct {
	MaxRepliesPerMinute int
	BurstSize           int
}

type replyWindow struct {
	count       int
	windowStart time.Time
}

// RateLimiter enforces a per-chat sliding-window limit on outbound bot
// replies, so a misbehaving handler can't flood a chat (or trip the
// upstream server's own abuse detection) when it reacts to every incoming
// event with a reply.
//
// Grounded on internal/middleware/rate_limiter.go's shape: an RLock fast
// path for an already-open window, a Lock fallback to open or roll a new
// one, and a background cleanup goroutine that evicts stale windows so the
// map doesn't grow unbounded across long-lived chats.
type RateLimiter struct {
	mu      sync.RWMutex
	windows map[string]*replyWindow
	cfg     RateLimitConfig
	logger  *slog.Logger

	stop chan struct{}
	once sync.Once
}

// NewRateLimiter builds a RateLimiter from cfg, filling in defaults for
// zero fields, and starts its background cleanup goroutine.
func NewRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if cfg.MaxRepliesPerMinute <= 0 {
		cfg.MaxRepliesPerMinute = 20
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = cfg.MaxRepliesPerMinute * 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	rl := &RateLimiter{
		windows: make(map[string]*replyWindow),
		cfg:     cfg,
		logger:  logger,
		stop:    make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether a reply keyed by key (typically a chat mid) is
// within limits, opening or rolling the window as needed.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.RLock()
	window, exists := rl.windows[key]
	if exists && now.Sub(window.windowStart) <= time.Minute {
		window.count++
		count := window.count
		rl.mu.RUnlock()

		if count > rl.cfg.BurstSize {
			rl.logger.Warn("reply rate limit exceeded (burst)", "key", key, "count", count, "limit", rl.cfg.BurstSize)
			return false
		}
		if count > rl.cfg.MaxRepliesPerMinute {
			rl.logger.Warn("reply rate limit exceeded", "key", key, "count", count, "limit", rl.cfg.MaxRepliesPerMinute)
			return false
		}
		return true
	}
	rl.mu.RUnlock()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	window, exists = rl.windows[key]
	if exists && now.Sub(window.windowStart) <= time.Minute {
		window.count++
		return window.count <= rl.cfg.BurstSize
	}

	rl.windows[key] = &replyWindow{count: 1, windowStart: now}
	return true
}

// Close stops the background cleanup goroutine. Safe to call more than
// once.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, window := range rl.windows {
				if now.Sub(window.windowStart) > 2*time.Minute {
					delete(rl.windows, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
