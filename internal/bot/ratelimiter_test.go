package bot

import "testing"

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxRepliesPerMinute: 2, BurstSize: 3}, nil)
	defer rl.Close()

	for i := 0; i < 3; i++ {
		if !rl.Allow("chat-1") {
			t.Fatalf("call %d: expected allowed within burst", i)
		}
	}
}

func TestRateLimiterBlocksBeyondBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxRepliesPerMinute: 2, BurstSize: 2}, nil)
	defer rl.Close()

	rl.Allow("chat-1")
	rl.Allow("chat-1")
	if rl.Allow("chat-1") {
		t.Fatal("expected third call to be blocked once burst size is exceeded")
	}
}

func TestRateLimiterTracksKeysIndependently(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{MaxRepliesPerMinute: 1, BurstSize: 1}, nil)
	defer rl.Close()

	if !rl.Allow("chat-1") {
		t.Fatal("expected first call for chat-1 to be allowed")
	}
	if !rl.Allow("chat-2") {
		t.Fatal("expected first call for chat-2 to be allowed regardless of chat-1's state")
	}
}
