package push

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jkfujinami/linepy/internal/circuitbreaker"
	"github.com/jkfujinami/linepy/internal/device"
	"github.com/jkfujinami/linepy/internal/store"
)

func TestDialAndNegotiateTripsBreakerAfterRepeatedFailures(t *testing.T) {
	profile, err := device.NewProfile(device.DesktopWin, "")
	if err != nil {
		t.Fatalf("new profile: %v", err)
	}
	s := NewSession(profile, store.NewMemoryStore(), nil)

	dialErr := errors.New("dial refused")
	var dialCalls int
	s.dial = func(ctx context.Context, host, path string, headers http.Header) (*conn, error) {
		dialCalls++
		return nil, dialErr
	}

	cb := circuitbreaker.New(&circuitbreaker.Config{
		Name:        "test-push",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})
	s.SetCircuitBreaker(cb)

	for i := 0; i < 2; i++ {
		if _, err := s.dialAndNegotiate(context.Background()); err == nil {
			t.Fatal("expected dial failure to propagate")
		}
	}
	if dialCalls != 2 {
		t.Fatalf("expected 2 dial attempts before trip, got %d", dialCalls)
	}

	// Breaker is now open: a third attempt must not reach dial at all.
	if _, err := s.dialAndNegotiate(context.Background()); !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if dialCalls != 2 {
		t.Fatalf("expected dial not to be called while breaker is open, got %d calls", dialCalls)
	}
}
