package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jkfujinami/linepy/internal/botstore"
	"github.com/jkfujinami/linepy/internal/dispatch"
	"github.com/jkfujinami/linepy/internal/facade"
	"github.com/jkfujinami/linepy/internal/thrift"
)

// messageIDField is the field id carrying a message's own id on a square
// chat event, mirrored from MarkAsRead's param layout (square.go) since the
// receive-message notification shares the same inner message struct shape.
const messageIDField = 4

// MarkAsReader is the subset of facade.Client a ReadChecker needs. Kept as
// an interface so tests can stub it without a live transport.
type MarkAsReader interface {
	MarkAsRead(ctx context.Context, chatMid, messageID, threadMid string) error
}

// ReadChecker marks a chat read as soon as an event for it is dispatched.
// This is opt-in: the core client never does this on its own (see C8's
// handler contract), since whether every receive should trigger an
// automatic read is a policy decision left to the bot layer, not the
// transport.
type ReadChecker struct {
	marker MarkAsReader
	store  botstore.Store
	logger *slog.Logger

	mu   sync.RWMutex
	self string
}

// NewReadChecker builds a ReadChecker. store may be nil, in which case only
// the upstream MarkAsRead call is made and no local ledger is kept. self is
// this bot account's own mid, used as the ReaderMid recorded in store; it
// is commonly not known until login completes, so it may be set to "" here
// and filled in later with SetSelf.
func NewReadChecker(marker MarkAsReader, store botstore.Store, self string, logger *slog.Logger) *ReadChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadChecker{marker: marker, store: store, self: self, logger: logger}
}

// SetSelf updates the mid recorded as ReaderMid in future receipts.
func (rc *ReadChecker) SetSelf(mid string) {
	rc.mu.Lock()
	rc.self = mid
	rc.mu.Unlock()
}

func (rc *ReadChecker) selfMid() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.self
}

// Handle implements dispatch.Handler. It marks ev's chat read upstream and,
// if a store is configured, records the receipt locally. Events without a
// recoverable message id or chat mid are skipped, not treated as errors —
// square chat event streams carry housekeeping events (membership changes,
// settings updates) this checker has nothing to acknowledge.
func (rc *ReadChecker) Handle(ev dispatch.Event) error {
	if ev.ChatMid == "" {
		return nil
	}
	event, ok := ev.Payload.(facade.Event)
	if !ok {
		return nil
	}
	field, ok := event.Field(messageIDField)
	if !ok || field.Type != thrift.TypeString {
		return nil
	}
	messageID := field.AsString()
	if messageID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rc.marker.MarkAsRead(ctx, ev.ChatMid, messageID, ""); err != nil {
		return fmt.Errorf("bot: mark as read: %w", err)
	}

	if rc.store != nil {
		receipt := botstore.ReadReceipt{
			ChatMid:   ev.ChatMid,
			MessageID: messageID,
			ReaderMid: rc.selfMid(),
			ReadAt:    time.Now(),
		}
		if err := rc.store.RecordRead(ctx, receipt); err != nil {
			rc.logger.Warn("record read receipt failed", "chat_mid", ev.ChatMid, "error", err)
		}
	}
	return nil
}
