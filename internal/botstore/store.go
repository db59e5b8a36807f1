// Package botstore is an illustrative persistence layer for the thin bot
// harness's per-chat read-receipt ledger — not a schema design exercise,
// just enough to show a raw-driver backend (PostgresStore) and a managed-
// BaaS backend (SupabaseStore) sitting behind the same small interface.
package botstore

import (
	"context"
	"time"
)

// ReadReceipt records that readerMid had read up through messageID in
// chatMid as of ReadAt.
type ReadReceipt struct {
	ChatMid   string    `json:"chat_mid"`
	MessageID string    `json:"message_id"`
	ReaderMid string    `json:"reader_mid"`
	ReadAt    time.Time `json:"read_at"`
}

// Store persists and retrieves read receipts. Both PostgresStore and
// SupabaseStore implement it.
type Store interface {
	// RecordRead upserts the latest read position for readerMid in
	// chatMid.
	RecordRead(ctx context.Context, receipt ReadReceipt) error

	// LastRead returns the most recent read receipt readerMid recorded
	// for chatMid, or the zero value and false if none exists.
	LastRead(ctx context.Context, chatMid, readerMid string) (ReadReceipt, bool, error)
}
