package botstore

import (
	"context"
	"fmt"
	"time"

	supabase "github.com/supabase-community/supabase-go"
)

// parseSupabaseTimestamp accepts either the millisecond-precision format
// this store writes or plain RFC3339Nano, since Postgres may normalize
// the stored value on read-back.
func parseSupabaseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05.000Z07:00", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// SupabaseStore is a managed-Postgres backend for the same read-receipt
// ledger, grounded on internal/database/supabase.go's From/Select/Eq/
// Upsert/ExecuteTo query-builder style.
type SupabaseStore struct {
	client *supabase.Client
}

// readReceiptRow is the wire shape for the read_receipts table, distinct
// from ReadReceipt only in its json tags matching Supabase's snake_case
// column names exactly (ReadReceipt already matches, but kept separate so
// a schema drift in one doesn't silently reshape the other).
type readReceiptRow struct {
	ChatMid   string `json:"chat_mid"`
	ReaderMid string `json:"reader_mid"`
	MessageID string `json:"message_id"`
	ReadAt    string `json:"read_at"`
}

// NewSupabaseStore builds a SupabaseStore against url/key (the service
// role key, as this runs server-side).
func NewSupabaseStore(url, key string) (*SupabaseStore, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("botstore: new supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

// RecordRead upserts the read_receipts row keyed on (chat_mid, reader_mid).
func (s *SupabaseStore) RecordRead(ctx context.Context, receipt ReadReceipt) error {
	row := readReceiptRow{
		ChatMid:   receipt.ChatMid,
		ReaderMid: receipt.ReaderMid,
		MessageID: receipt.MessageID,
		ReadAt:    receipt.ReadAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	var result []readReceiptRow
	_, err := s.client.From("read_receipts").
		Upsert(row, "chat_mid,reader_mid", "", "").
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("botstore: record read: %w", err)
	}
	return nil
}

// LastRead retrieves the stored receipt for (chatMid, readerMid).
func (s *SupabaseStore) LastRead(ctx context.Context, chatMid, readerMid string) (ReadReceipt, bool, error) {
	var rows []readReceiptRow
	_, err := s.client.From("read_receipts").
		Select("*", "", false).
		Eq("chat_mid", chatMid).
		Eq("reader_mid", readerMid).
		ExecuteTo(&rows)
	if err != nil {
		return ReadReceipt{}, false, fmt.Errorf("botstore: last read: %w", err)
	}
	if len(rows) == 0 {
		return ReadReceipt{}, false, nil
	}

	readAt, err := parseSupabaseTimestamp(rows[0].ReadAt)
	if err != nil {
		return ReadReceipt{}, false, fmt.Errorf("botstore: parse read_at: %w", err)
	}
	return ReadReceipt{
		ChatMid:   rows[0].ChatMid,
		ReaderMid: rows[0].ReaderMid,
		MessageID: rows[0].MessageID,
		ReadAt:    readAt,
	}, true, nil
}
