package botstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore is a raw database/sql backend for the read-receipt
// ledger, grounded on the same table-per-concern shape the teacher's
// Supabase client uses, but talking to Postgres directly over the wire
// protocol rather than through a REST façade.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and pings dsn. Callers own the returned store's
// lifetime and should Close it on shutdown.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("botstore: open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("botstore: ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// RecordRead upserts the read_receipts row for (chat_mid, reader_mid).
//
//	CREATE TABLE read_receipts (
//	  chat_mid    text NOT NULL,
//	  reader_mid  text NOT NULL,
//	  message_id  text NOT NULL,
//	  read_at     timestamptz NOT NULL,
//	  PRIMARY KEY (chat_mid, reader_mid)
//	);
func (s *PostgresStore) RecordRead(ctx context.Context, receipt ReadReceipt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO read_receipts (chat_mid, reader_mid, message_id, read_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_mid, reader_mid)
		DO UPDATE SET message_id = EXCLUDED.message_id, read_at = EXCLUDED.read_at
	`, receipt.ChatMid, receipt.ReaderMid, receipt.MessageID, receipt.ReadAt)
	if err != nil {
		return fmt.Errorf("botstore: record read: %w", err)
	}
	return nil
}

// LastRead reads back the stored receipt for (chatMid, readerMid).
func (s *PostgresStore) LastRead(ctx context.Context, chatMid, readerMid string) (ReadReceipt, bool, error) {
	var r ReadReceipt
	row := s.db.QueryRowContext(ctx, `
		SELECT chat_mid, reader_mid, message_id, read_at
		FROM read_receipts
		WHERE chat_mid = $1 AND reader_mid = $2
	`, chatMid, readerMid)
	if err := row.Scan(&r.ChatMid, &r.ReaderMid, &r.MessageID, &r.ReadAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ReadReceipt{}, false, nil
		}
		return ReadReceipt{}, false, fmt.Errorf("botstore: last read: %w", err)
	}
	return r, true, nil
}
