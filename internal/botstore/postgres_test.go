package botstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{db: db}, mock
}

func TestPostgresStoreRecordReadUpserts(t *testing.T) {
	store, mock := newMockStore(t)
	readAt := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO read_receipts").
		WithArgs("chat-1", "reader-1", "msg-9", readAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.RecordRead(context.Background(), ReadReceipt{
		ChatMid: "chat-1", ReaderMid: "reader-1", MessageID: "msg-9", ReadAt: readAt,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreLastReadReturnsFalseWhenMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT chat_mid, reader_mid, message_id, read_at").
		WithArgs("chat-1", "reader-1").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := store.LastRead(context.Background(), "chat-1", "reader-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing receipt")
	}
}

func TestPostgresStoreLastReadReturnsStoredReceipt(t *testing.T) {
	store, mock := newMockStore(t)
	readAt := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"chat_mid", "reader_mid", "message_id", "read_at"}).
		AddRow("chat-1", "reader-1", "msg-9", readAt)
	mock.ExpectQuery("SELECT chat_mid, reader_mid, message_id, read_at").
		WithArgs("chat-1", "reader-1").
		WillReturnRows(rows)

	receipt, ok, err := store.LastRead(context.Background(), "chat-1", "reader-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if receipt.MessageID != "msg-9" {
		t.Fatalf("unexpected message id: %q", receipt.MessageID)
	}
}
