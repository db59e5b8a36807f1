package store

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/spanner"
	"google.golang.org/grpc/codes"
)

// SpannerStore persists one session row per device MID in a Sessions table
// (Mid STRING, Data STRING, UpdatedAt TIMESTAMP), holding the whole Session,
// cursors included, as one JSON document — Spanner here is a drop-in durable alternative for
// deployments that already run a Spanner instance for everything else.
type SpannerStore struct {
	client *spanner.Client
	mid    string
}

func NewSpannerStore(ctx context.Context, project, instance, database, mid string) (*SpannerStore, error) {
	dbPath := fmt.Sprintf("projects/%s/instances/%s/databases/%s", project, instance, database)
	client, err := spanner.NewClient(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("spanner client: %w", err)
	}
	return &SpannerStore{client: client, mid: mid}, nil
}

func (s *SpannerStore) Close() error {
	s.client.Close()
	return nil
}

func (s *SpannerStore) Load(ctx context.Context) (*Session, error) {
	row, err := s.client.Single().ReadRow(ctx, "Sessions", spanner.Key{s.mid}, []string{"Data"})
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("spanner read session: %w", err)
	}
	var data string
	if err := row.Columns(&data); err != nil {
		return nil, fmt.Errorf("spanner decode row: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *SpannerStore) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.client.Apply(ctx, []*spanner.Mutation{
		spanner.InsertOrUpdate("Sessions",
			[]string{"Mid", "Data", "UpdatedAt"},
			[]interface{}{s.mid, string(data), spanner.CommitTimestamp},
		),
	})
	if err != nil {
		return fmt.Errorf("spanner write session: %w", err)
	}
	return nil
}

func (s *SpannerStore) GetCursor(ctx context.Context, chatID string) (Cursor, bool, error) {
	sess, err := s.Load(ctx)
	if err == ErrNotFound {
		return Cursor{}, false, nil
	}
	if err != nil {
		return Cursor{}, false, err
	}
	c, ok := sess.Cursors[chatID]
	return c, ok, nil
}

// SetCursor runs the read-modify-write inside a single Spanner read-write
// transaction so two chats' concurrent SetCursor calls (one fetch worker
// each, per C7) can never race on the shared session row: Spanner aborts
// and this client retries whichever transaction loses the conflict.
func (s *SpannerStore) SetCursor(ctx context.Context, chatID string, c Cursor) error {
	_, err := s.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		row, err := txn.ReadRow(ctx, "Sessions", spanner.Key{s.mid}, []string{"Data"})
		var sess Session
		switch {
		case spanner.ErrCode(err) == codes.NotFound:
			sess = Session{Mid: s.mid}
		case err != nil:
			return fmt.Errorf("spanner read session: %w", err)
		default:
			var data string
			if err := row.Columns(&data); err != nil {
				return fmt.Errorf("spanner decode row: %w", err)
			}
			if err := json.Unmarshal([]byte(data), &sess); err != nil {
				return fmt.Errorf("decode session: %w", err)
			}
		}

		if sess.Cursors == nil {
			sess.Cursors = make(map[string]Cursor)
		}
		sess.Cursors[chatID] = c

		data, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		return txn.BufferWrite([]*spanner.Mutation{
			spanner.InsertOrUpdate("Sessions",
				[]string{"Mid", "Data", "UpdatedAt"},
				[]interface{}{s.mid, string(data), spanner.CommitTimestamp},
			),
		})
	})
	if err != nil {
		return fmt.Errorf("spanner set cursor: %w", err)
	}
	return nil
}
