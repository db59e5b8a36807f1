package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists a Session as JSON at a fixed path, writing through a
// temp file and renaming over the target so a crash mid-write never leaves
// a truncated session on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load(ctx context.Context) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileStore) load() (*Session, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return &s, nil
}

func (f *FileStore) Save(ctx context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeAtomic(s)
}

func (f *FileStore) writeAtomic(s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

func (f *FileStore) GetCursor(ctx context.Context, chatID string) (Cursor, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.load()
	if err == ErrNotFound {
		return Cursor{}, false, nil
	}
	if err != nil {
		return Cursor{}, false, err
	}
	c, ok := s.Cursors[chatID]
	return c, ok, nil
}

func (f *FileStore) SetCursor(ctx context.Context, chatID string, c Cursor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.load()
	if err == ErrNotFound {
		s = &Session{}
	} else if err != nil {
		return err
	}
	if s.Cursors == nil {
		s.Cursors = make(map[string]Cursor)
	}
	s.Cursors[chatID] = c
	return f.writeAtomic(s)
}
