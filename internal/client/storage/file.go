package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/logger"
)

// DefaultMaxBytes caps the file store, roughly what a browser grants one origin.
const DefaultMaxBytes = 5 << 20

// FileStore keeps all entries in one JSON file. Every Set and Delete
// rewrites the file through a temporary file and a rename.
type FileStore struct {
	fs       afero.Fs
	path     string
	maxBytes int
	log      *zap.Logger

	mu   sync.Mutex
	data map[string]string
	size int
}

// NewFileStore loads path from fsys. A missing file starts empty; a corrupt
// one is logged and replaced on the next write. maxBytes <= 0 means DefaultMaxBytes.
func NewFileStore(fsys afero.Fs, path string, maxBytes int, log *zap.Logger) (*FileStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	s := &FileStore{
		fs:       fsys,
		path:     path,
		maxBytes: maxBytes,
		log:      logger.OrNop(log).Named("storage"),
		data:     map[string]string{},
	}

	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		s.log.Warn("state file is corrupt, starting empty", zap.String("path", path), zap.Error(err))
		s.data = map[string]string{}
		return s, nil
	}
	s.size = sizeOf(s.data)
	return s, nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.size + len(key) + len(value)
	if old, ok := s.data[key]; ok {
		size -= len(key) + len(old)
	}
	if size > s.maxBytes {
		return ErrQuotaExceeded
	}

	prev, had := s.data[key]
	s.data[key] = value
	if err := s.flush(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	s.size = size
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.data[key]
	if !ok {
		return nil
	}
	delete(s.data, key)
	if err := s.flush(); err != nil {
		s.data[key] = old
		return err
	}
	s.size -= len(key) + len(old)
	return nil
}

func (s *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) flush() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

func sizeOf(m map[string]string) int {
	n := 0
	for k, v := range m {
		n += len(k) + len(v)
	}
	return n
}
