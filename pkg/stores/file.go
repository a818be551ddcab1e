package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	apperrors "tiercache/internal/common/errors"
)

// FileStore persists keys as a single JSON document on disk, the closest
// analog to a browser's localStorage: a small, quota-bounded string table
// that survives process restarts. Writes go through a temp file and rename
// so a crash mid-write never leaves a torn document.
type FileStore struct {
	mu    sync.Mutex
	path  string
	quota int // total bytes of keys+values; 0 means unlimited
}

// NewFileStore creates a file-backed store at path. The parent directory
// must exist. quotaBytes of 0 disables the quota.
func NewFileStore(path string, quotaBytes int) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path is required")
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("file store directory: %w", err)
	}
	return &FileStore{path: path, quota: quotaBytes}, nil
}

func (f *FileStore) Name() string {
	return "file"
}

func (f *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	table, err := f.read()
	if err != nil {
		return "", false, err
	}
	value, ok := table[key]
	return value, ok, nil
}

func (f *FileStore) Set(ctx context.Context, key string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	table, err := f.read()
	if err != nil {
		return err
	}
	table[key] = value

	if f.quota > 0 {
		used := 0
		for k, v := range table {
			used += len(k) + len(v)
		}
		if used > f.quota {
			return apperrors.QuotaError(f.Name(), ErrQuotaExceeded).
				WithContext("quota_bytes", f.quota)
		}
	}

	return f.write(table)
}

func (f *FileStore) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	table, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := table[key]; !ok {
		return nil
	}
	delete(table, key)
	return f.write(table)
}

func (f *FileStore) Close() error {
	return nil
}

func (f *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	table := map[string]string{}
	if len(data) == 0 {
		return table, nil
	}
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, apperrors.CorruptionError("failed to parse store file", err)
	}
	return table, nil
}

func (f *FileStore) write(table map[string]string) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to encode store file: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
