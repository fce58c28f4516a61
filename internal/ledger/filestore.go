package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/okozlov/mailvault/internal/domain"
)

// FileStore persists ledger entries as JSON lines in a single append-only
// file. Suitable for single-machine runs; multi-writer deployments should use
// the BigQuery store instead.
type FileStore struct {
	path string
}

// NewFileStore creates the parent directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger.NewFileStore: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load implements Store. A missing file means an empty ledger.
func (s *FileStore) Load(ctx context.Context) ([]domain.LedgerEntry, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FileStore.Load: %w", err)
	}
	defer f.Close()

	var entries []domain.LedgerEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e domain.LedgerEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("FileStore.Load: corrupt entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("FileStore.Load: %w", err)
	}
	return entries, nil
}

// Append implements Store. The line is flushed to disk before returning so a
// crash after Append cannot lose the entry.
func (s *FileStore) Append(ctx context.Context, entry domain.LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("FileStore.Append: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("FileStore.Append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("FileStore.Append: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("FileStore.Append: sync: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
