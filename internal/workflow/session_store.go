package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/okozlov/mailvault/internal/domain"
)

// FileSessionStore keeps one JSON file per session in a state directory.
type FileSessionStore struct {
	dir string
}

// NewFileSessionStore creates the state directory if needed.
func NewFileSessionStore(dir string) (*FileSessionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workflow.NewFileSessionStore: %w", err)
	}
	return &FileSessionStore{dir: dir}, nil
}

func (st *FileSessionStore) path(id string) string {
	return filepath.Join(st.dir, id+".session.json")
}

// Save implements SessionStore. The write goes through a temp file and rename
// so a crash mid-write cannot corrupt the session.
func (st *FileSessionStore) Save(ctx context.Context, s *domain.WorkflowSession) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("FileSessionStore.Save: %w", err)
	}
	tmp := st.path(s.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("FileSessionStore.Save: %w", err)
	}
	if err := os.Rename(tmp, st.path(s.ID)); err != nil {
		return fmt.Errorf("FileSessionStore.Save: %w", err)
	}
	return nil
}

// Load implements SessionStore.
func (st *FileSessionStore) Load(ctx context.Context, id string) (*domain.WorkflowSession, error) {
	data, err := os.ReadFile(st.path(id))
	if err != nil {
		return nil, fmt.Errorf("FileSessionStore.Load: %w", err)
	}
	var s domain.WorkflowSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("FileSessionStore.Load: parsing session %s: %w", id, err)
	}
	return &s, nil
}

// Latest implements SessionStore: the session with the newest UpdatedAt, or
// nil when the directory holds none.
func (st *FileSessionStore) Latest(ctx context.Context) (*domain.WorkflowSession, error) {
	names, err := filepath.Glob(filepath.Join(st.dir, "*.session.json"))
	if err != nil {
		return nil, fmt.Errorf("FileSessionStore.Latest: %w", err)
	}

	var latest *domain.WorkflowSession
	for _, name := range names {
		id := strings.TrimSuffix(filepath.Base(name), ".session.json")
		s, err := st.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if latest == nil || s.UpdatedAt.After(latest.UpdatedAt) {
			latest = s
		}
	}
	return latest, nil
}

// Delete implements SessionStore. Deleting a missing session is a no-op.
func (st *FileSessionStore) Delete(ctx context.Context, id string) error {
	err := os.Remove(st.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("FileSessionStore.Delete: %w", err)
	}
	return nil
}

var _ SessionStore = (*FileSessionStore)(nil)
