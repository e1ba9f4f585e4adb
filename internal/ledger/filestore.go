package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/raphaelgruber/reelfacts/internal/models"
)

const indexFileName = "index.json"

// FileStore keeps one JSON document per run plus an index file in a directory.
type FileStore struct {
	dir string
	// mu serializes index updates within the process; the lock dir covers other processes.
	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("ledger directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) runPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid run id %q: %w", id, ErrRunNotFound)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// SaveRun writes the run document, then updates the index under lock.
func (s *FileStore) SaveRun(ctx context.Context, run *models.Run) error {
	path, err := s.runPath(run.ID)
	if err != nil {
		return err
	}
	if err := writeJSON(path, run); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := acquireDirLock(ctx, s.dir)
	if err != nil {
		return err
	}
	defer lock.release()

	index, err := s.readIndex()
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(s.dir, indexFileName), mergeIndex(index, run.Summary()))
}

// LoadRun reads one run document.
func (s *FileStore) LoadRun(_ context.Context, id string) (*models.Run, error) {
	path, err := s.runPath(id)
	if err != nil {
		return nil, err
	}
	var run models.Run
	if err := readJSON(path, &run); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
		}
		return nil, err
	}
	return &run, nil
}

// ListRecent reads the index. A missing index yields an empty list.
func (s *FileStore) ListRecent(_ context.Context) ([]models.RunSummary, error) {
	return s.readIndex()
}

func (s *FileStore) readIndex() ([]models.RunSummary, error) {
	var index []models.RunSummary
	if err := readJSON(filepath.Join(s.dir, indexFileName), &index); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.RunSummary{}, nil
		}
		return nil, err
	}
	if index == nil {
		index = []models.RunSummary{}
	}
	return index, nil
}

// writeJSON writes v atomically via a temp file and rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".reelfacts-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
