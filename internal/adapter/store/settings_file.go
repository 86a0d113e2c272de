package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/arturoeanton/go-star-search/internal/domain"
	"github.com/arturoeanton/go-star-search/internal/port"
	"gopkg.in/yaml.v3"
)

// FileSettings persists the indexing settings as a YAML document. It backs
// deployments whose vector store has no relational side (Qdrant, memory).
type FileSettings struct {
	mu   sync.Mutex
	path string
}

// NewFileSettings returns a settings store writing to path.
func NewFileSettings(path string) *FileSettings {
	return &FileSettings{path: path}
}

// Path returns the backing file location.
func (f *FileSettings) Path() string {
	return f.path
}

// LoadSettings reads the file. A missing file is not an error.
func (f *FileSettings) LoadSettings(ctx context.Context) (domain.IndexSettings, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.IndexSettings{}, false, nil
	}
	if err != nil {
		return domain.IndexSettings{}, false, fmt.Errorf("read settings: %w", err)
	}

	// Start from defaults so a partial file keeps sane values.
	s := domain.DefaultIndexSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return domain.IndexSettings{}, false, fmt.Errorf("parse settings %s: %w", f.path, err)
	}
	return s.Clamp(), true, nil
}

// SaveSettings writes s atomically via a temp file rename.
func (f *FileSettings) SaveSettings(ctx context.Context, s domain.IndexSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := yaml.Marshal(s.Clamp())
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

var _ port.SettingsStore = (*FileSettings)(nil)
