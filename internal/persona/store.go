package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned by Store lookups for unknown persona IDs.
var ErrNotFound = errors.New("persona: not found")

// Store persists personas as one JSON file per persona under a directory,
// named <id>.json. Writes are atomic (same-directory temp file + rename) so
// a crash never leaves a half-written profile. Safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates a Store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persona: create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Put writes the persona to disk, updating its UpdatedAt timestamp.
func (s *Store) Put(p *Persona) error {
	if p == nil {
		return fmt.Errorf("persona: put nil persona")
	}
	path, err := s.path(p.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("persona: marshal %s: %w", p.ID, err)
	}
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("persona: write %s: %w", p.ID, err)
	}
	return nil
}

// Get loads the persona with the given ID.
func (s *Store) Get(id string) (*Persona, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("persona: read %s: %w", id, err)
	}
	var p Persona
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("persona: decode %s: %w", id, err)
	}
	return &p, nil
}

// List loads every stored persona, ordered by creation time.
func (s *Store) List() ([]*Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("persona: read store dir: %w", err)
	}

	var out []*Persona
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("persona: read %s: %w", e.Name(), err)
		}
		var p Persona
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("persona: decode %s: %w", e.Name(), err)
		}
		out = append(out, &p)
	}

	slices.SortFunc(out, func(a, b *Persona) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// Delete removes the persona with the given ID.
func (s *Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("persona: delete %s: %w", id, err)
	}
	return nil
}

// path maps a persona ID to its file, rejecting IDs that would escape the
// store directory.
func (s *Store) path(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("persona: invalid id %q", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// writeAtomic writes data to path via a same-directory temp file and rename,
// so readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".persona-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
