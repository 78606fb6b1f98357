// Package blob is the local fallback persistence used when no remote
// database is configured. It is a collection-name keyed JSON blob store:
// load everything, save everything. It has no query capability on purpose;
// filtering, uniqueness and cascade rules live in the store facade so they
// behave identically against the real database.
package blob

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists each collection as <dir>/<name>.json. Not safe for
// concurrent use by itself; callers serialize load-then-save sequences.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// LoadCollection decodes the named collection into out (a pointer to a
// slice). A collection that was never written decodes as empty.
func (s *FileStore) LoadCollection(name string, out any) error {
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read collection %s: %w", name, err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode collection %s: %w", name, err)
	}
	return nil
}

// SaveCollection overwrites the named collection. The write goes through a
// temp file + rename so a crash never leaves a half-written collection.
func (s *FileStore) SaveCollection(name string, records any) error {
	b, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", name, err)
	}
	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write collection %s: %w", name, err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		return fmt.Errorf("replace collection %s: %w", name, err)
	}
	return nil
}
