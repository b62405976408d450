// Package snapshot persists the last-observed session list per
// monitored account between poll cycles.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spacewatch/backend/internal/session"
)

// FileStore keeps one JSON state file per account under a state
// directory. Writes go through a temp file and rename, so an account's
// entry is either fully replaced or left untouched; a crash mid-write
// cannot corrupt the previous snapshot.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// stateFile carries the on-disk shape. The session list lives under a
// "data" key, matching the provider's response envelope.
type stateFile struct {
	Data []session.Session `json:"data"`
}

func (s *FileStore) path(account string) string {
	return filepath.Join(s.dir, "state-"+account+".json")
}

// Get returns the last persisted session list for the account. A
// missing state file is not an error: ok is false and the caller
// treats the previous snapshot as empty.
func (s *FileStore) Get(account string) ([]session.Session, bool, error) {
	data, err := os.ReadFile(s.path(account))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read snapshot for %s: %w", account, err)
	}
	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, false, fmt.Errorf("decode snapshot for %s: %w", account, err)
	}
	return state.Data, true, nil
}

// Set atomically replaces the account's snapshot.
func (s *FileStore) Set(account string, sessions []session.Session) error {
	data, err := json.Marshal(stateFile{Data: sessions})
	if err != nil {
		return fmt.Errorf("encode snapshot for %s: %w", account, err)
	}

	tmp, err := os.CreateTemp(s.dir, "state-*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot for %s: %w", account, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(account)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot for %s: %w", account, err)
	}
	return nil
}
