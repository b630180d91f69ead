package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"marketdata/internal/model"
	"marketdata/internal/ohlcv"
)

// timestampColumn is the datetime header of cache files.
const timestampColumn = "timestamp"

// Store persists one CSV file per cache key under a directory.
type Store struct {
	dir string

	// createTemp opens the temporary sibling written by Save.
	createTemp func(dir, pattern string) (*os.File, error)
}

// NewStore returns a store rooted at dir, creating it when missing.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Store{dir: dir, createTemp: os.CreateTemp}, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string { return s.dir }

// Path returns the file backing key.
func (s *Store) Path(key Key) string {
	return filepath.Join(s.dir, key.FileName())
}

// Load reads the entry of key. found is false when no file exists or the
// file holds no rows. A file that cannot be decoded is an
// *ohlcv.SchemaError and a file whose rows are not strictly increasing
// is a *ConsistencyError; neither is treated as absent.
func (s *Store) Load(key Key) (model.Series, bool, error) {
	path := s.Path(key)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache file %s: %w", path, err)
	}

	// nothing or a bare header line
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !bytes.ContainsRune(trimmed, '\n') {
		return nil, false, nil
	}

	bars, err := ohlcv.Normalize(ohlcv.ReadFrame(bytes.NewReader(data)), ohlcv.Options{
		DatetimeColumn: timestampColumn,
		Parser:         parseStamp,
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache file %s: %w", path, err)
	}

	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return nil, false, &ConsistencyError{
				Key:    key.String(),
				At:     bars[i].Timestamp,
				Reason: fmt.Sprintf("cache file %s is not strictly increasing at row %d", path, i),
			}
		}
	}

	return bars, true, nil
}

// Save replaces the entry of key with bars. The file is written to a
// temporary sibling, synced and renamed over the previous entry, so a
// failed save leaves the previous entry intact.
func (s *Store) Save(key Key, bars model.Series) error {
	path := s.Path(key)

	tmp, err := s.createTemp(s.dir, "."+key.FileName()+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := ohlcv.ToFrame(bars, timestampColumn).WriteCSV(tmp); err != nil {
		return fmt.Errorf("failed to write cache file %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync cache file %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache file %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to commit cache file %s: %w", path, err)
	}
	committed = true

	return nil
}

// Remove deletes the entry of key if present.
func (s *Store) Remove(key Key) error {
	if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

func parseStamp(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}
