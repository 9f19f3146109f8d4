// Package storage persists the dashboard's durable collections as JSON
// files under a single data directory, one file per collection: request
// logs, saved prompts, saved responses and config. Each store owns its
// file exclusively and serializes mutations through a mutex so that the
// read-whole/modify/write-whole cycle cannot lose a concurrent update.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// store is the shared file-backed collection base embedded by every
// concrete store.
type store struct {
	mu   sync.Mutex
	path string
}

func (s *store) init(dataDir, filename string) {
	s.path = filepath.Join(dataDir, filename)
}

// readFile loads the collection into out. A missing file leaves out at
// its zero value, so an untouched data dir behaves as empty collections.
func (s *store) readFile(out interface{}) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", s.path, err)
	}
	return nil
}

// writeFile replaces the whole collection on disk
func (s *store) writeFile(v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", s.path, err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}

// exists reports whether the collection file has been created yet
func (s *store) exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
