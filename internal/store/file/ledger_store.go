// Package file persists the ledger as a single JSON document on local disk.
// The record is read fully at startup and rewritten fully on every mutation;
// writes go through a temp file and rename so a crash mid-write never leaves
// a torn record behind.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hedgeworks/crossarb/internal/domain"
)

// LedgerStore implements domain.LedgerStore over a single file path.
type LedgerStore struct {
	path string
}

// NewLedgerStore returns a store rooted at path. The parent directory is
// created on first save if it does not exist.
func NewLedgerStore(path string) *LedgerStore {
	return &LedgerStore{path: path}
}

// Load reads and decodes the full record. A missing file maps to
// domain.ErrNotFound so callers can distinguish first-run from corruption.
func (s *LedgerStore) Load(_ context.Context) (*domain.Ledger, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("file: ledger %s: %w", s.path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("file: read ledger: %w", err)
	}

	var led domain.Ledger
	if err := json.Unmarshal(data, &led); err != nil {
		return nil, fmt.Errorf("file: decode ledger: %w", err)
	}
	return &led, nil
}

// Save rewrites the full record atomically.
func (s *LedgerStore) Save(_ context.Context, led *domain.Ledger) error {
	data, err := json.MarshalIndent(led, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file: create ledger dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("file: create temp ledger: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: close temp ledger: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: replace ledger: %w", err)
	}
	return nil
}
