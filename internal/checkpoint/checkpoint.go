// Package checkpoint records which source files an import run has fully
// ingested. Deterministic tick ids already make re-imports safe; checkpoints
// just let a re-run skip the redundant work.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Record marks one source file as completely imported.
type Record struct {
	File        string    `msgpack:"file"`
	Inserted    int       `msgpack:"inserted"`
	Duplicates  int       `msgpack:"duplicates"`
	Dropped     int       `msgpack:"dropped"`
	CompletedAt time.Time `msgpack:"completed_at"`
}

// Store persists records as msgpack files under one directory.
type Store struct {
	dir string
}

// NewStore creates the checkpoint directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(file string) string {
	sum := sha256.Sum256([]byte(file))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:8])+".cp")
}

// Load returns the record for a source file, if one exists.
func (s *Store) Load(file string) (*Record, bool) {
	raw, err := os.ReadFile(s.pathFor(file))
	if err != nil {
		return nil, false
	}
	var rec Record
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}
	if rec.File != file {
		// Hash prefix collision; treat as absent.
		return nil, false
	}
	return &rec, true
}

// Save writes the record atomically (write-then-rename).
func (s *Store) Save(rec Record) error {
	raw, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("encode checkpoint for %s: %w", rec.File, err)
	}
	final := s.pathFor(rec.File)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write checkpoint for %s: %w", rec.File, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("commit checkpoint for %s: %w", rec.File, err)
	}
	return nil
}
