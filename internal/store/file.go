package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rcliao/sofie/internal/liveness"
	"github.com/rcliao/sofie/internal/model"
)

const fileFormatVersion = 1

type fileDocument struct {
	Version  int             `json:"version"`
	Memories []model.Memory  `json:"memories"`
	Liveness *liveness.State `json:"liveness,omitempty"`
}

// FileBackend stores memories and liveness state in a single JSON document.
// Writes go through a temporary file and an atomic rename.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

// NewFileBackend creates the parent directory of path if needed.
func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create file backend dir: %w", err)
	}
	return &FileBackend{path: path}, nil
}

// LoadAll reads every memory. A missing file yields no records.
func (b *FileBackend) LoadAll(ctx context.Context) ([]model.Memory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, err := b.readLocked()
	if err != nil {
		return nil, err
	}
	return doc.Memories, nil
}

// SaveAll replaces the stored memories.
func (b *FileBackend) SaveAll(ctx context.Context, records []model.Memory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, err := b.readLocked()
	if err != nil {
		return err
	}
	doc.Memories = records
	return b.writeLocked(doc)
}

// LoadLiveness returns the saved liveness state.
func (b *FileBackend) LoadLiveness(ctx context.Context) (liveness.State, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, err := b.readLocked()
	if err != nil || doc.Liveness == nil {
		return liveness.State{}, false, err
	}
	return *doc.Liveness, true, nil
}

// SaveLiveness overwrites the saved liveness state.
func (b *FileBackend) SaveLiveness(ctx context.Context, st liveness.State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, err := b.readLocked()
	if err != nil {
		return err
	}
	doc.Liveness = &st
	return b.writeLocked(doc)
}

// Close is a no-op.
func (b *FileBackend) Close() error {
	return nil
}

func (b *FileBackend) readLocked() (fileDocument, error) {
	doc := fileDocument{Version: fileFormatVersion}
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", b.path, err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", b.path, err)
	}
	return doc, nil
}

func (b *FileBackend) writeLocked(doc fileDocument) error {
	doc.Version = fileFormatVersion
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", b.path, err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", b.path, err)
	}
	return nil
}
