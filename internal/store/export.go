package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/rcliao/sofie/internal/model"
)

// Import appends memories from an export, keeping their ids. Records whose id
// is already present are skipped. Every record is validated before any is
// stored, so a bad record rejects the whole batch.
func (s *MemoryStore) Import(ctx context.Context, memories []model.Memory) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	prepared := make([]model.Memory, 0, len(memories))
	for _, m := range memories {
		kind, sig, err := validate(m.Kind, m.Significance, m.Chamber)
		if err != nil {
			return 0, err
		}
		m.Kind = kind
		m.Significance = sig
		prepared = append(prepared, m.Clone())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	imported := 0
	for _, m := range prepared {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.timestamp()
		}
		if m.ID == "" {
			m.ID = s.newIDLocked(m.CreatedAt)
		}
		if _, dup := s.ids[m.ID]; dup {
			continue
		}
		s.appendLocked(m)
		imported++
	}
	if len(s.entries) > s.hardCap {
		s.pruneLocked()
	}
	s.log.Info("memories imported", zap.Int("imported", imported), zap.Int("skipped", len(prepared)-imported))
	return imported, nil
}
