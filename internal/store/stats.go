package store

import (
	"context"
	"time"

	"github.com/rcliao/sofie/internal/model"
)

// Stats holds store statistics.
type Stats struct {
	Total   int                `json:"total_memories"`
	ByKind  map[model.Kind]int `json:"by_kind"`
	Oldest  *time.Time         `json:"oldest_memory,omitempty"`
	Newest  *time.Time         `json:"newest_memory,omitempty"`
	HardCap int                `json:"hard_cap"`
	SoftCap int                `json:"soft_cap"`
}

// Stats returns store statistics. It only takes the read lock.
func (s *MemoryStore) Stats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Total:   len(s.entries),
		ByKind:  make(map[model.Kind]int),
		HardCap: s.hardCap,
		SoftCap: s.softCap,
	}
	for i := range s.entries {
		m := &s.entries[i].mem
		st.ByKind[m.Kind]++
		if st.Oldest == nil || m.CreatedAt.Before(*st.Oldest) {
			t := m.CreatedAt
			st.Oldest = &t
		}
		if st.Newest == nil || m.CreatedAt.After(*st.Newest) {
			t := m.CreatedAt
			st.Newest = &t
		}
	}
	return st
}
