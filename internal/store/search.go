package store

import (
	"context"
	"sort"
	"strings"

	"github.com/rcliao/sofie/internal/model"
)

// Recall finds memories whose content contains the query, case-insensitively.
// Results are ordered by significance, most recent insertion first among
// equals. The query is matched as given, surrounding spaces included; an
// empty or all-whitespace query matches nothing.
func (s *MemoryStore) Recall(ctx context.Context, p RecallParams) ([]model.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = s.recallLimit
	}

	if strings.TrimSpace(p.Query) == "" {
		return []model.Memory{}, nil
	}
	query := strings.ToLower(p.Query)

	s.mu.RLock()
	var matches []model.Memory
	for i := len(s.entries) - 1; i >= 0; i-- {
		m := s.entries[i].mem
		if p.Kind != "" && m.Kind != p.Kind {
			continue
		}
		if strings.Contains(strings.ToLower(m.Content), query) {
			matches = append(matches, m.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Significance > matches[j].Significance
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	if matches == nil {
		matches = []model.Memory{}
	}
	return matches, nil
}

// Recent returns the newest memories by CreatedAt.
func (s *MemoryStore) Recent(ctx context.Context, limit int) []model.Memory {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	s.mu.RLock()
	out := make([]model.Memory, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		out = append(out, s.entries[i].mem.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
