package store

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/rcliao/sofie/internal/model"
)

type entry struct {
	mem model.Memory
	seq uint64
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithBackend sets the persistence backend.
func WithBackend(b Backend) Option {
	return func(s *MemoryStore) {
		if b != nil {
			s.backend = b
		}
	}
}

// WithCaps overrides the hard and soft capacity. Invalid pairs are ignored.
func WithCaps(hard, soft int) Option {
	return func(s *MemoryStore) {
		if soft > 0 && hard > soft {
			s.hardCap, s.softCap = hard, soft
		}
	}
}

// WithRecallLimit overrides the default recall limit.
func WithRecallLimit(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.recallLimit = n
		}
	}
}

// WithClock injects the time source used for CreatedAt and ids.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEntropy injects the randomness behind generated ids.
func WithEntropy(r io.Reader) Option {
	return func(s *MemoryStore) {
		if r != nil {
			s.entropy = ulid.Monotonic(r, 0)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *MemoryStore) {
		if l != nil {
			s.log = l.Named("eternal")
		}
	}
}

// MemoryStore is an append-only log of memories with significance-ranked
// eviction. Insertion order is the primary ordering of the log.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []entry
	ids     map[string]struct{}
	nextSeq uint64

	hardCap     int
	softCap     int
	recallLimit int

	backend Backend
	now     func() time.Time
	entropy io.Reader
	log     *zap.Logger
}

// NewMemoryStore creates an empty store. Without WithBackend it persists nothing.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		ids:         make(map[string]struct{}),
		hardCap:     DefaultHardCap,
		softCap:     DefaultSoftCap,
		recallLimit: DefaultRecallLimit,
		backend:     NopBackend{},
		now:         time.Now,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.entropy == nil {
		s.entropy = ulid.Monotonic(rand.New(rand.NewSource(s.now().UnixNano())), 0)
	}
	return s
}

// Caps returns the hard and soft capacity.
func (s *MemoryStore) Caps() (hard, soft int) {
	return s.hardCap, s.softCap
}

// Len returns the number of records held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Remember validates p, appends a new record and prunes when the hard cap is
// exceeded. Significance outside [0,1] is clamped; NaN is rejected.
func (s *MemoryStore) Remember(ctx context.Context, p RememberParams) (*model.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kind, sig, err := validate(p.Kind, p.Significance, p.Chamber)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp()
	mem := model.Memory{
		ID:           s.newIDLocked(now),
		Kind:         kind,
		Content:      p.Content,
		Chamber:      p.Chamber,
		Tone:         p.Tone,
		Significance: sig,
		CreatedAt:    now,
		Metadata:     p.Metadata,
	}
	mem = mem.Clone()
	s.appendLocked(mem)
	if len(s.entries) > s.hardCap {
		s.pruneLocked()
	}

	out := mem.Clone()
	return &out, nil
}

// Get returns the record with the given id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.entries {
		if s.entries[i].mem.ID == id {
			m := s.entries[i].mem.Clone()
			return &m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Load replaces the log with the backend's records. In-memory records whose
// ids the backend does not know are kept after the loaded ones.
func (s *MemoryStore) Load(ctx context.Context) error {
	loaded, err := s.backend.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load memories: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.entries
	s.entries = make([]entry, 0, len(loaded)+len(previous))
	s.ids = make(map[string]struct{}, len(loaded)+len(previous))
	for _, m := range loaded {
		if _, dup := s.ids[m.ID]; dup || m.ID == "" {
			continue
		}
		m.Significance = clamp(m.Significance)
		s.appendLocked(m.Clone())
	}
	for _, e := range previous {
		if _, dup := s.ids[e.mem.ID]; dup {
			continue
		}
		s.appendLocked(e.mem)
	}
	if len(s.entries) > s.hardCap {
		s.pruneLocked()
	}
	s.log.Info("memories loaded", zap.Int("loaded", len(loaded)), zap.Int("total", len(s.entries)))
	return nil
}

// Persist hands a snapshot of the log to the backend. The log is not modified.
func (s *MemoryStore) Persist(ctx context.Context) error {
	records := s.Snapshot()
	if err := s.backend.SaveAll(ctx, records); err != nil {
		return fmt.Errorf("persist memories: %w", err)
	}
	s.log.Info("memories persisted", zap.Int("total", len(records)))
	return nil
}

// Snapshot returns a copy of every record in insertion order.
func (s *MemoryStore) Snapshot() []model.Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Memory, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.mem.Clone()
	}
	return out
}

// Reset drops every record.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	s.entries = nil
	s.ids = make(map[string]struct{})
	s.mu.Unlock()
}

// Backend returns the configured backend.
func (s *MemoryStore) Backend() Backend {
	return s.backend
}

func (s *MemoryStore) timestamp() time.Time {
	return s.now().Round(0).UTC()
}

func (s *MemoryStore) newIDLocked(now time.Time) string {
	for {
		id := ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
		if _, taken := s.ids[id]; !taken {
			return id
		}
	}
}

func (s *MemoryStore) appendLocked(m model.Memory) {
	s.nextSeq++
	s.entries = append(s.entries, entry{mem: m, seq: s.nextSeq})
	s.ids[m.ID] = struct{}{}
}

// pruneLocked keeps the softCap highest-ranked records, preserving their
// insertion order. Rank: significance desc, CreatedAt desc, insertion desc.
func (s *MemoryStore) pruneLocked() {
	before := len(s.entries)
	if before <= s.softCap {
		return
	}

	ranked := make([]entry, before)
	copy(ranked, s.entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return outranks(ranked[i], ranked[j])
	})

	keep := make(map[uint64]struct{}, s.softCap)
	for _, e := range ranked[:s.softCap] {
		keep[e.seq] = struct{}{}
	}

	kept := make([]entry, 0, s.softCap)
	ids := make(map[string]struct{}, s.softCap)
	for _, e := range s.entries {
		if _, ok := keep[e.seq]; ok {
			kept = append(kept, e)
			ids[e.mem.ID] = struct{}{}
		}
	}
	s.entries = kept
	s.ids = ids
	s.log.Info("memories pruned", zap.Int("before", before), zap.Int("after", len(kept)))
}

func outranks(a, b entry) bool {
	if a.mem.Significance != b.mem.Significance {
		return a.mem.Significance > b.mem.Significance
	}
	if !a.mem.CreatedAt.Equal(b.mem.CreatedAt) {
		return a.mem.CreatedAt.After(b.mem.CreatedAt)
	}
	return a.seq > b.seq
}

func validate(kind model.Kind, sig float64, chamber int) (model.Kind, float64, error) {
	if kind == "" {
		kind = model.KindConversation
	}
	if !model.ValidKinds[kind] {
		return "", 0, &ValidationError{Field: "kind", Value: kind, Reason: "must be conversation, ritual, insight or pattern"}
	}
	if math.IsNaN(sig) {
		return "", 0, &ValidationError{Field: "significance", Value: sig, Reason: "not a number"}
	}
	if chamber != 0 && !model.ValidChamber(chamber) {
		return "", 0, &ValidationError{Field: "chamber", Value: chamber, Reason: "must be within 1-9"}
	}
	return kind, clamp(sig), nil
}

func clamp(sig float64) float64 {
	switch {
	case math.IsNaN(sig):
		return 0
	case sig < 0:
		return 0
	case sig > 1:
		return 1
	}
	return sig
}
