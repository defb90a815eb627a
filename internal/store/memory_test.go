package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/sofie/internal/model"
)

// steppingClock advances by one millisecond on every call.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{now: time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newTestStore(t *testing.T, opts ...Option) *MemoryStore {
	t.Helper()
	base := []Option{
		WithClock(newSteppingClock().Now),
		WithEntropy(rand.New(rand.NewSource(1))),
	}
	return NewMemoryStore(append(base, opts...)...)
}

func TestRememberAssignsIDAndTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mem, err := s.Remember(ctx, RememberParams{
		Kind: model.KindInsight, Content: "pattern of surrender", Significance: 0.5,
		Chamber: 3, Tone: "peaceful", Metadata: map[string]string{"source": "test"},
	})
	if err != nil {
		t.Fatalf("remember: %v", err)
	}
	if mem.ID == "" {
		t.Error("expected non-empty ID")
	}
	if mem.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if mem.Chamber != 3 || mem.Tone != "peaceful" || mem.Metadata["source"] != "test" {
		t.Errorf("fields not kept: %+v", mem)
	}

	// the returned copy must not alias the stored record
	mem.Metadata["source"] = "mutated"
	got, err := s.Get(ctx, mem.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Metadata["source"] != "test" {
		t.Errorf("stored metadata was mutated through the returned record: %q", got.Metadata["source"])
	}
}

func TestRememberClampsSignificance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mem, err := s.Remember(ctx, RememberParams{Kind: model.KindInsight, Content: "pattern of surrender", Significance: 1.5})
	if err != nil {
		t.Fatalf("remember: %v", err)
	}
	if mem.Significance != 1.0 {
		t.Errorf("expected significance clamped to 1.0, got %v", mem.Significance)
	}

	mem, err = s.Remember(ctx, RememberParams{Kind: model.KindInsight, Content: "below zero", Significance: -0.3})
	if err != nil {
		t.Fatalf("remember: %v", err)
	}
	if mem.Significance != 0 {
		t.Errorf("expected significance clamped to 0, got %v", mem.Significance)
	}
}

func TestRememberValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		p     RememberParams
		field string
	}{
		{"unknown kind", RememberParams{Kind: "dream", Content: "x", Significance: 0.5}, "kind"},
		{"nan significance", RememberParams{Kind: model.KindPattern, Content: "x", Significance: math.NaN()}, "significance"},
		{"chamber too high", RememberParams{Kind: model.KindPattern, Content: "x", Chamber: 10}, "chamber"},
		{"negative chamber", RememberParams{Kind: model.KindPattern, Content: "x", Chamber: -1}, "chamber"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			_, err := s.Remember(ctx, tt.p)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
			if s.Len() != 0 {
				t.Errorf("rejected call must not write, len=%d", s.Len())
			}
		})
	}
}

func TestRememberDefaultsKind(t *testing.T) {
	s := newTestStore(t)
	mem, err := s.Remember(context.Background(), RememberParams{Content: "plain"})
	if err != nil {
		t.Fatalf("remember: %v", err)
	}
	if mem.Kind != model.KindConversation {
		t.Errorf("expected default kind conversation, got %q", mem.Kind)
	}
}

func TestRememberUniqueIDs(t *testing.T) {
	ctx := context.Background()
	// a frozen clock forces every id into the same millisecond
	frozen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithClock(func() time.Time { return frozen }), WithEntropy(rand.New(rand.NewSource(7))))

	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		mem, err := s.Remember(ctx, RememberParams{Content: fmt.Sprintf("m%d", i), Significance: 0.5})
		if err != nil {
			t.Fatalf("remember: %v", err)
		}
		if seen[mem.ID] {
			t.Fatalf("duplicate id %s", mem.ID)
		}
		seen[mem.ID] = true
	}
}

func TestSizeNeverExceedsHardCap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := rand.New(rand.NewSource(42))

	prev := 0
	for i := 0; i < 2500; i++ {
		_, err := s.Remember(ctx, RememberParams{Content: fmt.Sprintf("m%d", i), Significance: r.Float64()})
		if err != nil {
			t.Fatalf("remember %d: %v", i, err)
		}
		n := s.Len()
		if n > DefaultHardCap {
			t.Fatalf("size %d exceeds hard cap after insert %d", n, i)
		}
		if n < prev && n > DefaultSoftCap {
			t.Fatalf("size %d after prune exceeds soft cap", n)
		}
		prev = n
	}
}

func TestPruneKeepsHighestSignificance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// ascending significance 0.000 .. 1.000
	for i := 0; i <= 1000; i++ {
		_, err := s.Remember(ctx, RememberParams{
			Kind: model.KindPattern, Content: fmt.Sprintf("m%04d", i), Significance: float64(i) / 1000,
		})
		if err != nil {
			t.Fatalf("remember %d: %v", i, err)
		}
		if i == 999 && s.Len() != 1000 {
			t.Fatalf("expected 1000 records before the cap is exceeded, got %d", s.Len())
		}
	}

	if s.Len() != DefaultSoftCap {
		t.Fatalf("expected %d records after prune, got %d", DefaultSoftCap, s.Len())
	}

	present := map[string]bool{}
	for _, m := range s.Snapshot() {
		present[m.Content] = true
	}
	for i := 0; i <= 200; i++ {
		if present[fmt.Sprintf("m%04d", i)] {
			t.Errorf("m%04d should have been pruned", i)
		}
	}
	for i := 201; i <= 1000; i++ {
		if !present[fmt.Sprintf("m%04d", i)] {
			t.Errorf("m%04d should have been kept", i)
		}
	}
}

func TestPruneKeptOutranksDiscarded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := rand.New(rand.NewSource(3))

	all := map[string]float64{}
	for i := 0; i <= DefaultHardCap; i++ {
		// coarse buckets so ties happen
		sig := math.Round(r.Float64()*10) / 10
		mem, err := s.Remember(ctx, RememberParams{Content: fmt.Sprintf("m%d", i), Significance: sig})
		if err != nil {
			t.Fatal(err)
		}
		all[mem.ID] = sig
	}

	kept := map[string]bool{}
	minKept := 1.0
	for _, m := range s.Snapshot() {
		kept[m.ID] = true
		minKept = math.Min(minKept, m.Significance)
	}
	for id, sig := range all {
		if !kept[id] && sig > minKept {
			t.Errorf("discarded %s (%.1f) outranks kept minimum %.1f", id, sig, minKept)
		}
	}
}

func TestPruneTieBreakPrefersRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithCaps(4, 2))

	for i := 0; i < 5; i++ {
		if _, err := s.Remember(ctx, RememberParams{Content: fmt.Sprintf("m%d", i), Significance: 0.5}); err != nil {
			t.Fatal(err)
		}
	}
	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 records, got %d", len(snap))
	}
	if snap[0].Content != "m3" || snap[1].Content != "m4" {
		t.Errorf("expected the two newest in insertion order, got %q %q", snap[0].Content, snap[1].Content)
	}
}

func TestPruneIsDeterministic(t *testing.T) {
	run := func() []string {
		ctx := context.Background()
		s := newTestStore(t, WithCaps(50, 20))
		r := rand.New(rand.NewSource(9))
		for i := 0; i < 51; i++ {
			s.Remember(ctx, RememberParams{Content: fmt.Sprintf("m%d", i), Significance: math.Round(r.Float64()*4) / 4})
		}
		var out []string
		for _, m := range s.Snapshot() {
			out = append(out, m.Content)
		}
		return out
	}
	a, b := run(), run()
	if strings.Join(a, ",") != strings.Join(b, ",") {
		t.Errorf("prune not deterministic:\n%v\n%v", a, b)
	}
}

func TestWithCapsIgnoresInvalidPairs(t *testing.T) {
	s := NewMemoryStore(WithCaps(10, 20))
	hard, soft := s.Caps()
	if hard != DefaultHardCap || soft != DefaultSoftCap {
		t.Errorf("expected defaults, got %d/%d", hard, soft)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mem, _ := s.Remember(ctx, RememberParams{Content: "a"})
	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
	if _, err := s.Get(ctx, mem.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after reset, got %v", err)
	}
}

func TestRememberHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestStore(t)
	if _, err := s.Remember(ctx, RememberParams{Content: "a"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("cancelled call must not write")
	}
}

func TestConcurrentRememberAndRecall(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Remember(ctx, RememberParams{Content: fmt.Sprintf("worker %d item %d", w, i), Significance: 0.5})
				s.Recall(ctx, RecallParams{Query: "worker", Limit: 3})
				s.Stats(ctx)
			}
		}(w)
	}
	wg.Wait()

	if s.Len() > DefaultHardCap {
		t.Errorf("size %d exceeds hard cap", s.Len())
	}
}

type fakeBackend struct {
	records []model.Memory
	saved   [][]model.Memory
	loadErr error
}

func (f *fakeBackend) LoadAll(context.Context) ([]model.Memory, error) {
	return f.records, f.loadErr
}

func (f *fakeBackend) SaveAll(_ context.Context, records []model.Memory) error {
	f.saved = append(f.saved, records)
	return nil
}

func (f *fakeBackend) Close() error { return nil }

func TestLoadMergesInMemoryRecords(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fb := &fakeBackend{records: []model.Memory{
		{ID: "A", Kind: model.KindRitual, Content: "persisted a", Significance: 1, CreatedAt: created},
		{ID: "B", Kind: model.KindInsight, Content: "persisted b", Significance: 2, CreatedAt: created},
	}}
	s := newTestStore(t, WithBackend(fb))

	local, _ := s.Remember(ctx, RememberParams{Content: "local only"})
	if err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 records, got %d", len(snap))
	}
	if snap[0].ID != "A" || snap[1].ID != "B" || snap[2].ID != local.ID {
		t.Errorf("unexpected order: %s %s %s", snap[0].ID, snap[1].ID, snap[2].ID)
	}
	if snap[1].Significance != 1 {
		t.Errorf("loaded significance should be clamped, got %v", snap[1].Significance)
	}

	// loading twice must not duplicate
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 3 {
		t.Errorf("expected 3 after reload, got %d", s.Len())
	}
}

func TestLoadError(t *testing.T) {
	fb := &fakeBackend{loadErr: errors.New("disk on fire")}
	s := newTestStore(t, WithBackend(fb))
	s.Remember(context.Background(), RememberParams{Content: "keep me"})
	if err := s.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if s.Len() != 1 {
		t.Errorf("failed load must not touch the log")
	}
}

func TestPersistDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{}
	s := newTestStore(t, WithBackend(fb))
	s.Remember(ctx, RememberParams{Content: "a", Significance: 0.3})
	s.Remember(ctx, RememberParams{Content: "b", Significance: 0.9})

	before := s.Snapshot()
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("persist: %v", err)
	}
	after := s.Snapshot()
	if len(fb.saved) != 1 || len(fb.saved[0]) != 2 {
		t.Fatalf("expected one save of 2 records, got %v", fb.saved)
	}
	if len(before) != len(after) || before[0].ID != after[0].ID || before[1].ID != after[1].ID {
		t.Error("persist mutated the log")
	}
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	existing, _ := s.Remember(ctx, RememberParams{Content: "already here"})

	n, err := s.Import(ctx, []model.Memory{
		{ID: existing.ID, Kind: model.KindInsight, Content: "dup"},
		{ID: "X1", Kind: model.KindPattern, Content: "new", Significance: 3},
		{Kind: model.KindRitual, Content: "no id"},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 imported, got %d", n)
	}
	got, err := s.Get(ctx, "X1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Significance != 1 {
		t.Errorf("expected clamped significance, got %v", got.Significance)
	}

	_, err = s.Import(ctx, []model.Memory{{ID: "ok", Kind: model.KindPattern}, {ID: "bad", Kind: "nope"}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, err := s.Get(ctx, "ok"); !errors.Is(err, ErrNotFound) {
		t.Error("a rejected batch must not be partially applied")
	}
}
