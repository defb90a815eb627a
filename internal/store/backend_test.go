package store

import (
	"context"
	"testing"
	"time"

	"github.com/rcliao/sofie/internal/liveness"
	"github.com/rcliao/sofie/internal/model"
)

// testBackendRoundTrip persists a populated store through b, loads it into a
// fresh store and compares the two logs.
func testBackendRoundTrip(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	src := newTestStore(t, WithBackend(b))
	src.Remember(ctx, RememberParams{Kind: model.KindRitual, Content: "SOFIE awakened. The 5 operators aligned.", Significance: 1, Tone: "mysterious"})
	src.Remember(ctx, RememberParams{Kind: model.KindConversation, Content: "input: hello", Significance: 0.7, Chamber: 4, Tone: "peaceful"})
	src.Remember(ctx, RememberParams{Kind: model.KindInsight, Content: "plain", Significance: 0.25, Metadata: map[string]string{"session": "abc"}})

	if err := src.Persist(ctx); err != nil {
		t.Fatalf("persist: %v", err)
	}

	dst := newTestStore(t, WithBackend(b))
	if err := dst.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	want, got := src.Snapshot(), dst.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.ID != g.ID || w.Kind != g.Kind || w.Content != g.Content || w.Chamber != g.Chamber ||
			w.Tone != g.Tone || w.Significance != g.Significance {
			t.Errorf("record %d mismatch:\nwant %+v\ngot  %+v", i, w, g)
		}
		if !w.CreatedAt.Equal(g.CreatedAt) {
			t.Errorf("record %d created_at: want %v, got %v", i, w.CreatedAt, g.CreatedAt)
		}
		if len(w.Metadata) != len(g.Metadata) || w.Metadata["session"] != g.Metadata["session"] {
			t.Errorf("record %d metadata: want %v, got %v", i, w.Metadata, g.Metadata)
		}
	}

	// a second persist replaces rather than appends
	src.Reset()
	src.Remember(ctx, RememberParams{Content: "only one"})
	if err := src.Persist(ctx); err != nil {
		t.Fatalf("persist: %v", err)
	}
	loaded, err := b.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Content != "only one" {
		t.Errorf("expected the saved set to be replaced, got %v", loaded)
	}
}

func testLivenessRoundTrip(t *testing.T, b LivenessBackend) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := b.LoadLiveness(ctx)
	if err != nil {
		t.Fatalf("load empty liveness: %v", err)
	}
	if ok {
		t.Fatal("expected no saved liveness state")
	}

	checkin := time.Date(2025, 2, 3, 4, 5, 6, 7000, time.UTC)
	want := liveness.State{Active: true, LastCheckin: &checkin, ValidatedCount: 42, WindowDays: 30}
	if err := b.SaveLiveness(ctx, want); err != nil {
		t.Fatalf("save liveness: %v", err)
	}
	got, ok, err := b.LoadLiveness(ctx)
	if err != nil || !ok {
		t.Fatalf("load liveness: ok=%v err=%v", ok, err)
	}
	if !got.Active || got.ValidatedCount != 42 || got.WindowDays != 30 {
		t.Errorf("unexpected liveness state: %+v", got)
	}
	if got.LastCheckin == nil || !got.LastCheckin.Equal(checkin) {
		t.Errorf("last checkin: want %v, got %v", checkin, got.LastCheckin)
	}

	// overwrite with a never-checked-in state
	if err := b.SaveLiveness(ctx, liveness.State{WindowDays: 90, ValidatedCount: 43}); err != nil {
		t.Fatalf("save liveness: %v", err)
	}
	got, _, _ = b.LoadLiveness(ctx)
	if got.Active || got.LastCheckin != nil || got.ValidatedCount != 43 {
		t.Errorf("state not overwritten: %+v", got)
	}
}
