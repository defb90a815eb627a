package liveness

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestNewTrackerDefaults(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.Active())
	assert.Equal(t, uint64(0), tr.ValidatedCount())
	assert.Equal(t, DefaultWindowDays, tr.WindowDays())
	assert.Equal(t, DefaultWindowDays, tr.DaysUntilSwitch(), "no checkin yet means a full window")

	st := tr.Snapshot()
	assert.Nil(t, st.LastCheckin)
	assert.Equal(t, ConsensusOffline, st.Consensus)
}

func TestWithWindowDaysIgnoresNonPositive(t *testing.T) {
	assert.Equal(t, DefaultWindowDays, NewTracker(WithWindowDays(0)).WindowDays())
	assert.Equal(t, DefaultWindowDays, NewTracker(WithWindowDays(-3)).WindowDays())
	assert.Equal(t, 30.0, NewTracker(WithWindowDays(30)).WindowDays())
}

func TestActivateIsIdempotentAndRefreshesCheckin(t *testing.T) {
	clk := newFakeClock()
	tr := NewTracker(WithClock(clk.Now))

	tr.Activate()
	first := tr.Snapshot().LastCheckin
	require.NotNil(t, first)

	clk.Advance(48 * time.Hour)
	tr.Activate()
	second := tr.Snapshot().LastCheckin
	require.NotNil(t, second)
	assert.True(t, second.After(*first))
	assert.True(t, tr.Active())
	assert.Equal(t, DefaultWindowDays, tr.DaysUntilSwitch())
}

func TestDeactivateKeepsHistory(t *testing.T) {
	clk := newFakeClock()
	tr := NewTracker(WithClock(clk.Now))
	tr.Activate()
	_, err := tr.RecordValidation("0xabc")
	require.NoError(t, err)

	tr.Deactivate()
	st := tr.Snapshot()
	assert.False(t, st.Active)
	assert.Equal(t, uint64(1), st.ValidatedCount)
	assert.NotNil(t, st.LastCheckin)
}

func TestRecordValidationRequiresActive(t *testing.T) {
	tr := NewTracker()

	n, err := tr.RecordValidation("0x1")
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Zero(t, n)
	assert.Equal(t, uint64(0), tr.ValidatedCount())

	tr.Activate()
	n, err = tr.RecordValidation("0x1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	tr.Deactivate()
	_, err = tr.RecordValidation("0x2")
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Equal(t, uint64(1), tr.ValidatedCount(), "failed call must not change the count")
}

func TestCheckinAllowedWhileInactive(t *testing.T) {
	clk := newFakeClock()
	tr := NewTracker(WithClock(clk.Now))
	tr.Checkin()
	assert.False(t, tr.Active())
	assert.NotNil(t, tr.Snapshot().LastCheckin)
}

func TestDaysUntilSwitchMonotoneBetweenCheckins(t *testing.T) {
	clk := newFakeClock()
	tr := NewTracker(WithClock(clk.Now), WithWindowDays(90))
	tr.Activate()

	prev := tr.DaysUntilSwitch()
	for i := 0; i < 20; i++ {
		clk.Advance(6 * time.Hour)
		cur := tr.DaysUntilSwitch()
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
	assert.InDelta(t, 85.0, prev, 1e-9)

	tr.Checkin()
	assert.Equal(t, 90.0, tr.DaysUntilSwitch(), "checkin resets the switch to the full window")
}

func TestSwitchReachesZeroAfterWindow(t *testing.T) {
	clk := newFakeClock()
	tr := NewTracker(WithClock(clk.Now), WithWindowDays(90))
	tr.Activate()

	clk.Advance(95 * 24 * time.Hour)
	assert.Equal(t, 0.0, tr.DaysUntilSwitch())
	assert.True(t, tr.Expired())
	assert.True(t, tr.Active(), "expiry is reported, never acted on")
	assert.Equal(t, ConsensusOffline, tr.Consensus())
}

func TestClockSkewNeverExceedsWindow(t *testing.T) {
	clk := newFakeClock()
	tr := NewTracker(WithClock(clk.Now), WithWindowDays(10))
	tr.Activate()
	clk.Advance(-72 * time.Hour)
	assert.Equal(t, 10.0, tr.DaysUntilSwitch())
}

func TestConsensus(t *testing.T) {
	clk := newFakeClock()
	tr := NewTracker(WithClock(clk.Now), WithWindowDays(100))
	assert.Equal(t, ConsensusOffline, tr.Consensus())

	tr.Activate()
	assert.Equal(t, ConsensusOnline, tr.Consensus())

	clk.Advance(95 * 24 * time.Hour)
	assert.Equal(t, ConsensusDegraded, tr.Consensus())

	tr.Deactivate()
	assert.Equal(t, ConsensusOffline, tr.Consensus())
}

func TestRestore(t *testing.T) {
	clk := newFakeClock()
	last := clk.Now().Add(-10 * 24 * time.Hour)

	tr := NewTracker(WithClock(clk.Now))
	tr.Restore(State{Active: true, ValidatedCount: 7, LastCheckin: &last})

	st := tr.Snapshot()
	assert.False(t, st.Active, "restore never activates")
	assert.Equal(t, uint64(7), st.ValidatedCount)
	assert.InDelta(t, 80.0, st.DaysUntilSwitch, 1e-9)

	tr.Restore(State{ValidatedCount: 3})
	assert.Equal(t, uint64(7), tr.ValidatedCount(), "count never decreases")

	// restored history does not open the tracker to new validations
	_, err := tr.RecordValidation("0xabc")
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Equal(t, uint64(7), tr.ValidatedCount())
}

func TestConcurrentValidations(t *testing.T) {
	tr := NewTracker()
	tr.Activate()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tr.RecordValidation("ref")
			_ = tr.DaysUntilSwitch()
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(50), tr.ValidatedCount())
}
