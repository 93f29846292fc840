package rategov

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTryAdmit_HourlyCeiling(t *testing.T) {
	g := New(Config{HourlyCalls: 5, DailyPublishes: 100, Shards: 4})
	base := time.Date(2026, 3, 10, 9, 20, 0, 0, time.UTC)
	g.Now = fixedClock(base)

	for i := 0; i < 5; i++ {
		d := g.TryAdmit("acct-1", 1)
		require.True(t, d.Admitted, "call %d should be admitted", i+1)
	}

	d := g.TryAdmit("acct-1", 1)
	assert.False(t, d.Admitted)
	// 9:20 -> window rolls at 10:00
	assert.Equal(t, 40*time.Minute, d.RetryAfter)
	assert.NotEmpty(t, d.Reason)
}

func TestTryAdmit_WindowRollsOver(t *testing.T) {
	g := New(Config{HourlyCalls: 2, DailyPublishes: 100})
	base := time.Date(2026, 3, 10, 9, 59, 0, 0, time.UTC)
	g.Now = fixedClock(base)

	require.True(t, g.TryAdmit("acct-1", 2).Admitted)
	require.False(t, g.TryAdmit("acct-1", 1).Admitted)

	// Cross into the next hour: fresh window, zero consumed.
	g.Now = fixedClock(base.Add(2 * time.Minute))
	assert.True(t, g.TryAdmit("acct-1", 1).Admitted)
}

func TestTryAdmitPublish_DailyCeilingIndependent(t *testing.T) {
	g := New(Config{HourlyCalls: 100, DailyPublishes: 2})
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	g.Now = fixedClock(base)

	require.True(t, g.TryAdmitPublish("acct-1", 1).Admitted)
	require.True(t, g.TryAdmitPublish("acct-1", 1).Admitted)

	d := g.TryAdmitPublish("acct-1", 1)
	require.False(t, d.Admitted)
	// Day bucket rolls at midnight UTC.
	assert.Equal(t, 15*time.Hour, d.RetryAfter)

	// Plain API calls are not limited by the publish budget.
	assert.True(t, g.TryAdmit("acct-1", 1).Admitted)
}

func TestTryAdmit_MoreRestrictiveWindowWins(t *testing.T) {
	g := New(Config{HourlyCalls: 1, DailyPublishes: 1})
	base := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	g.Now = fixedClock(base)

	require.True(t, g.TryAdmitPublish("acct-1", 1).Admitted)

	d := g.TryAdmitPublish("acct-1", 1)
	require.False(t, d.Admitted)
	// Both ceilings are hit; the daily wait (14h30m) beats the hourly (30m).
	assert.Equal(t, 14*time.Hour+30*time.Minute, d.RetryAfter)
}

func TestTryAdmit_AccountsAreIndependent(t *testing.T) {
	g := New(Config{HourlyCalls: 1, DailyPublishes: 10})
	g.Now = fixedClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	require.True(t, g.TryAdmit("acct-1", 1).Admitted)
	require.False(t, g.TryAdmit("acct-1", 1).Admitted)
	assert.True(t, g.TryAdmit("acct-2", 1).Admitted)
}

func TestTryAdmit_NeverExceedsCeilingUnderConcurrency(t *testing.T) {
	const ceiling = 50
	g := New(Config{HourlyCalls: ceiling, DailyPublishes: 1000})
	g.Now = fixedClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAdmit("acct-1", 1).Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, ceiling, admitted)
}

func TestStats(t *testing.T) {
	g := New(Config{HourlyCalls: 10, DailyPublishes: 5})
	g.Now = fixedClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		require.True(t, g.TryAdmitPublish(fmt.Sprintf("acct-%d", i%2), 1).Admitted)
	}

	stats := g.Stats()
	require.Len(t, stats, 2)
	total := 0
	for _, s := range stats {
		assert.Equal(t, 10, s.HourAllowed)
		assert.Equal(t, 5, s.DayAllowed)
		total += s.HourUsed
	}
	assert.Equal(t, 3, total)
}
