package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/replysmith/replysmith/internal/core"
)

var testLimits = core.Limits{DailyCap: 20, PerMinuteCap: 6}

func admitAt(t *testing.T, s *MemoryStore, ip string, now time.Time) core.Admission {
	t.Helper()
	adm, err := s.Admit(context.Background(), ip, core.DayKey(now), now, testLimits)
	require.NoError(t, err)
	return adm
}

func TestMemoryStoreAdmitsUpToPerMinuteCap(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	for i := 0; i < testLimits.PerMinuteCap; i++ {
		adm := admitAt(t, s, "1.2.3.4", now)
		require.True(t, adm.OK, "request %d should be admitted", i+1)
		require.Equal(t, testLimits.DailyCap-(i+1), adm.Remaining)
	}

	adm := admitAt(t, s, "1.2.3.4", now.Add(time.Second))
	require.False(t, adm.OK)
	require.Equal(t, core.ReasonRateLimited, adm.Reason)
	require.Equal(t, testLimits.DailyCap-testLimits.PerMinuteCap, adm.Remaining)
}

func TestMemoryStoreRetryAfterBounds(t *testing.T) {
	s := NewMemoryStore()
	start := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	for i := 0; i < testLimits.PerMinuteCap; i++ {
		admitAt(t, s, "1.2.3.4", start)
	}

	// Immediately after filling the window, nearly the full window remains
	adm := admitAt(t, s, "1.2.3.4", start)
	require.False(t, adm.OK)
	require.Equal(t, 60, adm.RetryAfterSec)

	// Late in the window the hint shrinks but never reaches zero
	adm = admitAt(t, s, "1.2.3.4", start.Add(59*time.Second+900*time.Millisecond))
	require.False(t, adm.OK)
	require.Equal(t, 1, adm.RetryAfterSec)
}

func TestMemoryStoreWindowResetsAfterStrictlyOneMinute(t *testing.T) {
	s := NewMemoryStore()
	start := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	for i := 0; i < testLimits.PerMinuteCap; i++ {
		admitAt(t, s, "1.2.3.4", start)
	}

	// Exactly 60s elapsed: window has NOT rolled over yet
	adm := admitAt(t, s, "1.2.3.4", start.Add(time.Minute))
	require.False(t, adm.OK)
	require.Equal(t, core.ReasonRateLimited, adm.Reason)

	// One instant past 60s: fresh window
	adm = admitAt(t, s, "1.2.3.4", start.Add(time.Minute+time.Millisecond))
	require.True(t, adm.OK)
}

func TestMemoryStoreDailyCap(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	admitted := 0
	for i := 0; i < testLimits.DailyCap+5; i++ {
		// Advance past the minute window between bursts so only the daily
		// cap binds
		burst := now.Add(time.Duration(i/testLimits.PerMinuteCap) * (time.Minute + time.Second))
		adm := admitAt(t, s, "1.2.3.4", burst)
		if adm.OK {
			admitted++
		} else if adm.Reason == core.ReasonDailyCap {
			require.Equal(t, 0, adm.Remaining)
			require.Equal(t, 0, adm.RetryAfterSec)
		}
	}

	require.Equal(t, testLimits.DailyCap, admitted)
}

func TestMemoryStoreRejectionConsumesNothing(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	for i := 0; i < testLimits.PerMinuteCap; i++ {
		admitAt(t, s, "1.2.3.4", now)
	}

	first := admitAt(t, s, "1.2.3.4", now)
	second := admitAt(t, s, "1.2.3.4", now)
	require.False(t, first.OK)
	require.False(t, second.OK)
	require.Equal(t, first.Remaining, second.Remaining)

	entries, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, testLimits.PerMinuteCap, entries[0].Record.Total)
}

func TestMemoryStoreDayRolloverResetsBudget(t *testing.T) {
	s := NewMemoryStore()
	lateNight := time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC)

	for i := 0; i < testLimits.PerMinuteCap; i++ {
		admitAt(t, s, "1.2.3.4", lateNight)
	}
	require.False(t, admitAt(t, s, "1.2.3.4", lateNight).OK)

	// New UTC day: full budget, old record irrelevant
	nextDay := lateNight.Add(2 * time.Minute)
	require.NotEqual(t, core.DayKey(lateNight), core.DayKey(nextDay))

	adm := admitAt(t, s, "1.2.3.4", nextDay)
	require.True(t, adm.OK)
	require.Equal(t, testLimits.DailyCap-1, adm.Remaining)
}

func TestMemoryStoreIsolatesClients(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	for i := 0; i < testLimits.PerMinuteCap; i++ {
		admitAt(t, s, "1.2.3.4", now)
	}
	require.False(t, admitAt(t, s, "1.2.3.4", now).OK)

	adm := admitAt(t, s, "5.6.7.8", now)
	require.True(t, adm.OK)
	require.Equal(t, testLimits.DailyCap-1, adm.Remaining)
}

func TestMemoryStoreConcurrentAdmitsHoldCap(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	results := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			adm, err := s.Admit(context.Background(), "1.2.3.4", core.DayKey(now), now, testLimits)
			if err == nil {
				results <- adm.OK
			}
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for ok := range results {
		if ok {
			admitted++
		}
	}
	require.Equal(t, testLimits.PerMinuteCap, admitted)
}

func TestMemoryStoreReset(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	for i := 0; i < testLimits.PerMinuteCap; i++ {
		admitAt(t, s, "1.2.3.4", now)
	}
	require.False(t, admitAt(t, s, "1.2.3.4", now).OK)

	require.NoError(t, s.Reset(context.Background(), "1.2.3.4", core.DayKey(now)))
	require.True(t, admitAt(t, s, "1.2.3.4", now).OK)
}

func TestSplitKeyKeepsIPv6Intact(t *testing.T) {
	ip, day := splitKey("2001:db8::1:2026-08-29")
	require.Equal(t, "2001:db8::1", ip)
	require.Equal(t, "2026-08-29", day)
}
