package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/replysmith/replysmith/internal/core"
)

const minuteWindow = time.Minute

// MemoryStore holds usage records in process memory. Records for stale days
// are replaced lazily on access and swept by the janitor; everything is lost
// on process restart, which the admission contract accepts. All mutations
// happen under one mutex, so Admit is atomic.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*core.UsageRecord
}

// NewMemoryStore creates an empty in-process usage store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*core.UsageRecord)}
}

// Admit implements engine.UsageStore.
//
// Policy order is fixed: window reset, per-minute check, daily check,
// joint increment. A request that would exceed both caps reports
// rate_limited, not daily_cap.
func (s *MemoryStore) Admit(_ context.Context, ip, day string, now time.Time, limits core.Limits) (core.Admission, error) {
	key := core.UsageKey(ip, day)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || rec.Day != day {
		rec = &core.UsageRecord{Day: day, MinuteWindowStart: now}
		s.records[key] = rec
	}

	if now.Sub(rec.MinuteWindowStart) > minuteWindow {
		rec.MinuteWindowStart = now
		rec.MinuteCount = 0
	}

	if rec.MinuteCount >= limits.PerMinuteCap {
		return core.Admission{
			Reason:        core.ReasonRateLimited,
			RetryAfterSec: retryAfterSec(now.Sub(rec.MinuteWindowStart)),
			Remaining:     remaining(limits.DailyCap, rec.Total),
		}, nil
	}

	if rec.Total >= limits.DailyCap {
		return core.Admission{Reason: core.ReasonDailyCap}, nil
	}

	rec.MinuteCount++
	rec.Total++

	return core.Admission{OK: true, Remaining: remaining(limits.DailyCap, rec.Total)}, nil
}

// List implements engine.UsageStore. Entries are sorted by key.
func (s *MemoryStore) List(_ context.Context) ([]core.UsageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]core.UsageEntry, 0, len(s.records))
	for key, rec := range s.records {
		entries = append(entries, core.UsageEntry{Key: key, Record: *rec})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Reset implements engine.UsageStore.
func (s *MemoryStore) Reset(_ context.Context, ip, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, core.UsageKey(ip, day))
	return nil
}

// StartJanitor sweeps abandoned stale-day records periodically until the
// context is cancelled. Stale records are harmless (they are ignored on
// access) but would otherwise accumulate for the process lifetime.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.sweep(core.DayKey(time.Now()))
			}
		}
	}()
}

func (s *MemoryStore) sweep(today string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, rec := range s.records {
		if rec.Day != today {
			delete(s.records, key)
		}
	}
}

// retryAfterSec reports how long until the current 60s window rolls over,
// rounded up to whole seconds and never zero.
func retryAfterSec(elapsed time.Duration) int {
	sec := int(math.Ceil((minuteWindow - elapsed).Seconds()))
	if sec < 1 {
		sec = 1
	}
	return sec
}

func remaining(dailyCap, total int) int {
	if left := dailyCap - total; left > 0 {
		return left
	}
	return 0
}

// splitKey recovers (ip, day) from a store key. The day is the final
// yyyy-mm-dd segment, so IPv6 addresses with colons survive the round trip.
func splitKey(key string) (ip, day string) {
	idx := strings.LastIndex(key, ":")
	if idx < 0 {
		return key, ""
	}
	return key[:idx], key[idx+1:]
}
