package engine

import (
	"context"
	"time"

	"github.com/replysmith/replysmith/internal/core"
)

// UsageStore counts requests against quota. Admit must be atomic per key:
// concurrent calls for the same key may never observe a half-applied
// increment, so the caps hold even under bursts from one address.
type UsageStore interface {
	// Admit evaluates the fixed-window policy for (ip, day) at the given
	// instant and, when the request is allowed, consumes one unit from both
	// the per-minute and the daily budget in the same operation.
	Admit(ctx context.Context, ip, day string, now time.Time, limits core.Limits) (core.Admission, error)
	// List returns every live usage record.
	List(ctx context.Context) ([]core.UsageEntry, error)
	// Reset discards the record for (ip, day), if any.
	Reset(ctx context.Context, ip, day string) error
}

// Tracker applies the per-IP admission policy on top of a UsageStore.
type Tracker struct {
	Store  UsageStore
	Limits core.Limits

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// NewTracker returns a tracker with defaults applied for zero-value limits.
func NewTracker(store UsageStore, limits core.Limits) *Tracker {
	if limits.DailyCap <= 0 {
		limits.DailyCap = core.DefaultLimits.DailyCap
	}
	if limits.PerMinuteCap <= 0 {
		limits.PerMinuteCap = core.DefaultLimits.PerMinuteCap
	}
	return &Tracker{Store: store, Limits: limits}
}

// Admit counts one request for ip, or reports why it was refused.
func (t *Tracker) Admit(ctx context.Context, ip string) (core.Admission, error) {
	now := t.now()
	return t.Store.Admit(ctx, ip, core.DayKey(now), now, t.Limits)
}

func (t *Tracker) now() time.Time {
	if t.Clock != nil {
		return t.Clock()
	}
	return time.Now().UTC()
}
