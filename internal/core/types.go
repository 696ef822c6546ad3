package core

import "time"

// UnknownIP is the shared bucket for requests that carry no usable client
// address headers. It partitions rate-limit state only and is never an
// authorization decision.
const UnknownIP = "unknown"

// RejectReason identifies why an admission was refused.
type RejectReason string

const (
	ReasonRateLimited RejectReason = "rate_limited"
	ReasonDailyCap    RejectReason = "daily_cap"
)

// Limits carries the per-IP admission policy.
type Limits struct {
	DailyCap     int
	PerMinuteCap int
}

// DefaultLimits matches the deployed policy: 20 requests per IP per UTC day,
// 6 per fixed 60-second window.
var DefaultLimits = Limits{DailyCap: 20, PerMinuteCap: 6}

// UsageRecord tracks one client's consumption for a single UTC day.
// Exactly one live record exists per (ip, day) pair; a record for a stale day
// is discarded and replaced on next access, never rolled forward.
type UsageRecord struct {
	Day               string    `json:"day"`
	Total             int       `json:"total"`
	MinuteWindowStart time.Time `json:"minute_window_start"`
	MinuteCount       int       `json:"minute_count"`
}

// UsageEntry pairs a store key with its record for inspection surfaces.
type UsageEntry struct {
	Key    string      `json:"key"`
	Record UsageRecord `json:"record"`
}

// Admission is the outcome of counting one request against quota.
// Remaining reports the daily budget left after the decision.
type Admission struct {
	OK            bool
	Reason        RejectReason
	RetryAfterSec int
	Remaining     int
}

// DayKey formats the UTC calendar day used to partition usage records.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// UsageKey builds the store key for an identity on a given day.
func UsageKey(ip, day string) string {
	return ip + ":" + day
}
