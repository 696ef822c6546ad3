package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/replysmith/replysmith/internal/core"
)

const redisKeyPrefix = "usage:"

// redisKeyTTL bounds how long an abandoned record lives server-side. Records
// are keyed by day, so anything older than yesterday is dead weight.
const redisKeyTTL = 48 * time.Hour

// admitScript applies the whole fixed-window policy in one round trip so the
// admit is atomic across processes: window reset, per-minute check, daily
// check, joint increment.
//
// KEYS[1]  usage record hash
// ARGV[1]  now in unix milliseconds
// ARGV[2]  daily cap
// ARGV[3]  per-minute cap
// ARGV[4]  key TTL in milliseconds
//
// Reply: {allowed, reason, retry_after_sec, remaining}
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local daily_cap = tonumber(ARGV[2])
local minute_cap = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local fields = redis.call('HMGET', key, 'total', 'window_start', 'minute_count')
local total = tonumber(fields[1]) or 0
local window_start = tonumber(fields[2]) or now
local minute_count = tonumber(fields[3]) or 0

if now - window_start > 60000 then
  window_start = now
  minute_count = 0
end

local left = daily_cap - total
if left < 0 then left = 0 end

if minute_count >= minute_cap then
  local retry = math.ceil((60000 - (now - window_start)) / 1000)
  if retry < 1 then retry = 1 end
  return {0, 'rate_limited', retry, left}
end

if total >= daily_cap then
  return {0, 'daily_cap', 0, 0}
end

total = total + 1
minute_count = minute_count + 1
redis.call('HSET', key, 'total', total, 'window_start', window_start, 'minute_count', minute_count)
redis.call('PEXPIRE', key, ttl)

return {1, '', 0, daily_cap - total}
`)

// RedisStore keeps usage records in Redis so the caps hold across processes.
// The same policy the MemoryStore applies under its mutex runs here as a Lua
// script on the server.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Admit implements engine.UsageStore.
func (s *RedisStore) Admit(ctx context.Context, ip, day string, now time.Time, limits core.Limits) (core.Admission, error) {
	key := redisKeyPrefix + core.UsageKey(ip, day)

	res, err := admitScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(), limits.DailyCap, limits.PerMinuteCap, redisKeyTTL.Milliseconds(),
	).Result()
	if err != nil {
		return core.Admission{}, fmt.Errorf("usage admit script: %w", err)
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) != 4 {
		return core.Admission{}, fmt.Errorf("usage admit script: unexpected reply %v", res)
	}

	adm := core.Admission{
		OK:            asInt(reply[0]) == 1,
		RetryAfterSec: int(asInt(reply[2])),
		Remaining:     int(asInt(reply[3])),
	}
	if reason, ok := reply[1].(string); ok && reason != "" {
		adm.Reason = core.RejectReason(reason)
	}
	return adm, nil
}

// List implements engine.UsageStore by scanning the usage keyspace.
func (s *RedisStore) List(ctx context.Context) ([]core.UsageEntry, error) {
	var entries []core.UsageEntry

	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("usage list: %w", err)
		}
		if len(fields) == 0 {
			continue
		}

		bare := key[len(redisKeyPrefix):]
		_, day := splitKey(bare)

		rec := core.UsageRecord{Day: day}
		rec.Total, _ = strconv.Atoi(fields["total"])
		rec.MinuteCount, _ = strconv.Atoi(fields["minute_count"])
		if ms, err := strconv.ParseInt(fields["window_start"], 10, 64); err == nil {
			rec.MinuteWindowStart = time.UnixMilli(ms).UTC()
		}

		entries = append(entries, core.UsageEntry{Key: bare, Record: rec})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("usage list: %w", err)
	}
	return entries, nil
}

// Reset implements engine.UsageStore.
func (s *RedisStore) Reset(ctx context.Context, ip, day string) error {
	return s.client.Del(ctx, redisKeyPrefix+core.UsageKey(ip, day)).Err()
}

// Ping reports whether the backing Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func asInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}
