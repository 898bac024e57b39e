package usage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	counterKeyPrefix = "crm:usage:"

	// CounterRetention keeps a period's counters readable for a while
	// after the period closes, for reporting.
	CounterRetention = 35 * 24 * time.Hour
)

// checkAndIncrScript applies INCRBY only if the result stays within the
// limit. ARGV: delta, limit (-1 for unlimited), expire-at unix seconds (0 for
// none). Returns {value, applied}.
var checkAndIncrScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local delta = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
if limit >= 0 and current + delta > limit then
	return {current, 0}
end
local value = redis.call('INCRBY', KEYS[1], delta)
local expireAt = tonumber(ARGV[3])
if expireAt > 0 then
	redis.call('EXPIREAT', KEYS[1], expireAt)
end
return {value, 1}
`)

// RedisCounterStore keeps counters in Redis so every instance shares them.
// Periodic counters expire on their own CounterRetention after the period
// ends; Purge removes them eagerly.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore creates a store on client.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func redisCounterKey(k Key) string {
	return counterKeyPrefix + k.String()
}

func expireAt(k Key) time.Time {
	if k.Period.IsZero() {
		return time.Time{}
	}
	return k.Period.End().Add(CounterRetention)
}

func (s *RedisCounterStore) Get(ctx context.Context, key Key) (int64, error) {
	v, err := s.client.Get(ctx, redisCounterKey(key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get usage counter %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisCounterStore) Increment(ctx context.Context, key Key, delta int64) (int64, error) {
	rk := redisCounterKey(key)

	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, rk, delta)
	if at := expireAt(key); !at.IsZero() {
		pipe.ExpireAt(ctx, rk, at)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment usage counter %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (s *RedisCounterStore) CheckAndIncrement(ctx context.Context, key Key, delta int64, limit Limit) (int64, bool, error) {
	ceiling := int64(-1)
	if n, ok := limit.Value(); ok {
		ceiling = n
	}
	var at int64
	if t := expireAt(key); !t.IsZero() {
		at = t.Unix()
	}

	res, err := checkAndIncrScript.Run(ctx, s.client, []string{redisCounterKey(key)}, delta, ceiling, at).Slice()
	if err != nil {
		return 0, false, fmt.Errorf("check and increment usage counter %s: %w", key, err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("check and increment usage counter %s: unexpected reply %v", key, res)
	}
	value, _ := res[0].(int64)
	applied, _ := res[1].(int64)
	return value, applied == 1, nil
}

func (s *RedisCounterStore) Set(ctx context.Context, key Key, value int64) error {
	if err := s.client.Set(ctx, redisCounterKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set usage counter %s: %w", key, err)
	}
	return nil
}

func (s *RedisCounterStore) Purge(ctx context.Context, before Period) (int, error) {
	var stale []string
	iter := s.client.Scan(ctx, 0, counterKeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		idx := strings.LastIndex(k, ":")
		if idx < 0 {
			continue
		}
		p, err := ParsePeriod(k[idx+1:])
		if err != nil {
			// gauge keys end in the metric name
			continue
		}
		if p.Before(before) {
			stale = append(stale, k)
		}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan usage counters: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := s.client.Del(ctx, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("purge usage counters: %w", err)
	}
	return int(n), nil
}

var _ CounterStore = (*RedisCounterStore)(nil)
