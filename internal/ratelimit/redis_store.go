package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "snipwise:ratelimit:"

// takeScript refills and consumes atomically. Bucket state lives in a hash
// {tokens, ts}; ts is in milliseconds and supplied by the caller.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now
if now > ts then
	tokens = math.min(capacity, tokens + (now - ts) / 1000 * rate)
end

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', now)
redis.call('PEXPIRE', key, ttl)
return {allowed, tostring(tokens)}
`)

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps buckets in Redis so that several daemons share limits.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisStoreWithClient(client, opts.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// Take consumes one token from key's bucket.
func (s *RedisStore) Take(ctx context.Context, key string, capacity, refillRate float64) (Decision, error) {
	ttl := bucketTTL(capacity, refillRate)
	res, err := takeScript.Run(ctx, s.client, []string{s.prefix + key},
		capacity, refillRate, s.now().UnixMilli(), ttl.Milliseconds()).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("redis take %s: %w", key, err)
	}
	allowed, tokens, err := parseTakeResult(res)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:    allowed,
		Limit:      capacity,
		Remaining:  tokens,
		ResetAfter: fullAfter(capacity, tokens, refillRate),
	}, nil
}

// Reset deletes key's bucket.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// bucketTTL keeps state around for twice the time a drained bucket needs to refill.
func bucketTTL(capacity, refillRate float64) time.Duration {
	ttl := 2 * fullAfter(capacity, 0, refillRate)
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

func parseTakeResult(res any) (bool, float64, error) {
	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return false, 0, fmt.Errorf("redis take: unexpected reply %v", res)
	}
	flag, ok := vals[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("redis take: unexpected allowed flag %v", vals[0])
	}
	raw, ok := vals[1].(string)
	if !ok {
		return false, 0, fmt.Errorf("redis take: unexpected token count %v", vals[1])
	}
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false, 0, fmt.Errorf("redis take: parse token count: %w", err)
	}
	return flag == 1, tokens, nil
}
