package buffer

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the slice of go-redis surface the buffer filter
// touches. *redis.Client satisfies it; tests substitute a fake built on
// go-redis's NewIntResult/NewStringSliceResult constructors.
type RedisClient interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
	SPopN(ctx context.Context, key string, count int64) *redis.StringSliceCmd
	IncrByFloat(ctx context.Context, key string, value float64) *redis.FloatCmd
	GetSet(ctx context.Context, key string, value interface{}) *redis.StringCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// NewRedisClient connects over the Unix socket named by
// redis_socket_path, the same way the alert manager does.
func NewRedisClient(socketPath string) *redis.Client {
	return redis.NewClient(&redis.Options{Network: "unix", Addr: socketPath})
}

// Store wraps a RedisClient with the typed operations the connectors
// invoke, returning plain values instead of command objects.
type Store struct {
	client  RedisClient
	timeout time.Duration
}

// NewStore builds a Store over client. A zero timeout defaults to 2s.
func NewStore(client RedisClient, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Store{client: client, timeout: timeout}
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// AddEntry SADDs entry into the set named by list.
func (s *Store) AddEntry(list, entry string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.SAdd(ctx, list, entry).Err()
}

// SetLen returns the cardinality of the set named by list.
func (s *Store) SetLen(list string) (int64, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.SCard(ctx, list).Result()
}

// PopLogs SPOPs up to count members from the set named by list.
func (s *Store) PopLogs(list string, count int64) ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.SPopN(ctx, list, count).Result()
}

// IncrByFloat increments the counter key by value.
func (s *Store) IncrByFloat(key string, value float64) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.IncrByFloat(ctx, key, value).Err()
}

// GetSetZero atomically reads the counter key and resets it to 0. A
// missing key reads as "0".
func (s *Store) GetSetZero(key string) (string, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	val, err := s.client.GetSet(ctx, key, "0").Result()
	if err == redis.Nil {
		return "0", nil
	}
	return val, err
}

// CounterValue reads the counter key as a rounded absolute integer; a
// missing key reads as 0.
func (s *Store) CounterValue(key string) (int64, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return -1, err
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, nil
	}
	if f < 0 {
		f = -f
	}
	return int64(f + 0.5), nil
}

// SetExpiry sets a TTL on key, purging stale aggregation state when
// threads or filters stop.
func (s *Store) SetExpiry(key string, ttl time.Duration) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Expire(ctx, key, ttl).Err()
}
