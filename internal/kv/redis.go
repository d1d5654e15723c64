package kv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/embr/internal/metrics"
)

// RedisStore implements Store over a Redis connection.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, mapErr(err)
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying connection for components that need raw
// Redis features (pub/sub, rate limiting).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return mapErr(s.client.Ping(ctx).Err())
}

// SetHash sets fields on a hash.
func (s *RedisStore) SetHash(ctx context.Context, key string, fields map[string]string) error {
	defer observe(time.Now())
	args := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		args[k] = v
	}
	return mapErr(s.client.HSet(ctx, key, args).Err())
}

// GetHashField reads one hash field.
func (s *RedisStore) GetHashField(ctx context.Context, key, field string) (string, bool, error) {
	defer observe(time.Now())
	val, err := s.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapErr(err)
	}
	return val, true, nil
}

// GetTTL returns the remaining TTL in seconds, or NoTTL for a missing key or
// a key without expiry. Redis reports -1 (no expiry) and -2 (no key); both
// collapse to the NoTTL sentinel here.
func (s *RedisStore) GetTTL(ctx context.Context, key string) (int64, error) {
	defer observe(time.Now())
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return NoTTL, mapErr(err)
	}
	if d < 0 {
		return NoTTL, nil
	}
	return int64(d.Seconds()), nil
}

// SetTTL sets the key's TTL in seconds.
func (s *RedisStore) SetTTL(ctx context.Context, key string, seconds int64) error {
	defer observe(time.Now())
	return mapErr(s.client.Expire(ctx, key, time.Duration(seconds)*time.Second).Err())
}

// Exists reports whether the key exists.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	defer observe(time.Now())
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, mapErr(err)
	}
	return n > 0, nil
}

// AppendToList appends a value to the tail of the list at key.
func (s *RedisStore) AppendToList(ctx context.Context, key string, value []byte) error {
	defer observe(time.Now())
	return mapErr(s.client.RPush(ctx, key, value).Err())
}

// ReadListRange returns list elements in insertion order.
func (s *RedisStore) ReadListRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	defer observe(time.Now())
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// DeleteKey removes the key.
func (s *RedisStore) DeleteKey(ctx context.Context, key string) error {
	defer observe(time.Now())
	return mapErr(s.client.Del(ctx, key).Err())
}

func observe(start time.Time) {
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
}

// mapErr translates transport failures into the store error taxonomy.
// redis.Nil never reaches here; callers handle it as "not found".
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, redis.ErrClosed), errors.As(err, new(*net.OpError)):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
