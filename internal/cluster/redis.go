// internal/cluster/redis.go
// Redis-backed Store: pipelined writes, lenient read error handling, and a
// key/set naming convention scoped under "hypha:cluster:". Writes retry with
// jittered backoff (github.com/cenkalti/backoff/v4).
package cluster

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/Voskan/hyphagw/internal/logging"
)

// RedisStore implements Store over a *redis.Client.
type RedisStore struct {
	cli        *redis.Client
	maxRetries uint64
}

// NewRedis returns a Store backed by cli. maxRetries bounds the write retry
// policy; <= 0 uses 3.
func NewRedis(cli *redis.Client, maxRetries int) *RedisStore {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RedisStore{cli: cli, maxRetries: uint64(maxRetries)}
}

func (s *RedisStore) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries), ctx)
	return backoff.Retry(op, policy)
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	err := s.retry(ctx, func() error {
		return s.cli.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		logging.Sugar().Warnw("cluster store set failed", "key", key, "err", err)
	}
	return err
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.cli.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.cli.Del(ctx, key).Err()
}

// AddToSet implements Store: SADD then EXPIRE in one pipeline.
func (s *RedisStore) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	err := s.retry(ctx, func() error {
		pipe := s.cli.Pipeline()
		pipe.SAdd(ctx, key, member)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		logging.Sugar().Warnw("cluster store add-to-set failed", "key", key, "err", err)
	}
	return err
}

// RemoveFromSet implements Store.
func (s *RedisStore) RemoveFromSet(ctx context.Context, key, member string) error {
	return s.cli.SRem(ctx, key, member).Err()
}

// Members implements Store.
func (s *RedisStore) Members(ctx context.Context, key string) ([]string, error) {
	vals, err := s.cli.SMembers(ctx, key).Result()
	if err != nil {
		logging.Sugar().Warnw("cluster store members read failed", "key", key, "err", err)
		return nil, err
	}
	return vals, nil
}

// Publish implements Store.
func (s *RedisStore) Publish(ctx context.Context, channel, payload string) error {
	return s.cli.Publish(ctx, channel, payload).Err()
}

// Subscribe implements Store, delivering messages on their own goroutine
// until ctx is cancelled.
func (s *RedisStore) Subscribe(ctx context.Context, channel string, handler func(payload string)) {
	sub := s.cli.Subscribe(ctx, channel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Payload)
			}
		}
	}()
}
