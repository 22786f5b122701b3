package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wardenhq/warden/internal/decision"
)

// Redis backs the verdict cache with a shared Redis instance, so concurrent
// WAF replicas see each other's verdicts.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ VerdictCache = (*Redis)(nil)

// NewRedis connects using a redis:// URL and verifies the connection.
func NewRedis(url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context, fingerprint string) (decision.Decision, bool, error) {
	raw, err := r.client.Get(ctx, verdictKey(fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return decision.Decision{}, false, nil
	}
	if err != nil {
		return decision.Decision{}, false, fmt.Errorf("redis get: %w", err)
	}

	d, err := decision.Unmarshal([]byte(raw))
	if err != nil {
		// A corrupt cached value is treated as a miss.
		return decision.Decision{}, false, fmt.Errorf("decode cached verdict: %w", err)
	}
	return d, true, nil
}

func (r *Redis) Put(ctx context.Context, fingerprint string, d decision.Decision, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}

	data, err := d.Marshal()
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}

	if err := r.client.Set(ctx, verdictKey(fingerprint), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
