package redis

import (
	"campusgate/internal/storage"
	"campusgate/pkg/client/redis"
	"context"
	"errors"
	"fmt"
	redis2 "github.com/redis/go-redis/v9"
)

type repositoryRedis struct {
	Client    redis.Client
	Namespace string
}

// NewRepositoryRedis stores every key under "<namespace>:<key>" so several
// installations can share one redis.
func NewRepositoryRedis(client redis.Client, namespace string) storage.KV {
	return &repositoryRedis{Client: client, Namespace: namespace}
}

func (r *repositoryRedis) key(k string) string {
	if r.Namespace == "" {
		return fmt.Sprintf("storage:%s", k)
	}
	return fmt.Sprintf("storage:%s:%s", r.Namespace, k)
}

func (r *repositoryRedis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.Client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis2.Nil) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (r *repositoryRedis) Set(ctx context.Context, key string, value string) error {
	if err := r.Client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// MultiSet relies on MSET being atomic.
func (r *repositoryRedis) MultiSet(ctx context.Context, pairs []storage.Pair) error {
	if len(pairs) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(pairs)*2)
	for _, p := range pairs {
		values = append(values, r.key(p.Key), p.Value)
	}

	if err := r.Client.MSet(ctx, values...).Err(); err != nil {
		return fmt.Errorf("redis mset: %w", err)
	}
	return nil
}

func (r *repositoryRedis) MultiRemove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, r.key(k))
	}

	err := r.Client.Del(ctx, full...).Err()
	if err != nil && !errors.Is(err, redis2.Nil) {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
