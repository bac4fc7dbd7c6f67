package redisstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"quiz-runner/internal/progress"
)

var _ progress.Backend = (*RedisStore)(nil)

// RedisStore is a progress.Backend for setups where several runner
// processes share one attempt.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse Redis URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping Redis")
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	found := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "mget progress entries")
	}

	for idx, value := range values {
		if text, ok := value.(string); ok {
			found[keys[idx]] = text
		}
	}
	return found, nil
}

// Apply runs the mutation inside MULTI/EXEC.
func (r *RedisStore) Apply(ctx context.Context, m progress.Mutation) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(m.Delete) > 0 {
			pipe.Del(ctx, m.Delete...)
		}
		for key, value := range m.Set {
			pipe.Set(ctx, key, value, 0)
		}
		return nil
	})
	return errors.Wrap(err, "apply progress mutation")
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
