package ledger

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// RedisStore persists ledger state in Redis. Writes for one ledger go
// through a MULTI/EXEC pipeline so the balance key and the history key
// cannot diverge on a partial failure.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *RedisStore) SaveAll(ctx context.Context, entries map[string][]byte) error {
	pipe := s.client.TxPipeline()
	for key, val := range entries {
		pipe.Set(ctx, key, val, 0)
	}
	_, err := pipe.Exec(ctx)
	return err
}
