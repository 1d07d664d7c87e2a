package credentials

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "walletclient:credentials:"

// RedisBackend stores the record as a plain string value.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend builds a backend storing under walletclient:credentials:<key>.
func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	return &RedisBackend{client: client, key: redisKeyPrefix + key}
}

func (b *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	raw, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (b *RedisBackend) Save(ctx context.Context, payload []byte) error {
	return b.client.Set(ctx, b.key, payload, 0).Err()
}

func (b *RedisBackend) Delete(ctx context.Context) error {
	return b.client.Del(ctx, b.key).Err()
}
