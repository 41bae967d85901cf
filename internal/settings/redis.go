package settings

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "chatsync:settings:"

type redisBackend struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) Backend {
	return &redisBackend{client: client}
}

func (b *redisBackend) Get(ctx context.Context, key string) (string, error) {
	value, err := b.client.Get(ctx, redisPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return value, nil
}

func (b *redisBackend) Set(ctx context.Context, key string, value string) error {
	return b.client.Set(ctx, redisPrefix+key, value, 0).Err()
}

func (b *redisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, redisPrefix+key).Err()
}

func (b *redisBackend) Close() error {
	return b.client.Close()
}
