package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"microlearning-services/internal/domain"
)

// RedisCache реализует domain.Deduper через Redis.
type RedisCache struct {
	client *redis.Client
}

var _ domain.Deduper = (*RedisCache)(nil)

// NewRedis создаёт кэш.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Once выполняет функцию, если ключ ещё не задан, и возвращает признак выполнения.
// При ошибке fn ключ удаляется, чтобы повторная доставка сработала заново.
func (c *RedisCache) Once(key string, ttl time.Duration, fn func() error) (bool, error) {
	ctx := context.Background()
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := fn(); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return true, err
	}
	return true, nil
}
