package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter интерфейс для ограничения частоты запросов
type RateLimiter interface {
	// CheckRateLimit проверяет лимит для заданного ключа
	// Возвращает true, если лимит превышен
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RedisRateLimiter реализация RateLimiter с использованием Redis.
// Счетчик фиксированного окна: INCR и EXPIRE в одной транзакции.
type RedisRateLimiter struct {
	client redis.Cmdable
	prefix string
}

// NewRedisRateLimiter создает новый экземпляр RedisRateLimiter
func NewRedisRateLimiter(client redis.Cmdable, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// Key возвращает ключ Redis для заданного идентификатора
func (r *RedisRateLimiter) Key(key string) string {
	return fmt.Sprintf("%s:%s", r.prefix, key)
}

// CheckRateLimit увеличивает счетчик для ключа и сообщает, превышен ли лимит.
// limit <= 0 отключает ограничение.
func (r *RedisRateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	redisKey := r.Key(key)

	tx := r.client.TxPipeline()
	incr := tx.Incr(ctx, redisKey)
	// TTL выставляется только при создании счетчика, окно не продлевается
	tx.ExpireNX(ctx, redisKey, window)

	if _, err := tx.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to execute rate limit transaction: %w", err)
	}

	return incr.Val() > int64(limit), nil
}

// Reset удаляет счетчик для ключа
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.Key(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}
	return nil
}
