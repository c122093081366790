package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"SiteAuthPlatform/pkg/config"
)

// Client представляет подключение к Redis
type Client struct {
	Client *redis.Client
}

// Config представляет конфигурацию Redis
type Config struct {
	Addr     string
	Password string
	DB       int
	// Пул соединений
	PoolSize    int
	MinIdleConn int
	// Повторные попытки
	MaxRetries    int
	RetryInterval time.Duration
	// Максимальное время простоя соединения в пуле
	HealthCheck time.Duration
}

// NewConfig создает конфигурацию по умолчанию
func NewConfig() *Config {
	return &Config{
		Addr:          "localhost:6379",
		Password:      "",
		DB:            0,
		PoolSize:      10,
		MinIdleConn:   2,
		MaxRetries:    3,
		RetryInterval: 1 * time.Second,
		HealthCheck:   30 * time.Second,
	}
}

// FromAppConfig строит конфигурацию клиента из секции redis
func FromAppConfig(cfg config.RedisConfig) *Config {
	result := NewConfig()
	if cfg.Addr != "" {
		result.Addr = cfg.Addr
	}
	result.Password = cfg.Password
	result.DB = cfg.DB
	if cfg.PoolSize > 0 {
		result.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConn > 0 {
		result.MinIdleConn = cfg.MinIdleConn
	}
	if cfg.MaxRetries >= 0 {
		result.MaxRetries = cfg.MaxRetries
	}
	result.RetryInterval = cfg.RetryIntervalDuration()
	if healthCheck, err := time.ParseDuration(cfg.HealthCheck); err == nil && healthCheck > 0 {
		result.HealthCheck = healthCheck
	}
	return result
}

// Options возвращает опции go-redis для конфигурации
func (c *Config) Options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConn,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		// Соединения, простаивающие дольше, закрываются
		ConnMaxIdleTime: c.HealthCheck,
	}
}

// Connect устанавливает подключение к Redis с retry логикой
func Connect(ctx context.Context, cfg *Config) (*Client, error) {
	var lastErr error

	for i := 0; i <= cfg.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("redis connect cancelled: %w", ctx.Err())
			case <-time.After(cfg.RetryInterval):
			}
		}

		client := redis.NewClient(cfg.Options())
		if err := client.Ping(ctx).Err(); err != nil {
			lastErr = fmt.Errorf("failed to ping redis: %w", err)
			client.Close()
			continue
		}

		return &Client{Client: client}, nil
	}

	return nil, fmt.Errorf("failed to connect to redis after %d retries: %w", cfg.MaxRetries, lastErr)
}

// Close закрывает подключение к Redis
func (r *Client) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// HealthCheck проверяет состояние подключения к Redis
func (r *Client) HealthCheck(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}
