package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"SiteAuthPlatform/pkg/connection"
	"SiteAuthPlatform/pkg/logger"
	"SiteAuthPlatform/pkg/rabbitmq"
)

// MockRateLimiter имитирует pkg/ratelimit.RateLimiter
type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

// MockLogger имитирует pkg/logger.Logger.
// With возвращает тот же мок, поэтому ожидания задаются на одном объекте.
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, fields ...logger.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) Info(msg string, fields ...logger.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) Warn(msg string, fields ...logger.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) Error(msg string, fields ...logger.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) With(fields ...logger.Field) logger.Logger {
	return m
}

func (m *MockLogger) Sync() error {
	args := m.Called()
	return args.Error(0)
}

// MockPublisher имитирует pkg/rabbitmq.Producer
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishWithRetry(ctx context.Context, body []byte, retry connection.RetryConfig, options ...rabbitmq.PublishOption) error {
	args := m.Called(ctx, body, retry, options)
	return args.Error(0)
}
