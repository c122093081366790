package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

// TestWithRetry_EventualSuccess проверяет успех после неудачных попыток
func TestWithRetry_EventualSuccess(t *testing.T) {
	calls := 0
	var notified []int

	err := WithRetryNotify(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		notified = append(notified, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, notified)
}

// TestWithRetry_Exhausted проверяет ошибку после исчерпания попыток
func TestWithRetry_Exhausted(t *testing.T) {
	cause := errors.New("broker down")
	calls := 0

	err := WithRetry(context.Background(), fastConfig(2), func(ctx context.Context) error {
		calls++
		return cause
	})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 2, calls)
}

// TestWithRetry_Permanent проверяет остановку на неповторяемой ошибке
func TestWithRetry_Permanent(t *testing.T) {
	cause := errors.New("access refused")
	calls := 0

	err := WithRetry(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		return Permanent(cause)
	})

	assert.Equal(t, cause, err)
	assert.Equal(t, 1, calls)
	assert.Nil(t, Permanent(nil))
}

// TestWithRetry_Cancelled проверяет выход по отмене контекста
func TestWithRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	err := WithRetry(ctx, config, func(ctx context.Context) error {
		cancel()
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

// TestCalculateDelay проверяет рост и ограничение задержки
func TestCalculateDelay(t *testing.T) {
	config := RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, calculateDelay(1, config))
	assert.Equal(t, 2*time.Second, calculateDelay(2, config))
	assert.Equal(t, 4*time.Second, calculateDelay(3, config))
	assert.Equal(t, 5*time.Second, calculateDelay(4, config))

	config.Jitter = true
	for i := 0; i < 100; i++ {
		delay := calculateDelay(1, config)
		assert.GreaterOrEqual(t, delay, 750*time.Millisecond)
		assert.LessOrEqual(t, delay, 1250*time.Millisecond)
	}
}
