package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config экспоненциальный backoff с jitter:
// delay = min(InitialDelay * Multiplier^attempt, MaxDelay) ± jitter
//
// Повторяются только идемпотентные запросы: чтение стакана, статус ордера,
// балансы, отмена. Размещение ордера не повторяется никогда.
type Config struct {
	// MaxRetries максимум попыток, включая первую. 0 = DefaultConfig
	MaxRetries int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// JitterFactor 0.0 - 1.0, доля случайной вариации задержки
	JitterFactor float64

	// RetryIf nil = повторять все ошибки
	RetryIf func(error) bool

	// OnRetry вызывается перед ожиданием, для логирования
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig REST запросы площадок: 100ms, 200ms, 400ms
func DefaultConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// BalanceConfig обновление балансов вне горячего пути: 500ms, 1s
func BalanceConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

func (c *Config) validate() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultConfig().MaxRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

func (c *Config) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		d += d * c.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// DoWithResult выполняет операцию с повторами.
// Возвращает последнюю ошибку операции; отмена контекста во время
// ожидания тоже отдаёт последнюю ошибку операции, а не ctx.Err().
//
//	body, err := retry.DoWithResult(ctx, func() ([]byte, error) {
//	    return client.get(ctx, "/api/v3/depth")
//	}, retry.DefaultConfig())
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	cfg.validate()

	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}
		if attempt == cfg.MaxRetries-1 {
			break
		}

		d := cfg.delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, d)
		}

		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// Do вариант без результата
func Do(ctx context.Context, operation func() error, cfg Config) error {
	_, err := DoWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, cfg)
	return err
}

// RetryIfTemporary повторяет только ошибки с Temporary() == true
// (обрыв соединения, 5xx, 429). Бизнес-ошибки площадки не повторяются.
func RetryIfTemporary(err error) bool {
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return false
}
