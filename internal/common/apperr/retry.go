package apperr

import (
	"context"
	"errors"
	"time"
)

// RetryableError помечает временный сбой (сеть, 5xx), который имеет
// смысл повторить.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable оборачивает err в RetryableError. nil остаётся nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable сообщает, помечена ли ошибка как временная.
func IsRetryable(err error) bool {
	return errors.As(err, new(*RetryableError))
}

// Retry выполняет fn до attempts раз. Повторяются только ошибки,
// обёрнутые Retryable; задержка удваивается после каждой попытки.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var lastErr error

	for i := range attempts {
		if err := fn(); err == nil {
			return nil
		} else if lastErr = err; !IsRetryable(err) {
			return err
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return lastErr
}
