package download

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfstream/shelfstream/internal/books"
)

// RetryConfig configures the exponential backoff retry behavior.
type RetryConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Multiplier   float64
}

// DefaultRetryConfig returns sensible defaults for download retry.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  3,
		Multiplier:   2.0,
	}
}

// withRetry executes fn with exponential backoff for network errors only.
// Auth, descriptor and policy errors fail immediately without retry.
func withRetry(ctx context.Context, name string, cfg RetryConfig, fn func() error, logger zerolog.Logger) error {
	var lastErr error
	delay := cfg.InitialDelay

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().Str("operation", name).Int("attempt", attempt).Msg("operation succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !books.IsNetworkError(err) {
			return err
		}

		if attempt == attempts {
			break
		}

		logger.Warn().
			Err(err).
			Str("operation", name).
			Int("attempt", attempt).
			Int("maxAttempts", attempts).
			Dur("nextRetryIn", delay).
			Msg("network error, will retry")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	logger.Error().Err(lastErr).Str("operation", name).Int("attempts", attempts).
		Msg("operation failed after all retries")
	return lastErr
}
