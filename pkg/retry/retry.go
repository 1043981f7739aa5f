// Package retry waits for backing services that start after the dashboard,
// such as the Redis token store. Authenticated API calls are never retried.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Config describes an exponential backoff schedule.
type Config struct {
	// MaxAttempts counts the first call. Zero retries until ctx is done.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter spreads each wait by +/- this fraction.
	Jitter float64

	// OnRetry runs after a failed attempt, before the wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// StartupConfig is the schedule used while the dashboard boots.
func StartupConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

func (c Config) withDefaults() Config {
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2.0
	}
	return c
}

// Delay returns the un-jittered wait after the given failed attempt.
func (c Config) Delay(attempt int) time.Duration {
	c = c.withDefaults()
	d := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= c.Multiplier
		if d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	return time.Duration(d)
}

func (c Config) wait(attempt int) time.Duration {
	d := c.Delay(attempt)
	if c.Jitter <= 0 {
		return d
	}
	spread := float64(d) * c.Jitter
	return d + time.Duration(rand.Float64()*2*spread-spread)
}

func (c Config) exhausted(attempt int) bool {
	return c.MaxAttempts > 0 && attempt >= c.MaxAttempts
}

// Do calls fn until it succeeds, attempts run out, or ctx is done.
// The last error from fn is always part of the returned error.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, lastErr)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if cfg.exhausted(attempt) {
			return lastErr
		}

		wait := cfg.wait(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
}
