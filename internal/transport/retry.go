package transport

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1000 * time.Millisecond
)

// Policy bounds the physical attempts of one logical call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy returns three attempts with a 1s delay doubling after each
// retryable failure.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	return p
}

// Delay returns the pause taken after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(1<<(attempt-1))
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Operation is one physical attempt. Errors that are not ClassifiedError are
// treated as network faults.
type Operation func(ctx context.Context, attempt int) error

// Retry runs op until it succeeds, returns a terminal classification, or the
// policy's attempts are used up. The returned error is always a
// *ClassifiedError unless ctx ended the loop.
func Retry(ctx context.Context, policy Policy, sleep SleepFunc, logger *zerolog.Logger, op Operation) error {
	policy = policy.normalized()
	if sleep == nil {
		sleep = Sleep
	}
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}

	var last *ClassifiedError
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
		}
		ce, ok := AsClassified(err)
		if !ok {
			ce = NewNetworkError(err)
		}
		last = ce

		event := logger.Warn().
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Str("error_type", string(ce.Type)).
			Int("status", ce.StatusCode).
			Bool("network", ce.Network)
		if !ce.Retryable() {
			event.Msg("transport: terminal failure")
			return ce
		}
		if attempt == policy.MaxAttempts {
			event.Msg("transport: attempts exhausted")
			break
		}
		delay := policy.Delay(attempt)
		event.Dur("delay", delay).Msg("transport: retrying")
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return last
}
