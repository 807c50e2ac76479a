// Package retry runs fallible upstream calls under a bounded exponential
// backoff: the wait before retry n (counting from zero) is Base * 2^n, there
// is no jitter and every call gets a fresh budget.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"newsfeed/internal/logger"
)

type Policy struct {
	Retries int
	Base    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Retries: 3, Base: time.Second}
}

type Executor struct {
	policy Policy
	log    *logger.Logger
	timer  backoff.Timer
}

func New(policy Policy, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.Discard()
	}
	return &Executor{policy: policy, log: log}
}

// WithTimer swaps the timer used for waits. A nil timer means real time.
func (e *Executor) WithTimer(t backoff.Timer) *Executor {
	e.timer = t
	return e
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, the retry budget is spent, op returns a
// Permanent error or ctx is done. The last error is returned as is.
func Do[T any](ctx context.Context, e *Executor, op func() (T, error)) (T, error) {
	if e.policy.Retries <= 0 {
		res, err := op()
		return res, unwrapPermanent(err)
	}

	attempt := 0
	notify := func(err error, wait time.Duration) {
		attempt++
		e.log.Warn("attempt failed, retrying",
			"attempt", attempt,
			"retries", e.policy.Retries,
			"wait", wait,
			"error", err,
		)
	}

	return backoff.RetryNotifyWithTimerAndData[T](op, e.backOff(ctx), notify, e.timer)
}

func (e *Executor) backOff(ctx context.Context) backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     e.policy.Base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(math.MaxInt64),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(e.policy.Retries)), ctx)
}

func unwrapPermanent(err error) error {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}
