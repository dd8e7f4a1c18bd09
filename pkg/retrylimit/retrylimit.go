// Package retrylimit throttles and retries calls to external providers.
//
// A Limiter adapts its rate to the responses it sees: it speeds up after
// quiet successes and backs off when the provider answers 429 or 5xx.
// Do wraps a call with the limiter and a bounded exponential backoff that
// never outlives the caller's context.
//
//	lim := retrylimit.NewLimiter(retrylimit.LimiterConfig{Initial: 5, Min: 1, Max: 20})
//	err := retrylimit.Do(ctx, lim, retrylimit.DefaultPolicy(), func(ctx context.Context) error {
//	    return fetch(ctx)
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterConfig describes the bounds of an adaptive limiter, in requests per second.
type LimiterConfig struct {
	Initial  rate.Limit
	Min      rate.Limit
	Max      rate.Limit
	StepUp   rate.Limit
	StepDown float64
	// Cooldown is how long after a throttle response the rate stays put.
	Cooldown time.Duration
}

type Limiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	cfg       LimiterConfig
	lastError time.Time
}

func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.Min <= 0 {
		cfg.Min = 1
	}
	if cfg.Initial < cfg.Min {
		cfg.Initial = cfg.Min
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.StepUp <= 0 {
		cfg.StepUp = 1
	}
	if cfg.StepDown <= 0 || cfg.StepDown >= 1 {
		cfg.StepDown = 0.5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	return &Limiter{
		limiter: rate.NewLimiter(cfg.Initial, max(1, int(cfg.Initial))),
		cfg:     cfg,
	}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

func (l *Limiter) success() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastError) > l.cfg.Cooldown {
		l.setLimit(l.limiter.Limit() + l.cfg.StepUp)
	}
}

func (l *Limiter) throttled() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastError = time.Now()
	l.setLimit(rate.Limit(float64(l.limiter.Limit()) * l.cfg.StepDown))
}

// Limit returns the current rate.
func (l *Limiter) Limit() rate.Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limiter.Limit()
}

func (l *Limiter) setLimit(n rate.Limit) {
	n = min(max(n, l.cfg.Min), l.cfg.Max)
	if n != l.limiter.Limit() {
		l.limiter.SetLimit(n)
		l.limiter.SetBurst(max(1, int(n)))
	}
}

// StatusError is an error carrying the HTTP status a provider answered with.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// WithStatus attaches an HTTP status code to err.
func WithStatus(code int, err error) error {
	if err == nil {
		return nil
	}
	return &StatusError{Code: code, Err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Policy configures Do.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	// Retryable decides whether an error is transient. Nil means
	// RetryOnThrottle.
	Retryable func(error) bool
	OnRetry   func(attempt int, err error, wait time.Duration)
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 300 * time.Millisecond,
		MaxDelay:     3 * time.Second,
		Multiplier:   2,
		Jitter:       true,
		Retryable:    RetryOnThrottle,
	}
}

// RetryOnThrottle retries 429 and 5xx responses.
func RetryOnThrottle(err error) bool {
	code, ok := statusCode(err)
	return ok && (code == http.StatusTooManyRequests || code >= 500 && code < 600)
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. The last error from fn is returned.
func Do(ctx context.Context, lim *Limiter, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Retryable == nil {
		p.Retryable = RetryOnThrottle
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}

	delay := p.InitialDelay
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if lim != nil {
			if werr := lim.Wait(ctx); werr != nil {
				return errors.Join(err, werr)
			}
		}

		err = fn(ctx)
		if err == nil {
			if lim != nil {
				lim.success()
			}
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if code, ok := statusCode(err); ok && lim != nil && (code == http.StatusTooManyRequests || code >= 500) {
			lim.throttled()
		}
		if !p.Retryable(err) || attempt == p.MaxAttempts {
			return err
		}

		wait := delay
		if p.Jitter {
			wait = addJitter(wait)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(wait):
		}

		delay = min(time.Duration(float64(delay)*p.Multiplier), p.MaxDelay)
	}
	return err
}

// addJitter adds up to 25% to delay.
func addJitter(delay time.Duration) time.Duration {
	if delay < 4 {
		return delay
	}
	return delay + rand.N(delay/4)
}

func statusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
