/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DefaultFallbackDelay bounds admission when a response carried no usable quota data.
// Until the next successful observation, grants are spaced by this interval.
const DefaultFallbackDelay = 5 * time.Second

// minRetryDelay prevents busy re-arming of the grant timer on tiny waits.
const minRetryDelay = 10 * time.Millisecond

// Admission is the minimal capability needed to pace requests against one remote quota.
// *Limiter, *AuthLimiter and *TelegramLimiter implement it.
type Admission interface {
	// Acquire suspends the caller until the request may be sent.
	Acquire(ctx context.Context) error

	// Observe feeds a response's status code and headers back into the limiter.
	Observe(statusCode int, header http.Header)
}

// Opts represents options for NewLimiterWithOpts.
type Opts struct {
	// Extractor maps response headers to quota data. DefaultQuotaExtractor by default.
	Extractor QuotaExtractor

	// Ceiling is a client-side limit applied in addition to the remote-advertised quota.
	// It guards against bursts sent before the first response has ever been observed.
	// No ceiling is applied when nil.
	Ceiling Ceiling

	// FallbackDelay is the grant spacing used while quota data is unusable.
	// DefaultFallbackDelay by default.
	FallbackDelay time.Duration

	// Listener receives limiter signals. NopListener by default.
	Listener Listener
}

// Limiter decides when an outbound request may be sent so that the remote-advertised
// quota is never exceeded. Grants are strictly serialized and issued in arrival order.
// Arbitrarily many goroutines may call Acquire concurrently; all shared state is owned
// by a single lock-protected admission authority.
type Limiter struct {
	mu      sync.Mutex
	waiters []*waiter
	timer   *time.Timer

	// quota is nil until the first observed response and replaced as a unit afterwards.
	quota          *quotaState
	throttledUntil time.Time

	extract       QuotaExtractor
	ceiling       Ceiling
	fallbackDelay time.Duration
	listener      Listener

	now func() time.Time
}

type waiter struct {
	ready chan struct{}
}

// NewLimiter creates a new Limiter with default options.
func NewLimiter() *Limiter {
	return NewLimiterWithOpts(Opts{})
}

// NewLimiterWithOpts creates a new Limiter with the specified options.
func NewLimiterWithOpts(opts Opts) *Limiter {
	if opts.Extractor == nil {
		opts.Extractor = DefaultQuotaExtractor
	}
	if opts.FallbackDelay <= 0 {
		opts.FallbackDelay = DefaultFallbackDelay
	}
	if opts.Listener == nil {
		opts.Listener = NopListener{}
	}
	return &Limiter{
		extract:       opts.Extractor,
		ceiling:       opts.Ceiling,
		fallbackDelay: opts.FallbackDelay,
		listener:      opts.Listener,
		now:           time.Now,
	}
}

// Acquire suspends the caller until its request may be sent.
// Grants are issued in first-arrived, first-granted order, and the remaining quota
// belief is decremented at grant time so concurrently queued callers see an accurate
// countdown without waiting for round-trip completion.
//
// Cancelling the context removes the caller from the queue without touching
// quota, throttle or pacing state.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &AcquireCanceledError{Inner: err}
	}

	w := &waiter{ready: make(chan struct{})}
	start := l.now()

	l.mu.Lock()
	l.waiters = append(l.waiters, w)
	l.grantLocked()
	l.mu.Unlock()

	select {
	case <-w.ready:
		l.listener.OnGrant(l.now().Sub(start))
		return nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	select {
	case <-w.ready:
		// The grant raced the cancellation and won; the slot is already consumed.
		l.mu.Unlock()
		l.listener.OnGrant(l.now().Sub(start))
		return nil
	default:
	}
	l.removeLocked(w)
	l.grantLocked()
	l.mu.Unlock()

	return &AcquireCanceledError{Inner: ctx.Err()}
}

// Observe extracts quota data from the passed response status code and headers
// and atomically replaces the limiter's quota belief. A throttling response sets
// an override that dominates any optimistic belief left over from decremented
// remaining counts. Malformed quota data falls back to conservative serialization.
func (l *Limiter) Observe(statusCode int, header http.Header) {
	now := l.now()
	q, err := l.extract(statusCode, header)

	var notify []func()
	l.mu.Lock()
	if err != nil {
		l.quota = &quotaState{remaining: 0, resetAt: now.Add(l.fallbackDelay), seenAt: now}
		notify = append(notify, func() { l.listener.OnMalformedQuota(err) })
	} else {
		l.quota = &quotaState{remaining: q.Remaining, resetAt: now.Add(q.ResetIn), seenAt: now}
		if q.RetryIn > 0 {
			l.throttledUntil = now.Add(q.RetryIn)
			retryAt := l.throttledUntil
			notify = append(notify, func() { l.listener.OnThrottled(retryAt) })
		}
	}
	l.grantLocked()
	l.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// NextAllowed reports the earliest time the next request may be granted,
// ignoring callers already queued. Exposed for observability.
func (l *Limiter) NextAllowed() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextAllowedLocked(l.now())
}

// grantLocked issues grants to queued waiters in FIFO order until the head waiter
// is not yet admissible, then arms the grant timer for the remaining wait.
// It is the only place admission decisions are computed.
func (l *Limiter) grantLocked() {
	for len(l.waiters) > 0 {
		now := l.now()
		w := l.waiters[0]

		next := l.nextAllowedLocked(now)
		if next.After(now) {
			l.armLocked(next.Sub(now))
			return
		}
		if l.ceiling != nil {
			if ok, retryAfter := l.ceiling.Allow(now); !ok {
				l.armLocked(retryAfter)
				return
			}
		}

		l.waiters = l.waiters[1:]
		if l.quota != nil && l.quota.remaining > 0 {
			l.quota.remaining--
		}
		close(w.ready)
	}

	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Limiter) nextAllowedLocked(now time.Time) time.Time {
	next := now
	if l.throttledUntil.After(next) {
		next = l.throttledUntil
	}
	if q := l.quota; q != nil && q.remaining <= 0 && q.resetAt.After(next) {
		next = q.resetAt
	}
	return next
}

func (l *Limiter) armLocked(d time.Duration) {
	if d < minRetryDelay {
		d = minRetryDelay
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(d, l.dispatch)
}

func (l *Limiter) dispatch() {
	l.mu.Lock()
	l.timer = nil
	l.grantLocked()
	l.mu.Unlock()
}

func (l *Limiter) removeLocked(w *waiter) {
	for i, qw := range l.waiters {
		if qw == w {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}

// AcquireCanceledError is returned by Acquire when the wait is cancelled.
// The cancelled wait leaves quota, throttle and pacing state untouched.
type AcquireCanceledError struct {
	Inner error
}

func (e *AcquireCanceledError) Error() string {
	return fmt.Sprintf("acquire admission: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *AcquireCanceledError) Unwrap() error {
	return e.Inner
}
