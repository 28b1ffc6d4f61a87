/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
	"golang.org/x/time/rate"
)

// Rate describes the frequency of requests.
type Rate struct {
	Count    int
	Duration time.Duration
}

// DefaultAPIRate is the documented request allowance of the NationStates API.
var DefaultAPIRate = Rate{Count: 50, Duration: 30 * time.Second}

// Ceiling is a client-side request frequency limit applied in addition to the
// remote-advertised quota. It protects the remote API from bursts issued before
// any response (and therefore any quota data) has been observed.
//
// Allow is called under the admission lock and must not block.
type Ceiling interface {
	Allow(now time.Time) (ok bool, retryAfter time.Duration)
}

// Ceiling algorithms.
const (
	CeilingAlgTokenBucket   = "token_bucket"
	CeilingAlgSlidingWindow = "sliding_window"
	CeilingAlgLeakyBucket   = "leaky_bucket"
)

// NewCeiling creates a ceiling using the named algorithm.
func NewCeiling(alg string, maxRate Rate, maxBurst int) (Ceiling, error) {
	switch alg {
	case CeilingAlgTokenBucket:
		return NewTokenBucketCeiling(maxRate, maxBurst), nil
	case CeilingAlgSlidingWindow:
		return NewSlidingWindowCeiling(maxRate), nil
	case CeilingAlgLeakyBucket:
		return NewLeakyBucketCeiling(maxRate, maxBurst)
	}
	return nil, fmt.Errorf("unknown ceiling algorithm %q", alg)
}

// TokenBucketCeiling implements Ceiling on a token bucket.
type TokenBucketCeiling struct {
	limiter *rate.Limiter
}

// NewTokenBucketCeiling creates a token bucket ceiling.
// maxBurst tokens may be consumed at once; they refill evenly at maxRate.
func NewTokenBucketCeiling(maxRate Rate, maxBurst int) *TokenBucketCeiling {
	if maxBurst <= 0 {
		maxBurst = maxRate.Count
	}
	every := maxRate.Duration / time.Duration(maxRate.Count)
	return &TokenBucketCeiling{limiter: rate.NewLimiter(rate.Every(every), maxBurst)}
}

// Allow checks if a request may pass the ceiling right now.
func (c *TokenBucketCeiling) Allow(now time.Time) (bool, time.Duration) {
	if c.limiter.AllowN(now, 1) {
		return true, 0
	}
	r := c.limiter.ReserveN(now, 1)
	retryAfter := r.DelayFrom(now)
	r.CancelAt(now)
	return false, retryAfter
}

// SlidingWindowCeiling implements Ceiling on a sliding window counter.
type SlidingWindowCeiling struct {
	limiter *slidingwindow.Limiter
	maxRate Rate
}

// NewSlidingWindowCeiling creates a sliding window ceiling.
func NewSlidingWindowCeiling(maxRate Rate) *SlidingWindowCeiling {
	lim, _ := slidingwindow.NewLimiter(
		maxRate.Duration, int64(maxRate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
			return slidingwindow.NewLocalWindow()
		})
	return &SlidingWindowCeiling{limiter: lim, maxRate: maxRate}
}

// Allow checks if a request may pass the ceiling right now.
func (c *SlidingWindowCeiling) Allow(now time.Time) (bool, time.Duration) {
	if c.limiter.Allow() {
		return true, 0
	}
	retryAfter := now.Truncate(c.maxRate.Duration).Add(c.maxRate.Duration).Sub(now)
	return false, retryAfter
}

// LeakyBucketCeiling implements Ceiling using GCRA (Generic Cell Rate Algorithm),
// a leaky bucket variant. See https://brandur.org/rate-limiting#gcra for details.
type LeakyBucketCeiling struct {
	limiter *throttled.GCRARateLimiterCtx
}

// NewLeakyBucketCeiling creates a GCRA-based ceiling.
func NewLeakyBucketCeiling(maxRate Rate, maxBurst int) (*LeakyBucketCeiling, error) {
	if maxBurst <= 0 {
		maxBurst = maxRate.Count
	}
	gcraStore, err := memstore.NewCtx(64)
	if err != nil {
		return nil, fmt.Errorf("new in-memory store: %w", err)
	}
	gcraLimiter, err := throttled.NewGCRARateLimiterCtx(gcraStore, throttled.RateQuota{
		MaxRate:  throttled.PerDuration(maxRate.Count, maxRate.Duration),
		MaxBurst: maxBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("new GCRA rate limiter: %w", err)
	}
	return &LeakyBucketCeiling{limiter: gcraLimiter}, nil
}

// Allow checks if a request may pass the ceiling right now.
func (c *LeakyBucketCeiling) Allow(now time.Time) (bool, time.Duration) {
	limited, res, err := c.limiter.RateLimitCtx(context.Background(), "requests", 1)
	if err != nil {
		// Local store errors must not wedge admission.
		return true, 0
	}
	return !limited, res.RetryAfter
}
