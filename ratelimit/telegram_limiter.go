/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"net/http"
	"time"
)

// Telegram pacing floors documented by the NationStates telegram API.
// The floors are not advertised via response headers and must be enforced locally.
const (
	DefaultTelegramInterval    = 30 * time.Second
	DefaultRecruitmentInterval = 180 * time.Second
)

// TelegramOpts represents options for NewTelegramLimiterWithOpts.
type TelegramOpts struct {
	// MinInterval overrides the pacing floor selected by the recruitment flag.
	MinInterval time.Duration
}

// TelegramLimiter enforces a fixed minimum spacing between telegram sends on top of
// the generic quota admission of the underlying Limiter. Recruitment telegrams carry
// a materially longer floor than standard ones.
//
// The floor is waited out before the caller enters the base limiter's admission
// queue, so a telegram caller whose floor is still far away never delays unrelated
// callers sharing the base limiter. Telegram callers are serialized against each
// other by a gate so a burst of concurrent callers queues correctly.
//
// The floor timestamp is updated at grant time, not at send-completion time. A
// granted slot counts as consumed even if the caller never sends afterwards; pacing
// stays conservative against accidental bursts.
type TelegramLimiter struct {
	base        *Limiter
	minInterval time.Duration
	recruitment bool

	// gate serializes telegram callers; lastGrantAt is owned by the gate holder.
	gate        chan struct{}
	lastGrantAt time.Time
}

// NewTelegramLimiter creates a TelegramLimiter on top of base with the default
// pacing floor for the given telegram class.
func NewTelegramLimiter(base *Limiter, recruitment bool) *TelegramLimiter {
	return NewTelegramLimiterWithOpts(base, recruitment, TelegramOpts{})
}

// NewTelegramLimiterWithOpts creates a TelegramLimiter with the specified options.
func NewTelegramLimiterWithOpts(base *Limiter, recruitment bool, opts TelegramOpts) *TelegramLimiter {
	minInterval := opts.MinInterval
	if minInterval <= 0 {
		if recruitment {
			minInterval = DefaultRecruitmentInterval
		} else {
			minInterval = DefaultTelegramInterval
		}
	}
	return &TelegramLimiter{
		base:        base,
		minInterval: minInterval,
		recruitment: recruitment,
		gate:        make(chan struct{}, 1),
	}
}

// Recruitment reports whether this limiter paces recruitment telegrams.
func (t *TelegramLimiter) Recruitment() bool {
	return t.recruitment
}

// MinInterval returns the enforced pacing floor.
func (t *TelegramLimiter) MinInterval() time.Duration {
	return t.minInterval
}

// Acquire suspends the caller until both the pacing floor and the base limiter's
// schedule admit the request: the effective time is the later of the two. The floor
// wait happens before the caller joins the base queue.
//
// Cancelling the context leaves the floor state untouched.
func (t *TelegramLimiter) Acquire(ctx context.Context) error {
	select {
	case t.gate <- struct{}{}:
	case <-ctx.Done():
		return &AcquireCanceledError{Inner: ctx.Err()}
	}
	defer func() { <-t.gate }()

	if !t.lastGrantAt.IsZero() {
		if wait := t.minInterval - t.base.now().Sub(t.lastGrantAt); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return &AcquireCanceledError{Inner: ctx.Err()}
			}
		}
	}

	if err := t.base.Acquire(ctx); err != nil {
		return err
	}
	t.lastGrantAt = t.base.now()
	return nil
}

// Observe feeds a response back into the underlying Limiter.
func (t *TelegramLimiter) Observe(statusCode int, header http.Header) {
	t.base.Observe(statusCode, header)
}
