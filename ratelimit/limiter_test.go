/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const allowedTimeDeviation = time.Millisecond * 100

func stubExtractor(q Quota, err error) QuotaExtractor {
	return func(int, http.Header) (Quota, error) {
		return q, err
	}
}

type recordingListener struct {
	grants         atomic.Int32
	throttled      atomic.Int32
	authRejected   atomic.Int32
	malformedQuota atomic.Int32
}

func (l *recordingListener) OnGrant(time.Duration) { l.grants.Inc() }
func (l *recordingListener) OnThrottled(time.Time) { l.throttled.Inc() }
func (l *recordingListener) OnAuthRejected()       { l.authRejected.Inc() }
func (l *recordingListener) OnMalformedQuota(error) {
	l.malformedQuota.Inc()
}

func acquireTimed(t *testing.T, adm Admission) time.Duration {
	t.Helper()
	start := time.Now()
	require.NoError(t, adm.Acquire(context.Background()))
	return time.Since(start)
}

func TestLimiter_AcquireFreshLimiterIsImmediate(t *testing.T) {
	l := NewLimiter()
	elapsed := acquireTimed(t, l)
	require.Less(t, elapsed, allowedTimeDeviation, "first acquire on a fresh limiter should be granted immediately")
}

func TestLimiter_QuotaCountdown(t *testing.T) {
	const resetIn = time.Millisecond * 300

	l := NewLimiterWithOpts(Opts{Extractor: stubExtractor(Quota{Remaining: 1, ResetIn: resetIn}, nil)})
	l.Observe(http.StatusOK, nil)

	elapsed := acquireTimed(t, l)
	require.Less(t, elapsed, allowedTimeDeviation, "acquire with positive remaining should be granted immediately")

	// Remaining was optimistically decremented to 0 at the previous grant.
	elapsed = acquireTimed(t, l)
	require.GreaterOrEqual(t, elapsed, resetIn-allowedTimeDeviation,
		"acquire with exhausted remaining should be granted no earlier than the window reset")
}

func TestLimiter_ThrottleOverrideDominatesPositiveRemaining(t *testing.T) {
	const retryIn = time.Millisecond * 400

	l := NewLimiterWithOpts(Opts{
		Extractor: stubExtractor(Quota{Remaining: 5, ResetIn: time.Second, RetryIn: retryIn}, nil),
	})
	l.Observe(http.StatusTooManyRequests, nil)

	elapsed := acquireTimed(t, l)
	require.GreaterOrEqual(t, elapsed, retryIn-allowedTimeDeviation,
		"throttle override should dominate the positive remaining count")
}

func TestLimiter_GrantsAreFIFO(t *testing.T) {
	const (
		callersNum = 5
		resetIn    = time.Millisecond * 500
	)

	l := NewLimiterWithOpts(Opts{Extractor: stubExtractor(Quota{Remaining: 0, ResetIn: resetIn}, nil)})
	l.Observe(http.StatusOK, nil)

	var mu sync.Mutex
	var grantOrder []int
	var wg sync.WaitGroup
	for i := 0; i < callersNum; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background()))
			mu.Lock()
			grantOrder = append(grantOrder, i)
			mu.Unlock()
		}(i)
		time.Sleep(time.Millisecond * 30) // Fix the arrival order.
	}
	wg.Wait()

	require.Equal(t, []int{0, 1, 2, 3, 4}, grantOrder, "grants should be issued in arrival order")
}

func TestLimiter_AcquireCancellation(t *testing.T) {
	const resetIn = time.Millisecond * 400

	l := NewLimiterWithOpts(Opts{Extractor: stubExtractor(Quota{Remaining: 0, ResetIn: resetIn}, nil)})
	l.Observe(http.StatusOK, nil)

	const cancelAfter = time.Millisecond * 100

	ctx, cancel := context.WithTimeout(context.Background(), cancelAfter)
	defer cancel()
	err := l.Acquire(ctx)
	var cancelErr *AcquireCanceledError
	require.ErrorAs(t, err, &cancelErr)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The cancelled wait must be a pure no-op on shared state: a second acquire
	// is scheduled exactly as if the cancelled call never existed.
	elapsed := acquireTimed(t, l)
	require.GreaterOrEqual(t, elapsed, resetIn-cancelAfter-allowedTimeDeviation,
		"second acquire should still wait for the window reset")
	require.Less(t, elapsed, resetIn+allowedTimeDeviation,
		"cancelled wait should not push the reset time further out")
}

func TestLimiter_CancelledWaiterDoesNotBreakOrder(t *testing.T) {
	const resetIn = time.Millisecond * 500

	l := NewLimiterWithOpts(Opts{Extractor: stubExtractor(Quota{Remaining: 0, ResetIn: resetIn}, nil)})
	l.Observe(http.StatusOK, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Acquire(ctx)
	}()
	time.Sleep(time.Millisecond * 50)

	granted := make(chan struct{})
	go func() {
		_ = l.Acquire(context.Background())
		close(granted)
	}()
	time.Sleep(time.Millisecond * 50)

	cancel()
	var cancelErr *AcquireCanceledError
	require.ErrorAs(t, <-errCh, &cancelErr)

	select {
	case <-granted:
	case <-time.After(resetIn + time.Second):
		t.Fatal("remaining waiter was not granted after the cancelled one left the queue")
	}
}

func TestLimiter_MalformedQuotaFallback(t *testing.T) {
	const fallbackDelay = time.Millisecond * 300

	listener := &recordingListener{}
	l := NewLimiterWithOpts(Opts{
		Extractor:     DefaultQuotaExtractor,
		FallbackDelay: fallbackDelay,
		Listener:      listener,
	})
	l.Observe(http.StatusOK, http.Header{}) // no quota headers at all

	require.EqualValues(t, 1, listener.malformedQuota.Load())

	elapsed := acquireTimed(t, l)
	require.GreaterOrEqual(t, elapsed, fallbackDelay-allowedTimeDeviation,
		"unusable quota data should force serialized sending with the fallback delay")
}

func TestLimiter_CeilingGuardsUnobservedBurst(t *testing.T) {
	l := NewLimiterWithOpts(Opts{
		Ceiling: NewTokenBucketCeiling(Rate{Count: 2, Duration: time.Millisecond * 400}, 2),
	})

	require.Less(t, acquireTimed(t, l), allowedTimeDeviation)
	require.Less(t, acquireTimed(t, l), allowedTimeDeviation)
	require.GreaterOrEqual(t, acquireTimed(t, l), time.Millisecond*200-allowedTimeDeviation,
		"third acquire should be paced by the local ceiling before any quota was observed")
}

func TestLimiter_ObserveUnblocksEarlier(t *testing.T) {
	var extMu sync.Mutex
	current := Quota{Remaining: 0, ResetIn: time.Second * 5}
	l := NewLimiterWithOpts(Opts{Extractor: func(int, http.Header) (Quota, error) {
		extMu.Lock()
		defer extMu.Unlock()
		return current, nil
	}})
	l.Observe(http.StatusOK, nil)

	granted := make(chan struct{})
	go func() {
		_ = l.Acquire(context.Background())
		close(granted)
	}()
	time.Sleep(time.Millisecond * 100)

	// A fresh response advertises a replenished window; the waiter should not
	// keep sleeping until the stale reset time.
	extMu.Lock()
	current = Quota{Remaining: 10, ResetIn: time.Second * 5}
	extMu.Unlock()
	l.Observe(http.StatusOK, nil)

	select {
	case <-granted:
	case <-time.After(time.Second):
		t.Fatal("waiter was not re-scheduled after a replenished quota was observed")
	}
}

func TestLimiter_ListenerSignals(t *testing.T) {
	listener := &recordingListener{}
	l := NewLimiterWithOpts(Opts{
		Extractor: stubExtractor(Quota{Remaining: 3, ResetIn: time.Second, RetryIn: time.Millisecond * 50}, nil),
		Listener:  listener,
	})

	require.NoError(t, l.Acquire(context.Background()))
	l.Observe(http.StatusTooManyRequests, nil)
	require.NoError(t, l.Acquire(context.Background()))

	require.EqualValues(t, 2, listener.grants.Load())
	require.EqualValues(t, 1, listener.throttled.Load())
	require.EqualValues(t, 0, listener.authRejected.Load())
}
