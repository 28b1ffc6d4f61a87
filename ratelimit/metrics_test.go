/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nskit/nskit/testutil"
)

func TestPrometheusListener(t *testing.T) {
	listener := NewPrometheusListener("")

	listener.OnGrant(5 * time.Millisecond)
	listener.OnGrant(20 * time.Millisecond)
	listener.OnThrottled(time.Now().Add(time.Second))
	listener.OnAuthRejected()
	listener.OnMalformedQuota(errors.New("bad header"))
	listener.OnMalformedQuota(errors.New("bad header"))

	testutil.RequireSamplesCountInHistogram(t, listener.WaitDurations, 2)
	testutil.RequireSamplesCountInCounter(t, listener.ThrottledCount, 1)
	testutil.RequireSamplesCountInCounter(t, listener.AuthRejectedCount, 1)
	testutil.RequireSamplesCountInCounter(t, listener.MalformedQuotaCount, 2)
}

func TestPrometheusListenerWithLimiter(t *testing.T) {
	listener := NewPrometheusListener("")
	lim := NewLimiterWithOpts(Opts{Listener: listener})

	require.NoError(t, lim.Acquire(context.Background()))

	header := http.Header{}
	header.Set(DefaultRemainingHeader, "0")
	header.Set(DefaultResetHeader, "30")
	header.Set(DefaultRetryHeader, "1")
	lim.Observe(http.StatusTooManyRequests, header)
	lim.Observe(http.StatusOK, http.Header{})

	testutil.RequireSamplesCountInHistogram(t, listener.WaitDurations, 1)
	testutil.RequireSamplesCountInCounter(t, listener.ThrottledCount, 1)
	testutil.RequireSamplesCountInCounter(t, listener.MalformedQuotaCount, 1)
}
