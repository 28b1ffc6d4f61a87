/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nskit/nskit/retry"
)

func TestRetryableRoundTripper(t *testing.T) {
	t.Run("retries throttled responses until success", func(t *testing.T) {
		var gotRequests int
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			gotRequests++
			if gotRequests < 3 {
				rw.Header().Set("Retry-After", "0")
				rw.WriteHeader(http.StatusTooManyRequests)
				return
			}
			rw.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
			MaxRetryAttempts: 5,
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 3, gotRequests)
	})

	t.Run("retry attempt number header is set", func(t *testing.T) {
		var lastAttemptHeader string
		var gotRequests int
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			gotRequests++
			lastAttemptHeader = r.Header.Get(RetryAttemptNumberHeader)
			rw.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
			MaxRetryAttempts: 2,
			BackoffPolicy:    retry.NewConstantBackoffPolicy(time.Millisecond, 0),
			IgnoreRetryAfter: true,
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.Equal(t, 3, gotRequests)
		require.Equal(t, "2", lastAttemptHeader)
	})

	t.Run("forbidden is not retried", func(t *testing.T) {
		var gotRequests int
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			gotRequests++
			rw.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		rt, err := NewRetryableRoundTripper(http.DefaultTransport)
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		require.Equal(t, 1, gotRequests)
	})

	t.Run("retry-after header delays the next attempt", func(t *testing.T) {
		const retryAfterSec = 1
		var gotRequests int
		var firstAt, secondAt time.Time
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			gotRequests++
			switch gotRequests {
			case 1:
				firstAt = time.Now()
				rw.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
				rw.WriteHeader(http.StatusTooManyRequests)
			default:
				secondAt = time.Now()
				rw.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{
			MaxRetryAttempts: 1,
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, 2, gotRequests)
		require.GreaterOrEqual(t, secondAt.Sub(firstAt), time.Duration(retryAfterSec)*time.Second)
	})
}
