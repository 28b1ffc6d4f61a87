/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserAgentRoundTripper(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	t.Run("set if empty", func(t *testing.T) {
		client := &http.Client{Transport: NewUserAgentRoundTripper(http.DefaultTransport, "nskit-tester contact@example.org")}
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.True(t, strings.HasPrefix(gotUserAgent, "nskit-tester contact@example.org "))
		require.Contains(t, gotUserAgent, "nskit/")
	})

	t.Run("existing header is kept", func(t *testing.T) {
		client := &http.Client{Transport: NewUserAgentRoundTripper(http.DefaultTransport, "default-agent")}
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "custom-agent")
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, "custom-agent", gotUserAgent)
	})

	t.Run("append strategy", func(t *testing.T) {
		rt := NewUserAgentRoundTripperWithOpts(http.DefaultTransport, "nskit/1.0",
			UserAgentRoundTripperOpts{UpdateStrategy: UserAgentUpdateStrategyAppend})
		client := &http.Client{Transport: rt}
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "my-script")
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.True(t, strings.HasPrefix(gotUserAgent, "my-script nskit/1.0 "))
	})

	t.Run("request without any user agent is refused", func(t *testing.T) {
		client := &http.Client{Transport: NewUserAgentRoundTripper(http.DefaultTransport, "")}
		_, err := client.Get(server.URL)
		require.Error(t, err)
		var notSetErr *UserAgentNotSetError
		require.ErrorAs(t, err, &notSetErr)
	})
}
