/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nskit/nskit/config"
	"github.com/nskit/nskit/httpclient"
	"github.com/nskit/nskit/ratelimit"
)

func makeClientConfig(t *testing.T, yamlData string) *httpclient.Config {
	t.Helper()
	cfg := httpclient.NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(yamlData), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	return cfg
}

func serverURL(t *testing.T, server *httptest.Server, query string) *url.URL {
	t.Helper()
	u, err := url.Parse(server.URL + query)
	require.NoError(t, err)
	return u
}

func TestClient_Do(t *testing.T) {
	t.Run("decodes response tree", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set(ratelimit.DefaultRemainingHeader, "49")
			rw.Header().Set(ratelimit.DefaultResetHeader, "30")
			_, _ = rw.Write([]byte(`<NATION id="testlandia"><NAME>Testlandia</NAME></NATION>`))
		}))
		defer server.Close()

		client, err := NewClient(makeClientConfig(t, `userAgent: "tester"`))
		require.NoError(t, err)

		root, err := client.Do(context.Background(), serverURL(t, server, "/?nation=testlandia&q=name"))
		require.NoError(t, err)
		require.Equal(t, "Testlandia", root.Get("NAME"))
	})

	t.Run("surfaces api errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			http.Error(rw, "Unknown nation.", http.StatusNotFound)
		}))
		defer server.Close()

		client, err := NewClient(makeClientConfig(t, `userAgent: "tester"`))
		require.NoError(t, err)

		_, err = client.Do(context.Background(), serverURL(t, server, "/?nation=nope"))
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		require.Equal(t, "Unknown nation.", apiErr.Message)
	})

	t.Run("rejects telegram urls", func(t *testing.T) {
		client, err := NewClient(makeClientConfig(t, `userAgent: "tester"`))
		require.NoError(t, err)

		u, _ := url.Parse(BaseURL + "?a=sendTG&client=k")
		_, err = client.Do(context.Background(), u)
		require.ErrorIs(t, err, ErrTelegramEndpoint)
	})

	t.Run("requires user agent", func(t *testing.T) {
		_, err := NewClient(makeClientConfig(t, `{}`))
		var uaErr *httpclient.UserAgentNotSetError
		require.ErrorAs(t, err, &uaErr)
	})
}

func TestClient_DoPrivate(t *testing.T) {
	var requests []struct{ password, autologin string }
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		requests = append(requests, struct{ password, autologin string }{
			password:  r.Header.Get(ratelimit.PasswordHeader),
			autologin: r.Header.Get(ratelimit.AutologinHeader),
		})
		rw.Header().Set(ratelimit.AutologinHeader, "issued-token")
		_, _ = rw.Write([]byte(`<NATION><PING>pong</PING></NATION>`))
	}))
	defer server.Close()

	client, err := NewClient(makeClientConfig(t, `userAgent: "tester"`))
	require.NoError(t, err)

	cred := ratelimit.Credential{Identity: "Testlandia", Password: "hunter2"}
	for i := 0; i < 2; i++ {
		_, err = client.DoPrivate(context.Background(), serverURL(t, server, "/?nation=testlandia&q=ping"), cred)
		require.NoError(t, err)
	}

	require.Len(t, requests, 2)
	require.Equal(t, "hunter2", requests[0].password)
	require.Empty(t, requests[0].autologin)
	require.Empty(t, requests[1].password)
	require.Equal(t, "issued-token", requests[1].autologin)

	// Both calls must resolve to the same cached session.
	require.Same(t, client.AuthFor(cred), client.AuthFor(ratelimit.Credential{Identity: "testlandia"}))
}

func TestClient_SendTelegram(t *testing.T) {
	t.Run("sends and paces telegrams", func(t *testing.T) {
		var gotQueries []url.Values
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			gotQueries = append(gotQueries, r.URL.Query())
			_, _ = rw.Write([]byte("queued"))
		}))
		defer server.Close()

		cfg := makeClientConfig(t, `
userAgent: "tester"
telegrams:
  minInterval: 80ms
`)
		client, err := NewClientWithOpts(cfg, ClientOpts{Delegate: rewriteHostTransport(server)})
		require.NoError(t, err)

		tg := Telegram{ClientKey: "ck", TelegramID: "42", SecretKey: "sk", Recipient: "testlandia"}

		start := time.Now()
		require.NoError(t, client.SendTelegram(context.Background(), tg))
		require.NoError(t, client.SendTelegram(context.Background(), tg))
		require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

		require.Len(t, gotQueries, 2)
		q := gotQueries[0]
		require.Equal(t, "sendTG", q.Get("a"))
		require.Equal(t, "ck", q.Get("client"))
		require.Equal(t, "42", q.Get("tgid"))
		require.Equal(t, "sk", q.Get("key"))
		require.Equal(t, "testlandia", q.Get("to"))
	})

	t.Run("error when not queued", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			_, _ = rw.Write([]byte("ratelimit exceeded"))
		}))
		defer server.Close()

		client, err := NewClientWithOpts(
			makeClientConfig(t, `userAgent: "tester"`),
			ClientOpts{Delegate: rewriteHostTransport(server)},
		)
		require.NoError(t, err)

		tg := Telegram{ClientKey: "ck", TelegramID: "42", SecretKey: "sk", Recipient: "testlandia"}
		err = client.SendTelegram(context.Background(), tg)
		require.ErrorContains(t, err, "not queued")
	})

	t.Run("incomplete telegram is rejected locally", func(t *testing.T) {
		client, err := NewClient(makeClientConfig(t, `userAgent: "tester"`))
		require.NoError(t, err)

		err = client.SendTelegram(context.Background(), Telegram{TelegramID: "42"})
		require.Error(t, err)
	})
}

func TestClient_Dumps(t *testing.T) {
	dumpXML := `<NATIONS><NATION><NAME>First</NAME></NATION><NATION><NAME>Second</NAME></NATION></NATIONS>`
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gz := gzip.NewWriter(rw)
		_, _ = gz.Write([]byte(dumpXML))
		_ = gz.Close()
	}))
	defer server.Close()

	client, err := NewClient(makeClientConfig(t, `userAgent: "tester"`))
	require.NoError(t, err)

	t.Run("stream decompresses", func(t *testing.T) {
		stream, err := client.Stream(context.Background(), serverURL(t, server, "/pages/nations.xml.gz"))
		require.NoError(t, err)
		defer stream.Close()

		root, err := ParseXML(stream)
		require.NoError(t, err)
		require.Len(t, root.FindAll("NATION"), 2)
	})

	t.Run("each dump element", func(t *testing.T) {
		var names []string
		err := client.EachDumpElement(context.Background(), serverURL(t, server, "/pages/nations.xml.gz"), "NATION",
			func(el *Element) error {
				names = append(names, el.Get("NAME"))
				return nil
			})
		require.NoError(t, err)
		require.Equal(t, []string{"First", "Second"}, names)
	})
}

// rewriteHostTransport redirects requests built against BaseURL to the test server.
func rewriteHostTransport(server *httptest.Server) http.RoundTripper {
	target, _ := url.Parse(server.URL)
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		r = httpclient.CloneHTTPRequest(r)
		rewritten := *r.URL
		rewritten.Scheme = target.Scheme
		rewritten.Host = target.Host
		r.URL = &rewritten
		return http.DefaultTransport.RoundTrip(r)
	})
}

type roundTripperFunc func(r *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
