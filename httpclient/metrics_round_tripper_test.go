/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nskit/nskit/testutil"
)

func TestMetricsRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	collector := NewPrometheusMetricsCollector("")
	rt := NewMetricsRoundTripperWithOpts(http.DefaultTransport, MetricsRoundTripperOpts{Collector: collector})
	client := &http.Client{Transport: rt}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req = req.WithContext(NewContextWithRequestType(req.Context(), "telegram"))
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	serverHost := server.Listener.Addr().String()
	labels := prometheus.Labels{
		"remote_address": serverHost,
		"summary":        "GET " + DefaultRequestType,
		"status":         "200",
		"type":           DefaultRequestType,
	}
	hist := collector.Durations.With(labels).(prometheus.Histogram)
	testutil.RequireSamplesCountInHistogram(t, hist, 1)

	labels["type"] = "telegram"
	labels["summary"] = "GET telegram"
	hist = collector.Durations.With(labels).(prometheus.Histogram)
	testutil.RequireSamplesCountInHistogram(t, hist, 1)
}
