/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type session struct {
	Autologin string
}

func TestLRUCache(t *testing.T) {
	t.Run("add and get", func(t *testing.T) {
		metrics := NewPrometheusMetrics()
		cache, err := New[string, session](3, metrics)
		require.NoError(t, err)

		cache.Add("testlandia", session{Autologin: "token-1"})
		cache.Add("darcania", session{Autologin: "token-2"})

		got, ok := cache.Get("testlandia")
		require.True(t, ok)
		require.Equal(t, "token-1", got.Autologin)

		_, ok = cache.Get("the_north_pacific")
		require.False(t, ok)

		require.Equal(t, 2, cache.Len())
		require.Equal(t, float64(2), testutil.ToFloat64(metrics.HitsTotal.WithLabelValues()))
		require.Equal(t, float64(1), testutil.ToFloat64(metrics.MissesTotal.WithLabelValues()))
	})

	t.Run("oldest entry is evicted", func(t *testing.T) {
		metrics := NewPrometheusMetrics()
		cache, err := New[string, session](2, metrics)
		require.NoError(t, err)

		cache.Add("a", session{})
		cache.Add("b", session{})

		// Touch "a" so "b" becomes the eviction candidate.
		_, ok := cache.Get("a")
		require.True(t, ok)

		cache.Add("c", session{})

		_, ok = cache.Get("b")
		require.False(t, ok)
		_, ok = cache.Get("a")
		require.True(t, ok)
		_, ok = cache.Get("c")
		require.True(t, ok)
		require.Equal(t, float64(1), testutil.ToFloat64(metrics.EvictionsTotal.WithLabelValues()))
	})

	t.Run("get or add", func(t *testing.T) {
		cache, err := New[string, *session](2, nil)
		require.NoError(t, err)

		v1, exists := cache.GetOrAdd("testlandia", func() *session { return &session{Autologin: "first"} })
		require.False(t, exists)
		v2, exists := cache.GetOrAdd("testlandia", func() *session { return &session{Autologin: "second"} })
		require.True(t, exists)
		require.Same(t, v1, v2)
		require.Equal(t, "first", v2.Autologin)
	})

	t.Run("expired entry misses", func(t *testing.T) {
		cache, err := NewWithOpts[string, session](2, nil, Options{DefaultTTL: 10 * time.Millisecond})
		require.NoError(t, err)

		cache.Add("testlandia", session{Autologin: "token"})
		_, ok := cache.Get("testlandia")
		require.True(t, ok)

		time.Sleep(20 * time.Millisecond)
		_, ok = cache.Get("testlandia")
		require.False(t, ok)
	})

	t.Run("periodic cleanup removes expired entries", func(t *testing.T) {
		cache, err := NewWithOpts[string, session](10, nil, Options{DefaultTTL: 10 * time.Millisecond})
		require.NoError(t, err)

		cache.AddWithTTL("short", session{}, 10*time.Millisecond)
		cache.AddWithTTL("long", session{}, time.Minute)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go cache.RunPeriodicCleanup(ctx, 5*time.Millisecond)

		require.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("remove and purge", func(t *testing.T) {
		cache, err := New[string, session](4, nil)
		require.NoError(t, err)

		cache.Add("a", session{})
		cache.Add("b", session{})
		require.True(t, cache.Remove("a"))
		require.False(t, cache.Remove("a"))
		require.Equal(t, 1, cache.Len())

		cache.Purge()
		require.Equal(t, 0, cache.Len())
	})

	t.Run("invalid max entries", func(t *testing.T) {
		_, err := New[string, session](0, nil)
		require.Error(t, err)
	})
}

func TestLRUCacheResize(t *testing.T) {
	cache, err := New[int, string](4, nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		cache.Add(i, "v")
	}
	evicted := cache.Resize(2)
	require.Equal(t, 2, evicted)
	require.Equal(t, 2, cache.Len())
}
