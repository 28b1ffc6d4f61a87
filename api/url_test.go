/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestURLBuilders(t *testing.T) {
	t.Run("nation request pins version", func(t *testing.T) {
		u := Nation("testlandia", Q("name", "fullname"))
		q := u.Query()
		require.Equal(t, "https", u.Scheme)
		require.Equal(t, "www.nationstates.net", u.Host)
		require.Equal(t, "/cgi-bin/api.cgi", u.Path)
		require.Equal(t, "testlandia", q.Get("nation"))
		require.Equal(t, "name fullname", q.Get("q"))
		require.Equal(t, DefaultAPIVersion, q.Get("v"))
	})

	t.Run("explicit version wins", func(t *testing.T) {
		u := World(Q("numnations"), Params{"v": "11"})
		require.Equal(t, "11", u.Query().Get("v"))
	})

	t.Run("q accumulates across fragments", func(t *testing.T) {
		u := World(Q("name"), Q("flag"), Shard("census", Params{"scale": "65"}))
		q := u.Query()
		require.Equal(t, "name flag census", q.Get("q"))
		require.Equal(t, "65", q.Get("scale"))
	})

	t.Run("scale and mode accumulate", func(t *testing.T) {
		u := Nation("testlandia",
			Shard("census", Params{"scale": "65", "mode": "score"}),
			Params{"scale": "66", "mode": "rank"},
		)
		q := u.Query()
		require.Equal(t, "65 66", q.Get("scale"))
		require.Equal(t, "score rank", q.Get("mode"))
	})

	t.Run("view values of one category merge", func(t *testing.T) {
		merged := Merge(Params{"view": "region.A"}, Params{"view": "region.B"})
		require.Equal(t, "region.A,B", merged["view"])
	})

	t.Run("view values of different categories overwrite", func(t *testing.T) {
		merged := Merge(Params{"view": "region.A"}, Params{"view": "nation.B"})
		require.Equal(t, "nation.B", merged["view"])
	})

	t.Run("values are normalized", func(t *testing.T) {
		merged := Merge(Params{"region": "_the+north+pacific_"})
		require.Equal(t, "the north pacific", merged["region"])
	})

	t.Run("empty keys and values are dropped", func(t *testing.T) {
		merged := Merge(Params{"": "x", "q": "", "nation": "  _ "})
		require.Equal(t, Params{"v": DefaultAPIVersion}, merged)
	})

	t.Run("non-additive keys overwrite left to right", func(t *testing.T) {
		merged := Merge(Params{"nation": "one"}, Params{"nation": "two"})
		require.Equal(t, "two", merged["nation"])
	})

	t.Run("wa and command", func(t *testing.T) {
		u := WA(2, Q("resolutions"))
		require.Equal(t, "2", u.Query().Get("wa"))

		u = Command("testlandia", "issue", Params{"issue": "1", "option": "0"})
		q := u.Query()
		require.Equal(t, "issue", q.Get("c"))
		require.Equal(t, "testlandia", q.Get("nation"))
		require.Equal(t, "1", q.Get("issue"))
	})

	t.Run("verify", func(t *testing.T) {
		u := Verify("testlandia", "abc123")
		q := u.Query()
		require.Equal(t, "verify", q.Get("a"))
		require.Equal(t, "testlandia", q.Get("nation"))
		require.Equal(t, "abc123", q.Get("checksum"))
	})
}

func TestTelegramURL(t *testing.T) {
	tg := Telegram{
		ClientKey:  "clientkey",
		TelegramID: "1234",
		SecretKey:  "secret",
		Recipient:  "The North Pacific",
	}
	require.NoError(t, tg.Validate())

	q := tg.URL().Query()
	require.Equal(t, "sendTG", q.Get("a"))
	require.Equal(t, "clientkey", q.Get("client"))
	require.Equal(t, "1234", q.Get("tgid"))
	require.Equal(t, "secret", q.Get("key"))
	require.Equal(t, "the_north_pacific", q.Get("to"))

	require.Error(t, Telegram{TelegramID: "1", SecretKey: "s", Recipient: "r"}.Validate())
}

func TestDumpURLs(t *testing.T) {
	require.Equal(t, "/pages/nations.xml.gz", NationsDump(time.Time{}).Path)
	require.Equal(t, "/pages/regions.xml.gz", RegionsDump(time.Time{}).Path)

	date := time.Date(2018, time.September, 30, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "/archive/nations/2018-09-30-nations-xml.gz", NationsDump(date).Path)
	require.Equal(t, "/archive/regions/2018-09-30-regions-xml.gz", RegionsDump(date).Path)

	require.Equal(t, "/pages/cardlist_S3.xml.gz", CardsDump(3).Path)
}

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "the_north_pacific", NormalizeName(" The North Pacific "))
	require.Equal(t, "testlandia", NormalizeName("Testlandia"))
}
