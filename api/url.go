/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BaseURL is the single endpoint of the NationStates API.
// Every request is a set of query parameters against it.
const BaseURL = "https://www.nationstates.net/cgi-bin/api.cgi"

// DefaultAPIVersion is the API version pinned into every built URL unless the
// caller supplies an explicit "v" parameter. Pinning keeps response shapes
// stable across server-side version bumps.
const DefaultAPIVersion = "12"

// Params is one fragment of a request: shard names plus their modifying
// parameters. Fragments are merged by the URL builders; see Merge for the rules.
type Params map[string]string

// Q builds a fragment requesting the named shards.
func Q(shards ...string) Params {
	return Params{"q": strings.Join(shards, " ")}
}

// Shard builds a fragment of one shard plus its modifying parameters,
// e.g. Shard("census", Params{"scale": "65", "mode": "history"}).
func Shard(q string, parameters Params) Params {
	merged := Params{"q": q}
	for k, v := range parameters {
		if k == "q" {
			merged["q"] = merged["q"] + " " + v
			continue
		}
		merged[k] = v
	}
	return merged
}

// additive keys accumulate space-separated values instead of overwriting.
var additiveKeys = map[string]bool{
	"q":      true,
	"scale":  true,
	"mode":   true,
	"filter": true,
	"tags":   true,
}

// mergeView combines two "view" parameter values. Values of the same category
// ("region.A" + "region.B") combine into "region.A,B"; different categories or
// malformed values overwrite.
func mergeView(existing, incoming string) string {
	xs := strings.SplitN(existing, ".", 2)
	ys := strings.SplitN(incoming, ".", 2)
	if len(xs) != 2 || len(ys) != 2 || xs[0] != ys[0] {
		return incoming
	}
	return fmt.Sprintf("%s.%s,%s", xs[0], xs[1], ys[1])
}

// normalizeValue unescapes plus-encoded input and strips surrounding whitespace
// and underscores, so "The North Pacific", "the_north_pacific" and
// "the+north+pacific" address the same object.
func normalizeValue(v string) string {
	if unescaped, err := url.QueryUnescape(v); err == nil {
		v = unescaped
	}
	return strings.Trim(strings.TrimSpace(v), "_")
}

// Merge folds fragments into a single parameter set. Empty keys and values are
// skipped, values are normalized, additive keys (q, scale, mode, filter, tags)
// accumulate space-separated, "view" values merge per category, everything else
// overwrites left to right. The API version is pinned unless already present.
func Merge(fragments ...Params) Params {
	final := Params{}
	for _, fragment := range fragments {
		for k, v := range fragment {
			if k == "" {
				continue
			}
			v = normalizeValue(v)
			if v == "" {
				continue
			}
			if existing, ok := final[k]; ok {
				if additiveKeys[k] {
					final[k] = existing + " " + v
					continue
				}
				if k == "view" {
					final[k] = mergeView(existing, v)
					continue
				}
			}
			final[k] = v
		}
	}
	if _, ok := final["v"]; !ok {
		final["v"] = DefaultAPIVersion
	}
	return final
}

// buildURL encodes the merged parameters against BaseURL with a deterministic
// parameter order.
func buildURL(fragments ...Params) *url.URL {
	merged := Merge(fragments...)
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(url.Values, len(merged))
	for _, k := range keys {
		values.Set(k, merged[k])
	}

	u, _ := url.Parse(BaseURL)
	u.RawQuery = values.Encode()
	return u
}

// World builds a request against the world API.
func World(fragments ...Params) *url.URL {
	return buildURL(fragments...)
}

// Nation builds a request against the nation API.
func Nation(nation string, fragments ...Params) *url.URL {
	return buildURL(append(fragments, Params{"nation": nation})...)
}

// Region builds a request against the region API.
func Region(region string, fragments ...Params) *url.URL {
	return buildURL(append(fragments, Params{"region": region})...)
}

// WA builds a request against the World Assembly API.
// Council 1 is the General Assembly, 2 the Security Council.
func WA(council int, fragments ...Params) *url.URL {
	return buildURL(append(fragments, Params{"wa": strconv.Itoa(council)})...)
}

// Command builds a nation command request (c=...), e.g. issue answering.
func Command(nation, command string, fragments ...Params) *url.URL {
	return buildURL(append(fragments, Params{"nation": nation, "c": command})...)
}

// Verify builds a login verification request (a=verify) for the given nation
// and checksum. See https://www.nationstates.net/pages/api.html#verification.
func Verify(nation, checksum string, fragments ...Params) *url.URL {
	return buildURL(append(fragments, Params{"a": "verify", "nation": nation, "checksum": checksum})...)
}

// NationsDump returns the URL of the daily nations dump. A zero date addresses
// today's dump, any other date the corresponding archive.
func NationsDump(date time.Time) *url.URL {
	return dumpURL("nations", date)
}

// RegionsDump returns the URL of the daily regions dump. A zero date addresses
// today's dump, any other date the corresponding archive.
func RegionsDump(date time.Time) *url.URL {
	return dumpURL("regions", date)
}

// CardsDump returns the URL of the trading cards dump for the given season.
func CardsDump(season int) *url.URL {
	u, _ := url.Parse(BaseURL)
	u.Path = fmt.Sprintf("/pages/cardlist_S%d.xml.gz", season)
	return u
}

func dumpURL(name string, date time.Time) *url.URL {
	u, _ := url.Parse(BaseURL)
	if date.IsZero() {
		u.Path = fmt.Sprintf("/pages/%s.xml.gz", name)
	} else {
		u.Path = fmt.Sprintf("/archive/%s/%s-%s-xml.gz", name, date.Format("2006-01-02"), name)
	}
	return u
}

// NormalizeName converts a nation or region name to the canonical form used in
// URLs and cache keys: lower case with underscores for spaces.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
