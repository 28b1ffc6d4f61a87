/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package api is a typed client for the NationStates API
// (https://www.nationstates.net/pages/api.html).
//
// URLs are composed from shard fragments the way the API expects them
// (additive q/scale/mode/filter keys, merged views, pinned version) and every
// request is paced by the shared admission limiter before it leaves the
// process: private shards through per-nation session-caching wrappers,
// telegrams through their mandatory interval floors, everything against the
// same server-advertised quota.
package api
