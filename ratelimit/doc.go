/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit paces outbound requests against a remote, dynamically-advertised
// request quota. A Limiter serializes admissions in FIFO order, learns the remaining
// allowance from response headers, and honors server-issued throttle overrides.
// AuthLimiter adds session-credential affinity on top, TelegramLimiter adds a fixed
// per-class pacing floor. All limiter state is process-local.
package ratelimit
