/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Default HTTP header names advertising the remote quota.
// They match the NationStates API but can be overridden via ExtractorOpts.
const (
	DefaultRemainingHeader = "RateLimit-Remaining"
	DefaultResetHeader     = "RateLimit-Reset"
	DefaultRetryHeader     = "Retry-After"
)

// Quota is the remote-advertised request allowance extracted from a single response.
type Quota struct {
	// Remaining is the number of requests still permitted in the current window.
	Remaining int

	// ResetIn is the time until the current window resets.
	ResetIn time.Duration

	// RetryIn is an explicit server-issued wait, non-zero only when the response
	// signals throttling. While pending it dominates Remaining/ResetIn.
	RetryIn time.Duration
}

// QuotaExtractor maps a response's status code and headers to a Quota.
// Header naming is API-specific configuration and is not hard-coded in the limiter.
// A returned error marks the quota data as unusable and makes the limiter fall
// back to conservative serialization.
type QuotaExtractor func(statusCode int, header http.Header) (Quota, error)

// ExtractorOpts overrides header names used by NewHeaderQuotaExtractor.
type ExtractorOpts struct {
	RemainingHeader string
	ResetHeader     string
	RetryHeader     string

	// ThrottlingStatusCode is the status code that signals explicit throttling.
	// http.StatusTooManyRequests by default.
	ThrottlingStatusCode int
}

// NewHeaderQuotaExtractor returns a QuotaExtractor reading integer-second header values.
func NewHeaderQuotaExtractor(opts ExtractorOpts) QuotaExtractor {
	if opts.RemainingHeader == "" {
		opts.RemainingHeader = DefaultRemainingHeader
	}
	if opts.ResetHeader == "" {
		opts.ResetHeader = DefaultResetHeader
	}
	if opts.RetryHeader == "" {
		opts.RetryHeader = DefaultRetryHeader
	}
	if opts.ThrottlingStatusCode == 0 {
		opts.ThrottlingStatusCode = http.StatusTooManyRequests
	}

	return func(statusCode int, header http.Header) (Quota, error) {
		var q Quota
		var err error

		if q.Remaining, err = intHeader(header, opts.RemainingHeader); err != nil {
			return Quota{}, err
		}
		resetSec, err := intHeader(header, opts.ResetHeader)
		if err != nil {
			return Quota{}, err
		}
		q.ResetIn = time.Duration(resetSec) * time.Second

		if statusCode == opts.ThrottlingStatusCode {
			retrySec, retryErr := intHeader(header, opts.RetryHeader)
			if retryErr != nil {
				// The throttling status itself is trustworthy even when the header is not.
				// Let the caller treat the quota as unusable and serialize conservatively.
				return Quota{}, retryErr
			}
			q.RetryIn = time.Duration(retrySec) * time.Second
		}

		return q, nil
	}
}

// DefaultQuotaExtractor extracts quota data using the NationStates API header names.
var DefaultQuotaExtractor = NewHeaderQuotaExtractor(ExtractorOpts{})

func intHeader(header http.Header, name string) (int, error) {
	val := header.Get(name)
	if val == "" {
		return 0, fmt.Errorf("missing %s header", name)
	}
	num, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s header: %w", name, err)
	}
	if num < 0 {
		return 0, fmt.Errorf("negative %s header value %d", name, num)
	}
	return num, nil
}

// quotaState is the last observed remote quota. It is owned by the limiter and
// replaced as a whole under the admission lock, never updated field by field.
type quotaState struct {
	remaining int
	resetAt   time.Time
	seenAt    time.Time
}
