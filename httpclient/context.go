/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"

	"github.com/nskit/nskit/ratelimit"
)

type ctxKey int

const (
	ctxKeyRequestType ctxKey = iota
	ctxKeyAdmission
)

// NewContextWithRequestType creates a new context with request type.
func NewContextWithRequestType(ctx context.Context, requestType string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestType, requestType)
}

// GetRequestTypeFromContext extracts request type from the context.
func GetRequestTypeFromContext(ctx context.Context) string {
	value := ctx.Value(ctxKeyRequestType)
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

// NewContextWithAdmission returns a derived context that carries an admission override.
// AdmissionRoundTripper will use it instead of its own admission for requests made
// with this context. Typical use cases are authenticated nation requests
// (ratelimit.AuthLimiter) and telegram sends (ratelimit.TelegramLimiter): both share
// the process-wide quota of the base limiter but add their own request preparation
// or pacing on top.
func NewContextWithAdmission(ctx context.Context, admission ratelimit.Admission) context.Context {
	return context.WithValue(ctx, ctxKeyAdmission, admission)
}

// GetAdmissionFromContext extracts the admission override from the context.
// Returns nil when the key is not present.
func GetAdmissionFromContext(ctx context.Context) ratelimit.Admission {
	value := ctx.Value(ctxKeyAdmission)
	if value == nil {
		return nil
	}
	if a, ok := value.(ratelimit.Admission); ok {
		return a
	}
	return nil
}
