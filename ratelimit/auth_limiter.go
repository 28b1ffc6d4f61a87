/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"net/http"
)

// HTTP header names used by the NationStates API for nation authentication.
const (
	PasswordHeader  = "X-Password"
	AutologinHeader = "X-Autologin"
	PinHeader       = "X-Pin"
)

// Credential identifies a nation and its plaintext secret.
// Server-issued session artifacts (autologin token, pin) are cached by AuthLimiter
// and substituted for the plaintext secret on subsequent requests.
type Credential struct {
	Identity string
	Password string
}

// RequestAuth holds the credential fields to attach to an outgoing request.
// At most one of Password and Autologin is set.
type RequestAuth struct {
	Password  string
	Autologin string
	Pin       string
}

// Apply sets the authentication headers on the passed header set.
func (a RequestAuth) Apply(header http.Header) {
	if a.Password != "" {
		header.Set(PasswordHeader, a.Password)
	}
	if a.Autologin != "" {
		header.Set(AutologinHeader, a.Autologin)
	}
	if a.Pin != "" {
		header.Set(PinHeader, a.Pin)
	}
}

// Authenticator is the capability of supplying credential fields for a request
// and updating its cached session artifacts from the response: Observe is fed
// every response so freshly issued artifacts are captured and rejected ones are
// dropped. Invalidate drops the cached artifacts unconditionally.
type Authenticator interface {
	PrepareRequest() RequestAuth
	Observe(statusCode int, header http.Header)
	Invalidate()
}

// AuthLimiter layers session affinity on top of a Limiter: once the server has issued
// an autologin token, the plaintext password is no longer sent. The underlying Limiter
// may be shared with other call sites; quota state stays common to all of them.
type AuthLimiter struct {
	base *Limiter

	identity  string
	password  string
	autologin string
	pin       string
}

// NewAuthLimiter creates an AuthLimiter for the given credential on top of base.
func NewAuthLimiter(base *Limiter, cred Credential) *AuthLimiter {
	return &AuthLimiter{base: base, identity: cred.Identity, password: cred.Password}
}

// Identity returns the credential's identity (the nation name).
func (a *AuthLimiter) Identity() string {
	return a.identity
}

// Acquire suspends the caller until its request may be sent. See Limiter.Acquire.
func (a *AuthLimiter) Acquire(ctx context.Context) error {
	return a.base.Acquire(ctx)
}

// PrepareRequest returns the credential fields to attach to the next request.
// The cached autologin token is preferred over the plaintext password.
func (a *AuthLimiter) PrepareRequest() RequestAuth {
	a.base.mu.Lock()
	defer a.base.mu.Unlock()

	auth := RequestAuth{Pin: a.pin}
	if a.autologin != "" {
		auth.Autologin = a.autologin
	} else {
		auth.Password = a.password
	}
	return auth
}

// Observe feeds a response back into the limiter. In addition to the base quota
// update it captures freshly issued session artifacts, and treats a forbidden
// status as an authentication rejection: cached artifacts are dropped so the next
// PrepareRequest falls back to the plaintext password.
//
// Authentication rejection and quota throttling are deliberately distinct signals:
// the former needs a different credential path, the latter only a delay.
func (a *AuthLimiter) Observe(statusCode int, header http.Header) {
	a.base.Observe(statusCode, header)

	rejected := statusCode == http.StatusForbidden

	a.base.mu.Lock()
	if rejected {
		a.autologin = ""
		a.pin = ""
	} else {
		if token := header.Get(AutologinHeader); token != "" {
			a.autologin = token
		}
		if pin := header.Get(PinHeader); pin != "" {
			a.pin = pin
		}
	}
	a.base.mu.Unlock()

	if rejected {
		a.base.listener.OnAuthRejected()
	}
}

// Invalidate drops the cached autologin token and pin, forcing the next
// PrepareRequest to include the plaintext password again.
func (a *AuthLimiter) Invalidate() {
	a.base.mu.Lock()
	a.autologin = ""
	a.pin = ""
	a.base.mu.Unlock()
}
