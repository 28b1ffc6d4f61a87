/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nskit/nskit/ratelimit"
)

// DefaultAdmissionWaitTimeout is a default timeout for waiting for admission.
// It spans the full 30-second quota window of the API with a margin.
const DefaultAdmissionWaitTimeout = time.Minute

// AdmissionRoundTripperOpts represents options for AdmissionRoundTripper.
type AdmissionRoundTripperOpts struct {
	// WaitTimeout is the maximum time to wait for admission.
	// DefaultAdmissionWaitTimeout by default.
	WaitTimeout time.Duration

	// Authenticator supplies credential headers for outgoing requests and is fed
	// every received response so it can capture and drop session artifacts.
	// An admission override that implements ratelimit.Authenticator
	// (e.g. *ratelimit.AuthLimiter) takes precedence per request.
	Authenticator ratelimit.Authenticator
}

// AdmissionRoundTripper wraps an object implementing http.RoundTripper interface and
// paces outgoing requests against the remote-advertised quota. Every request passes
// through Acquire before it is sent, and every received response is fed back through
// Observe so the next admission decision reflects the server's latest quota data.
type AdmissionRoundTripper struct {
	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// Admission decides when a request may be sent. It can be overridden per request
	// via NewContextWithAdmission.
	Admission ratelimit.Admission

	// Authenticator supplies credential headers for outgoing requests. May be nil.
	Authenticator ratelimit.Authenticator

	// WaitTimeout is the maximum time to wait for admission.
	WaitTimeout time.Duration
}

// NewAdmissionRoundTripper creates a new AdmissionRoundTripper.
func NewAdmissionRoundTripper(delegate http.RoundTripper, admission ratelimit.Admission) (*AdmissionRoundTripper, error) {
	return NewAdmissionRoundTripperWithOpts(delegate, admission, AdmissionRoundTripperOpts{})
}

// NewAdmissionRoundTripperWithOpts creates a new AdmissionRoundTripper with the specified options.
// For options that are not presented, the default values will be used.
func NewAdmissionRoundTripperWithOpts(
	delegate http.RoundTripper, admission ratelimit.Admission, opts AdmissionRoundTripperOpts,
) (*AdmissionRoundTripper, error) {
	if admission == nil {
		return nil, fmt.Errorf("admission must not be nil")
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultAdmissionWaitTimeout
	}
	return &AdmissionRoundTripper{
		Delegate:      delegate,
		Admission:     admission,
		Authenticator: opts.Authenticator,
		WaitTimeout:   opts.WaitTimeout,
	}, nil
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *AdmissionRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	admission := GetAdmissionFromContext(r.Context())
	if admission == nil {
		admission = rt.Admission
	}

	ctx, cancel := context.WithTimeout(r.Context(), rt.WaitTimeout)
	defer cancel()

	if err := admission.Acquire(ctx); err != nil {
		if r.Body != nil {
			_ = r.Body.Close() // Per RoundTripper contract.
		}
		return nil, &AdmissionWaitError{Inner: err}
	}

	if auth := rt.authenticator(admission); auth != nil {
		r = CloneHTTPRequest(r) // Per RoundTripper contract.
		auth.PrepareRequest().Apply(r.Header)
	}

	resp, err := rt.Delegate.RoundTrip(r)
	if err != nil {
		return resp, err
	}

	admission.Observe(resp.StatusCode, resp.Header)
	if auth := rt.authenticator(admission); auth != nil {
		// An authenticator that is the admission itself already saw the response.
		if _, ok := admission.(ratelimit.Authenticator); !ok {
			auth.Observe(resp.StatusCode, resp.Header)
		}
	}
	return resp, nil
}

func (rt *AdmissionRoundTripper) authenticator(admission ratelimit.Admission) ratelimit.Authenticator {
	if auth, ok := admission.(ratelimit.Authenticator); ok {
		return auth
	}
	return rt.Authenticator
}

// AdmissionWaitError is returned in RoundTrip method of AdmissionRoundTripper
// when the admission wait is cancelled or times out.
type AdmissionWaitError struct {
	Inner error
}

func (e *AdmissionWaitError) Error() string {
	return fmt.Sprintf("wait for admission: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *AdmissionWaitError) Unwrap() error {
	return e.Inner
}
