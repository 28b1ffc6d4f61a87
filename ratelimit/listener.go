/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"time"

	"github.com/nskit/nskit/log"
)

// Listener receives signals computed by the limiter from observed responses.
// None of the signals is an error of the admission itself: throttling and malformed
// quota data are absorbed into scheduling, authentication rejection is surfaced so
// the caller can switch back to the plaintext credential path.
//
// Callbacks are invoked outside the admission lock and may be called concurrently.
type Listener interface {
	// OnGrant reports how long an admission waited before it was granted.
	OnGrant(waited time.Duration)

	// OnThrottled reports a server-issued explicit wait. No grant happens before retryAt.
	OnThrottled(retryAt time.Time)

	// OnAuthRejected reports that the server refused the supplied credential.
	// The next attempt needs a different credential path, not a delay.
	OnAuthRejected()

	// OnMalformedQuota reports unusable quota data in a response.
	// The limiter falls back to conservative serialization.
	OnMalformedQuota(err error)
}

// NopListener is a Listener that does nothing.
type NopListener struct{}

func (NopListener) OnGrant(time.Duration)  {}
func (NopListener) OnThrottled(time.Time)  {}
func (NopListener) OnAuthRejected()        {}
func (NopListener) OnMalformedQuota(error) {}

// LogListener logs limiter signals.
type LogListener struct {
	Logger log.FieldLogger
}

// NewLogListener creates a Listener that writes limiter signals to the passed logger.
func NewLogListener(logger log.FieldLogger) *LogListener {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &LogListener{Logger: logger}
}

func (l *LogListener) OnGrant(waited time.Duration) {
	if waited > 0 {
		l.Logger.Debug("admission granted after wait", log.DurationIn(waited, time.Millisecond))
	}
}

func (l *LogListener) OnThrottled(retryAt time.Time) {
	l.Logger.Warn("request quota exhausted, throttling", log.Time("retry_at", retryAt))
}

func (l *LogListener) OnAuthRejected() {
	l.Logger.Warn("authentication rejected, cached credentials invalidated")
}

func (l *LogListener) OnMalformedQuota(err error) {
	l.Logger.Warn("malformed quota data in response, falling back to serialized sending", log.Error(err))
}
