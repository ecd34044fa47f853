// Package reconnect decides whether a disconnected device is worth
// another connection attempt.
package reconnect

import "time"

// Decision is the outcome of consulting the policy after a disconnect.
type Decision struct {
	// Retry is true while the attempt budget has not been exhausted.
	Retry bool

	// Delay is how long to wait before the next connection attempt.
	// Zero when Retry is false.
	Delay time.Duration
}

// Policy grants a fixed number of reconnection attempts per disconnect
// streak, each after the same delay. The attempt counter lives on the
// device slot; the policy itself is stateless.
type Policy struct {
	maxAttempts int
	delay       time.Duration
}

// New creates a policy allowing maxAttempts retries spaced by delay.
func New(maxAttempts int, delay time.Duration) *Policy {
	return &Policy{maxAttempts: maxAttempts, delay: delay}
}

// OnDisconnect returns Retry while attempts made so far are below the
// budget, otherwise GiveUp (Retry=false). The caller increments the
// device's attempt counter on every Retry outcome and resets it to zero
// on the next successful connection.
func (p *Policy) OnDisconnect(attempts int) Decision {
	if attempts < p.maxAttempts {
		return Decision{Retry: true, Delay: p.delay}
	}
	return Decision{}
}

// MaxAttempts returns the configured attempt budget.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}
