// Package backoff produces bounded, jittered retry delays, grounded on
// the decorrelated-jitter pattern in pkg/twitch's jitteredBackoff but
// generalized into a reusable policy type per spec: delay(attempt) =
// clamp(base*2^attempt, 0, max) +/- jitterFraction*delay.
package backoff

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Policy computes retry delays for successive attempts. Policies are
// immutable and safe for concurrent use; callers own their own attempt
// counter and reset it to 0 on every observed success.
type Policy struct {
	Base           time.Duration
	Max            time.Duration
	JitterFraction float64
}

// Default is base 2s / max 300s / jitter 0.30, the policy used by the
// ObsHealthSupervisor reconnect loop and the EventCoordinator's IRC
// fallback retry.
var Default = Policy{Base: 2 * time.Second, Max: 300 * time.Second, JitterFraction: 0.30}

// Fast is base 1s / max 30s / jitter 0.30, used by TwitchHelix's 5xx/
// transport-error retry.
var Fast = Policy{Base: 1 * time.Second, Max: 30 * time.Second, JitterFraction: 0.30}

// Slow is base 5s / max 600s / jitter 0.30.
var Slow = Policy{Base: 5 * time.Second, Max: 600 * time.Second, JitterFraction: 0.30}

const minDelay = time.Millisecond

// Delay returns the delay to wait before the given attempt (0-indexed).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Cap to avoid overflow in the shift; Max already bounds the result.
	if attempt > 62 {
		attempt = 62
	}

	delay := p.Base * time.Duration(int64(1)<<uint(attempt))
	if delay <= 0 || delay > p.Max {
		delay = p.Max
	}

	jittered := delay + jitter(delay, p.JitterFraction)
	if jittered < minDelay {
		jittered = minDelay
	}
	return jittered
}

// jitter returns a value uniformly distributed in
// [-fraction*delay, +fraction*delay], using crypto/rand so concurrent
// callers never observe correlated jitter.
func jitter(delay time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || delay <= 0 {
		return 0
	}

	span := int64(float64(delay) * fraction * 2)
	if span <= 0 {
		return 0
	}

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0
	}

	return time.Duration(n.Int64()) - time.Duration(float64(delay)*fraction)
}
