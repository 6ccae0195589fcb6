package twitch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// ratePerMinute enforces Twitch's Helix rate limit of 800 requests per
// minute per the app access token's bucket.
// See: https://dev.twitch.tv/docs/api/guide/#rate-limits
const ratePerMinute = 800

// newRateLimiter returns a token-bucket limiter refilling continuously
// at ratePerMinute/minute, with a burst equal to the full bucket so a
// cold start doesn't immediately stall.
func newRateLimiter() *rate.Limiter {
	perSecond := rate.Limit(float64(ratePerMinute) / time.Minute.Seconds())
	return rate.NewLimiter(perSecond, ratePerMinute)
}

// waitForToken blocks until a request token is available or ctx is
// canceled.
func waitForToken(ctx context.Context, limiter *rate.Limiter) error {
	return limiter.Wait(ctx)
}
