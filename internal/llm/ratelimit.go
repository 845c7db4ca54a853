package llm

import (
	"time"

	"golang.org/x/time/rate"
)

// DefaultRequestsPerMinute applies when Config.RateLimit is unset.
const DefaultRequestsPerMinute = 60

// newRateLimiter returns a token bucket that starts full and refills at
// requestsPerMinute.
func newRateLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
}
