package reliability

import "time"

// IsRetryableHTTPStatus classifies provider HTTP status codes that a caller
// may reasonably retry. The engine itself performs a single attempt; this is
// exported for callers implementing their own retry policy.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRateLimitHTTPStatus reports whether a provider status means "slow down"
// rather than "broken". Used to pass rate-limit pressure through to clients.
func IsRateLimitHTTPStatus(code int) bool {
	return code == 429
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
