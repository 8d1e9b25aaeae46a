package client

import "time"

// Backoff returns min(base * 2^attempt, limit).
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		if d >= limit {
			return limit
		}
		d *= 2
	}
	return min(d, limit)
}
