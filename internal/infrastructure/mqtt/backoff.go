package mqtt

import "time"

// backoffMultiplier is fixed: each failed attempt doubles the delay.
const backoffMultiplier = 2

// Backoff computes reconnect delays.
//
//	Delay(n) = min(Initial × 2^(n−1), Max)   for n ≥ 1
//
// The zero value is not useful; build one from config.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns the wait before the retry following failed attempt n.
// Attempts below 1 are treated as 1. The result never exceeds Max and
// never overflows for large n.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Initial
	for i := 1; i < attempt; i++ {
		if d >= b.Max {
			break
		}
		d *= backoffMultiplier
	}
	if d > b.Max {
		return b.Max
	}
	return d
}
