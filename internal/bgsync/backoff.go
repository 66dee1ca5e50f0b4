package bgsync

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Backoff spaces background retries.
type Backoff interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles Base per attempt up to Max. With Jitter set the delay is
// drawn from [d/2, d) so many edges do not retry in lockstep.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
}

// NextDelay returns the wait before retry number attempt (0-based).
func (b ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		if b.Max > 0 && d >= b.Max/2 {
			d = b.Max
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if !b.Jitter {
		return d
	}
	half := d / 2
	return half + randomBelow(d-half)
}

func randomBelow(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
