package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

func newBackOff(p Policy) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = p.MaxElapsedTime
	exp.Reset()
	return exp
}

// delayFor returns the undithered wait before the given retry, capped at
// MaxInterval.
func delayFor(attempt int, p Policy) time.Duration {
	d := p.InitialInterval
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxInterval {
			return p.MaxInterval
		}
	}
	if d > p.MaxInterval {
		return p.MaxInterval
	}
	return d
}
