package invoicing

import (
	"math"
	"math/rand/v2"
	"time"
)

// ExponentialBackoff computes retry delays for failed outbox jobs. Jitter
// spreads retries so a provider outage does not produce synchronized bursts.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// NextInterval returns the delay before the given retry attempt; attempt
// starts at 1 for the first retry.
func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial == 0 {
		initial = time.Minute
	}
	maxInterval := e.MaxInterval
	if maxInterval == 0 {
		maxInterval = time.Hour
	}
	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))

	if e.JitterFactor > 0 {
		jitter := (rand.Float64()*2 - 1) * e.JitterFactor
		interval *= 1 + jitter
	}

	if interval > float64(maxInterval) {
		interval = float64(maxInterval)
	}

	return time.Duration(interval)
}
