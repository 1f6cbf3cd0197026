package sync

import (
	"math"
	"math/rand"
)

const (
	minDelayMs = 1000
	maxDelayMs = 5 * 60 * 1000
)

// NextDelay computes the retry delay following previousDelayMs: the base
// doubles up to five minutes, with ±20% jitter so peers recovering from the
// same outage do not resync in lockstep. The result never drops below one
// second.
func NextDelay(previousDelayMs int) int {
	base := minDelayMs
	if previousDelayMs != 0 {
		base = previousDelayMs * 2
		if base > maxDelayMs {
			base = maxDelayMs
		}
	}
	jitter := float64(base) * 0.2 * (rand.Float64()*2 - 1)
	delay := int(math.Round(float64(base) + jitter))
	if delay < minDelayMs {
		delay = minDelayMs
	}
	return delay
}
