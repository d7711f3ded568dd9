package sim

import "time"

// DefaultMaxTick bounds a single frame so a stalled tab cannot skip the
// termination check in one giant step.
const DefaultMaxTick = 100 * time.Millisecond

// DefaultEpsilon is the tolerance for finishing an item.
const DefaultEpsilon = 1e-6

func ClampDelta(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

// Clock converts real frame deltas into simulated units.
type Clock struct {
	Scale   float64 // simulated units per real second
	MaxTick time.Duration
}

func (c Clock) maxTick() time.Duration {
	if c.MaxTick <= 0 {
		return DefaultMaxTick
	}
	return c.MaxTick
}

// Clamp bounds one real frame delta, using DefaultMaxTick when MaxTick is
// unset.
func (c Clock) Clamp(d time.Duration) time.Duration {
	return ClampDelta(d, c.maxTick())
}

// SimDelta clamps d and scales it.
func (c Clock) SimDelta(d time.Duration) float64 {
	return c.Clamp(d).Seconds() * c.Scale
}
