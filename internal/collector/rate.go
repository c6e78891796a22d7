package collector

import "time"

// RateSampler converts successive readings of a monotonically increasing
// counter into a per-second rate.
type RateSampler struct {
	last   uint64
	lastAt time.Time
	primed bool
}

// Observe records a reading and returns the rate since the previous one.
// It returns 0 for the first reading, when time has not advanced, and when
// the counter went backwards (reset or wrap).
func (r *RateSampler) Observe(value uint64, at time.Time) float64 {
	defer func() {
		r.last = value
		r.lastAt = at
		r.primed = true
	}()

	if !r.primed {
		return 0
	}
	elapsed := at.Sub(r.lastAt).Seconds()
	if elapsed <= 0 || value < r.last {
		return 0
	}
	return float64(value-r.last) / elapsed
}
