package ingest

import "time"

// driftRingCapacity bounds the rolling drift window. Four samples cover two
// minutes of capture at the nominal segment period, enough to smooth jitter
// without chasing long-term clock skew.
const driftRingCapacity = 4

// DriftRing is a fixed-capacity ring of signed clock-drift samples. Adding a
// fifth sample evicts the oldest. The zero value is ready to use.
type DriftRing struct {
	samples [driftRingCapacity]time.Duration
	next    int
	n       int
}

// Add records one drift observation.
func (r *DriftRing) Add(d time.Duration) {
	r.samples[r.next] = d
	r.next = (r.next + 1) % driftRingCapacity
	if r.n < driftRingCapacity {
		r.n++
	}
}

// Len returns the number of retained samples.
func (r *DriftRing) Len() int {
	return r.n
}

// Mean returns the average of the retained samples, zero when empty.
func (r *DriftRing) Mean() time.Duration {
	if r.n == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < r.n; i++ {
		sum += r.samples[i]
	}
	return sum / time.Duration(r.n)
}
