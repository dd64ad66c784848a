package ingest

import "time"

// FlapDetector decides whether early record failures amount to a tight crash
// loop. It only speaks within the [MinUptime, MaxUptime] window after service
// start; before it the sample is too small, after it the service is
// considered established.
type FlapDetector struct {
	MinUptime time.Duration
	MaxUptime time.Duration
	// Ratio is the failures-per-second threshold.
	Ratio float64
}

// Tripped reports whether failedRecords over uptime crosses the threshold.
func (d FlapDetector) Tripped(failedRecords int, uptime time.Duration) bool {
	if d.Ratio <= 0 {
		return false
	}
	if uptime < d.MinUptime || uptime > d.MaxUptime {
		return false
	}
	return float64(failedRecords)/uptime.Seconds() >= d.Ratio
}
