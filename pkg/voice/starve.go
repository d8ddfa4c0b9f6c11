package voice

import "time"

// starveDetector counts unfulfilled device reads within a rolling window
type starveDetector struct {
	windowStart time.Time
	count       int
}

// tick records recent unfulfilled reads at now and reports whether the
// threshold was crossed within the current window. Quiet ticks are ignored
// and a window older than period restarts without counting.
func (d *starveDetector) tick(now time.Time, recent int, period time.Duration, threshold int) bool {
	if recent <= 0 {
		return false
	}
	if now.Sub(d.windowStart) > period {
		d.windowStart = now
		d.count = 0
		return false
	}
	d.count += recent
	if d.count > threshold {
		d.windowStart = now
		d.count = 0
		return true
	}
	return false
}

func (d *starveDetector) reset() {
	*d = starveDetector{}
}
