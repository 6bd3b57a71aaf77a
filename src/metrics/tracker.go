package metrics

import "time"

// DefaultWindow is the width of the TPS window.
const DefaultWindow = 10 * time.Second

// Tracker counts newly created vertices and derives a windowed
// transactions-per-second figure from their observation times.
//
// A Tracker is not safe for concurrent use.
type Tracker struct {
	window  time.Duration
	stamps  []time.Time
	txCount uint64
	tps     float64
}

// NewTracker returns a Tracker with the given window. A non-positive window
// falls back to DefaultWindow.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		window: window,
	}
}

// Observe records one new vertex seen at t.
func (t *Tracker) Observe(at time.Time) {
	t.stamps = append(t.stamps, at)
	t.txCount++
}

// Tick discards the observations older than the window and recomputes the
// TPS figure, which it returns.
func (t *Tracker) Tick(now time.Time) float64 {
	drop := 0
	for drop < len(t.stamps) && now.Sub(t.stamps[drop]) > t.window {
		drop++
	}
	if drop > 0 {
		t.stamps = append(t.stamps[:0], t.stamps[drop:]...)
	}

	t.tps = float64(len(t.stamps)) / t.window.Seconds()

	return t.tps
}

// TPS returns the figure computed by the last Tick.
func (t *Tracker) TPS() float64 {
	return t.tps
}

// TxCount returns the number of vertices observed since the last Reset.
func (t *Tracker) TxCount() uint64 {
	return t.txCount
}

// Pending returns the number of observations currently inside the window.
func (t *Tracker) Pending() int {
	return len(t.stamps)
}

// Window ...
func (t *Tracker) Window() time.Duration {
	return t.window
}

// Reset clears the observations and the counters.
func (t *Tracker) Reset() {
	t.stamps = nil
	t.txCount = 0
	t.tps = 0
}
