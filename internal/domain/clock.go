package domain

import "github.com/jonboulle/clockwork"

// clock is a package-level time source so tests can freeze time via SetClock.
// Timestamped output prefixes and batch durations use it; index computation
// itself never reads the clock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// OutputTimestamp returns the prefix stamped onto output artifact names,
// e.g. "2024-04-26T15-10-consolidated.csv". Colons are avoided so names stay
// portable across filesystems.
func OutputTimestamp() string {
	return clock.Now().UTC().Format("2006-01-02T15-04-")
}
