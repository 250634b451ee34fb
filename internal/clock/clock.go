package clock

import "time"

// Clock allows injecting time into the pipeline steps so cooldown windows
// and send delays are testable.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func (systemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Fixed is a clock pinned to a single instant. Sleep advances it, which lets
// tests assert on inter-send delays without waiting.
type Fixed struct {
	now time.Time

	Slept []time.Duration
}

// NewFixed returns a clock that reports the given instant.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t.UTC()}
}

func (f *Fixed) Now() time.Time {
	return f.now
}

func (f *Fixed) Sleep(d time.Duration) {
	f.Slept = append(f.Slept, d)
	f.now = f.now.Add(d)
}

// Advance moves the clock forward without recording a sleep.
func (f *Fixed) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}
