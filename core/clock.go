package core

import "time"

// Clock abstracts wall-clock reads and timer sleeps so the polling loop and
// window arithmetic can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until the done channel closes, whichever
	// comes first.
	Sleep(d time.Duration, done <-chan struct{})
}

type realClock struct{}

// RealClock returns a Clock backed by the system clock.
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

func (realClock) Sleep(d time.Duration, done <-chan struct{}) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-done:
	}
}
