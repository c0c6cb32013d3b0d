package realtime

import "time"

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop cancels the callback and reports whether it was still pending.
	Stop() bool
}

// Scheduler is the time source of a Client. Tests swap it for a virtual clock.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type systemScheduler struct{}

// SystemScheduler returns a Scheduler backed by the runtime timers.
func SystemScheduler() Scheduler {
	return systemScheduler{}
}

func (systemScheduler) Now() time.Time {
	return time.Now()
}

func (systemScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
