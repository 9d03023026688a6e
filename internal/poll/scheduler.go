package poll

import "time"

// Handle cancels one scheduled tick.
type Handle interface {
	Cancel()
}

// Scheduler defers a function by a delay. Sessions hold the returned Handle
// so cancellation can stop a pending tick before it fires.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Handle
}

// NewTimerScheduler returns the production scheduler backed by time.AfterFunc.
func NewTimerScheduler() Scheduler {
	return timerScheduler{}
}

type timerScheduler struct{}

func (timerScheduler) Schedule(d time.Duration, fn func()) Handle {
	return timerHandle{timer: time.AfterFunc(d, fn)}
}

type timerHandle struct {
	timer *time.Timer
}

func (h timerHandle) Cancel() {
	h.timer.Stop()
}
