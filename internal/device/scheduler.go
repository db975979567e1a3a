package device

import "time"

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call prevented it from running.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ReconnectPolicy controls retries after a disconnect. A zero BaseDelay
// disables reconnection.
type ReconnectPolicy struct {
	// BaseDelay is the upper bound of the uniformly random wait before each
	// reconnect attempt.
	BaseDelay time.Duration
}

// Enabled reports whether the client reconnects after a disconnect.
func (p ReconnectPolicy) Enabled() bool {
	return p.BaseDelay > 0
}

// Delay scales BaseDelay by a sample from [0, 1).
func (p ReconnectPolicy) Delay(sample float64) time.Duration {
	if sample < 0 {
		sample = 0
	}
	if sample > 1 {
		sample = 1
	}
	return time.Duration(sample * float64(p.BaseDelay))
}
