package scheduler

import (
	"math"
	"time"
)

type Priority int

const (
	NoPriority Priority = iota
	ImmediatePriority
	UserBlockingPriority
	NormalPriority
	LowPriority
	IdlePriority
)

func (p Priority) String() string {
	switch p {
	case ImmediatePriority:
		return "immediate"
	case UserBlockingPriority:
		return "user-blocking"
	case NormalPriority:
		return "normal"
	case LowPriority:
		return "low"
	case IdlePriority:
		return "idle"
	default:
		return "none"
	}
}

// Timeouts holds how long a task of each priority may wait before it is
// considered expired and runs without yielding.
type Timeouts struct {
	Immediate    time.Duration
	UserBlocking time.Duration
	Normal       time.Duration
	Low          time.Duration
	Idle         time.Duration
}

// never expires in practice, ~292 years
const maxTimeout = time.Duration(math.MaxInt64)

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Immediate:    -1 * time.Millisecond,
		UserBlocking: 250 * time.Millisecond,
		Normal:       5000 * time.Millisecond,
		Low:          10000 * time.Millisecond,
		Idle:         maxTimeout,
	}
}

func (t Timeouts) For(p Priority) time.Duration {
	switch p {
	case ImmediatePriority:
		return t.Immediate
	case UserBlockingPriority:
		return t.UserBlocking
	case LowPriority:
		return t.Low
	case IdlePriority:
		return t.Idle
	default:
		return t.Normal
	}
}

// deadline adds d to start without overflowing for the idle timeout.
func deadline(start time.Time, d time.Duration) time.Time {
	if d == maxTimeout {
		return time.Unix(0, math.MaxInt64)
	}
	return start.Add(d)
}
