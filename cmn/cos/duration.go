package cos

import (
	"time"

	"github.com/openbuildnet/obncore/cmn/nlog"
)

// SimTime is a non-negative count of elementary ticks of the workspace's
// configured time unit (spec.md §3 "simtime_t").
type SimTime = int64

// TimeUnit converts real wall-clock durations to/from simulation ticks. A
// workspace has exactly one TimeUnit, a positive integer number of
// microseconds.
type TimeUnit struct {
	Micros int64
}

func NewTimeUnit(micros int64) TimeUnit {
	if micros <= 0 {
		panic("time_unit must be a positive number of microseconds")
	}
	return TimeUnit{Micros: micros}
}

// ToTicks rounds a real microsecond value to the nearest elementary tick.
// Rounding a strictly positive value to zero is a warning-level event
// (spec.md §3).
func (u TimeUnit) ToTicks(micros float64) SimTime {
	ticks := SimTime(micros/float64(u.Micros) + 0.5)
	if ticks == 0 && micros > 0 {
		nlog.Warningf("time_unit: rounding %.3fus down to 0 ticks (time_unit=%dus)", micros, u.Micros)
	}
	return ticks
}

// FromTicks is the inverse of ToTicks: it converts ticks back to
// microseconds, so ToTicks(FromTicks(x)) == x for every non-negative
// integer x. ToTicks plays the role of get_time_value in spec.md §8
// invariant 7.
func (u TimeUnit) FromTicks(ticks SimTime) float64 {
	return float64(ticks) * float64(u.Micros)
}

// Duration converts ticks to a time.Duration, for use with timers.
func (u TimeUnit) Duration(ticks SimTime) time.Duration {
	return time.Duration(ticks) * time.Duration(u.Micros) * time.Microsecond
}
