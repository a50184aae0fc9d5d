// Package mono provides a monotonic nanosecond clock for measuring
// durations and deadlines without exposure to wall-clock adjustments. No
// other package in this module imports it: gc, node and transport/broker
// measure ack timeouts, wait-for timeouts and idle teardown with the
// standard time package.
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds elapsed since an arbitrary, process-local
// epoch. Only differences between two NanoTime() calls are meaningful.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }

// Since returns the monotonic duration elapsed since a prior NanoTime() value.
func Since(t int64) time.Duration { return time.Duration(NanoTime() - t) }
