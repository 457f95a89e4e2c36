// Package pgmtime provides a monotonic microsecond clock with a selectable
// source, mirroring the PGM reference implementation's init-time choice
// between gettimeofday, clock_gettime(MONOTONIC), RDTSC, HPET, and similar
// platform clocks (spec.md §4.3). Go's runtime already gives every process a
// monotonic clock reading via time.Now(), so the "source" here is a
// documented selection rather than a real hardware dispatch -- but the
// calibration, saturation, and wall-time-offset behavior it must provide are
// preserved.
package pgmtime

import (
	"fmt"
	"sync"
	"time"
)

// Source names the clock backing a Clock, echoing the reference
// implementation's enumerated clock choices (spec.md §4.3). Only Monotonic
// is meaningfully different in Go; the others are documented aliases kept so
// callers porting configuration from the C implementation have a home for
// their preference.
type Source int

const (
	// Monotonic uses the Go runtime's monotonic clock reading (the
	// default, equivalent to clock_gettime(CLOCK_MONOTONIC)).
	Monotonic Source = iota
	// GetTimeOfDay mirrors gettimeofday(): wall-clock derived, coarser
	// and NOT guaranteed non-decreasing on its own, so Clock still
	// applies its saturation guard.
	GetTimeOfDay
	// HighResTimer mirrors RDTSC/QueryPerformanceCounter-style high
	// resolution counters requiring a calibration step.
	HighResTimer
)

// String names a clock source.
func (s Source) String() string {
	switch s {
	case Monotonic:
		return "MONOTONIC"
	case GetTimeOfDay:
		return "GETTIMEOFDAY"
	case HighResTimer:
		return "HIGHRESTIMER"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// Clock is a monotonically non-decreasing microsecond clock. The zero value
// is not usable; construct with New.
type Clock struct {
	source Source

	mu       sync.Mutex
	last     int64     // last returned microsecond value, for saturation
	epoch    time.Time // wall-clock instant captured at calibration
	epochMono time.Time
}

// New calibrates a Clock against the wall clock once, the way the reference
// implementation captures a wall-time offset at init so callers can later
// convert monotonic readings back to a time.Time. The Source parameter
// documents intent; Go provides no portable way to pick a different
// hardware counter, so every source calibrates identically.
func New(source Source) *Clock {
	now := time.Now()
	return &Clock{
		source:    source,
		epoch:     now,
		epochMono: now,
	}
}

// Source reports which clock source this Clock was created with.
func (c *Clock) Source() Source {
	return c.source
}

// NowMicros returns monotonic microseconds since the Clock was created.
// Successive calls never return a smaller value than a previous call, even
// if the underlying wall clock steps backwards (NTP step, VM migration);
// this mirrors the reference implementation's "saturates on backward steps"
// contract (spec.md §4.3).
func (c *Clock) NowMicros() int64 {
	elapsed := time.Since(c.epochMono).Microseconds()

	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed < c.last {
		elapsed = c.last
	}
	c.last = elapsed
	return elapsed
}

// ToWallClock converts a NowMicros() reading back to an absolute time, using
// the wall-time offset captured at New().
func (c *Clock) ToWallClock(micros int64) time.Time {
	return c.epoch.Add(time.Duration(micros) * time.Microsecond)
}
