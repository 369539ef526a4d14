// Package timer is the kernel's time source: a monotonic tick counter running
// at a fixed frequency from boot, converted to micro- and milliseconds.
package timer

import (
	"math"
	"math/bits"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	microPerSec = 1_000_000
	milliPerSec = 1_000
)

type Timer struct {
	clk  clock.Clock
	boot time.Time
	freq uint64
}

// New starts a tick counter at freq Hz, reading time from clk.
func New(clk clock.Clock, freq uint64) *Timer {
	return &Timer{
		clk:  clk,
		boot: clk.Now(),
		freq: freq,
	}
}

// Ticks returns the number of ticks since boot.
func (t *Timer) Ticks() uint64 {
	d := t.clk.Since(t.boot)
	if d < 0 {
		return 0
	}

	return scale(uint64(d), t.freq, uint64(time.Second))
}

// Micros converts the tick count, so it only advances a whole tick at a time.
func (t *Timer) Micros() uint64 {
	return scale(t.Ticks(), microPerSec, t.freq)
}

func (t *Timer) Millis() uint64 {
	return scale(t.Ticks(), milliPerSec, t.freq)
}

// scale returns x*num/den without overflowing the intermediate product.
func scale(x, num, den uint64) uint64 {
	hi, lo := bits.Mul64(x, num)
	if hi >= den {
		return math.MaxUint64
	}

	q, _ := bits.Div64(hi, lo, den)
	return q
}
