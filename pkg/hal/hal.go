// Package hal abstracts the digital lines and the time source used by the
// pressure control loop, so the same code drives real pins, TinyGo pins or
// simulated waveforms.
package hal

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a line does not reach the wanted level in time.
var ErrTimeout = errors.New("timed out waiting for line level")

// OutputPin is a digital output line. TinyGo machine.Pin satisfies it.
type OutputPin interface {
	Set(high bool)
}

// InputPin is a digital input line. TinyGo machine.Pin satisfies it.
type InputPin interface {
	Get() bool
}

// Clock is the time source for protocol timing, motor pulses and loop cadence.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock uses the time package.
type SystemClock struct{}

var _ Clock = SystemClock{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep blocks for d.
func (SystemClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// SleepContext blocks for d or until ctx is done.
func (SystemClock) SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ContextSleeper is implemented by clocks whose sleep can be interrupted.
type ContextSleeper interface {
	SleepContext(ctx context.Context, d time.Duration) error
}

// Sleep waits d on clk and reports ctx's error if ctx is done by then.
// Clocks implementing ContextSleeper return as soon as ctx is cancelled.
func Sleep(ctx context.Context, clk Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s, ok := clk.(ContextSleeper); ok {
		return s.SleepContext(ctx, d)
	}
	clk.Sleep(d)
	return ctx.Err()
}

// WaitFor polls pin until it reads want.
// A zero timeout waits forever; a zero poll interval spins without sleeping.
// Cancelling ctx always unblocks the wait.
func WaitFor(ctx context.Context, clk Clock, pin InputPin, want bool, timeout, poll time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = clk.Now().Add(timeout)
	}

	for pin.Get() != want {
		if err := ctx.Err(); err != nil {
			return err
		}
		if timeout > 0 && !clk.Now().Before(deadline) {
			return ErrTimeout
		}
		clk.Sleep(poll)
	}

	return nil
}
