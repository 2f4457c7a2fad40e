package hal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countdownPin reads high until it has been polled n times.
type countdownPin struct {
	n int
}

func (p *countdownPin) Get() bool {
	if p.n > 0 {
		p.n--
		return true
	}
	return false
}

func TestWaitFor_AlreadyAtLevel(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	pin := NewSimPin(false)

	err := WaitFor(context.Background(), clk, pin, false, time.Millisecond, time.Microsecond)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), clk.Slept())
}

func TestWaitFor_EventuallyReady(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	pin := &countdownPin{n: 5}

	err := WaitFor(context.Background(), clk, pin, false, time.Second, 10*time.Microsecond)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Microsecond, clk.Slept())
}

func TestWaitFor_Timeout(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	pin := NewSimPin(true)

	err := WaitFor(context.Background(), clk, pin, false, time.Millisecond, 100*time.Microsecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, time.Millisecond, clk.Slept())
}

func TestWaitFor_ContextCancelled(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	pin := NewSimPin(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// No timeout: only the context can end the wait
	err := WaitFor(ctx, clk, pin, false, 0, time.Microsecond)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSimPin_EdgesAndListeners(t *testing.T) {
	pin := NewSimPin(false)

	var seen []bool
	pin.OnChange(func(high bool) { seen = append(seen, high) })

	pin.Set(true)
	pin.Set(true) // no change
	pin.Set(false)
	pin.Set(true)

	assert.Equal(t, 2, pin.Rises())
	assert.Equal(t, 1, pin.Falls())
	assert.Equal(t, []bool{true, false, true}, seen)
	assert.True(t, pin.Get())
}

func TestFakeClock_Sleep(t *testing.T) {
	start := time.Unix(100, 0)
	clk := NewFakeClock(start)

	clk.Sleep(0)
	clk.Sleep(-time.Second)
	clk.Sleep(500 * time.Millisecond)

	assert.Equal(t, start.Add(500*time.Millisecond), clk.Now())
	assert.Equal(t, 1, clk.Naps())
}

func TestSleep_FakeClock(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))

	require.NoError(t, Sleep(context.Background(), clk, 500*time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, clk.Slept())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, clk, time.Second), context.Canceled)
	assert.Equal(t, 500*time.Millisecond, clk.Slept(), "cancelled context must not sleep")
}

func TestSleep_SystemClockUnblocksOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Sleep(ctx, SystemClock{}, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSleep_SystemClockElapses(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), SystemClock{}, time.Millisecond))
	assert.NoError(t, Sleep(context.Background(), SystemClock{}, 0))
}
