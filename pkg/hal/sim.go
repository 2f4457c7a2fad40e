package hal

import (
	"sync"
	"time"
)

// SimPin is an in-memory line usable as both input and output.
// Listeners registered with OnChange run synchronously on every level change,
// which lets simulated devices react to clock edges before the next sample.
type SimPin struct {
	mu        sync.Mutex
	level     bool
	rises     int
	falls     int
	listeners []func(high bool)
}

var (
	_ OutputPin = (*SimPin)(nil)
	_ InputPin  = (*SimPin)(nil)
)

// NewSimPin creates a line at the given initial level.
func NewSimPin(initial bool) *SimPin {
	return &SimPin{level: initial}
}

// Set drives the line.
func (p *SimPin) Set(high bool) {
	p.mu.Lock()
	if p.level == high {
		p.mu.Unlock()
		return
	}
	p.level = high
	if high {
		p.rises++
	} else {
		p.falls++
	}
	listeners := make([]func(bool), len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	// Invoke listeners without holding the lock
	for _, fn := range listeners {
		fn(high)
	}
}

// Get reads the line.
func (p *SimPin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Rises returns the number of low-to-high transitions seen so far.
func (p *SimPin) Rises() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rises
}

// Falls returns the number of high-to-low transitions seen so far.
func (p *SimPin) Falls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.falls
}

// OnChange registers a listener for level changes.
func (p *SimPin) OnChange(fn func(high bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// FakeClock is a Clock whose Sleep advances virtual time instantly.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
	naps  int
}

var _ Clock = (*FakeClock)(nil)

// NewFakeClock creates a virtual clock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the virtual time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the virtual time by d.
func (c *FakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		return
	}
	c.now = c.now.Add(d)
	c.slept += d
	c.naps++
}

// Slept returns the total virtual time spent sleeping.
func (c *FakeClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}

// Naps returns how many non-zero sleeps were requested.
func (c *FakeClock) Naps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.naps
}
