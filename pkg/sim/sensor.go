// Package sim simulates the differential pressure rig: HX710B sensors that
// answer the bit-clocked protocol on simulated lines, and a plant whose
// pressure responds to stepper motion.
package sim

import (
	"sync"

	"github.com/itohio/dpstep/pkg/hal"
	"github.com/itohio/dpstep/pkg/hx710"
)

// Source produces the next signed 24-bit conversion value.
type Source func() int32

// Sensor is a simulated HX710B data line. Attach it to a clock SimPin and
// hand it to the reader as the channel's input line.
type Sensor struct {
	mu      sync.Mutex
	source  Source
	word    uint32
	pulses  int
	clockHi bool
	stalled bool
	reads   int
}

var _ hal.InputPin = (*Sensor)(nil)

// NewSensor creates a sensor clocked by sck. The first conversion is loaded
// the first time the data line is polled.
func NewSensor(sck *hal.SimPin, source Source) *Sensor {
	s := &Sensor{
		source: source,
		pulses: hx710.Bits + 1, // busy until the first conversion is loaded
	}
	sck.OnChange(s.clock)
	return s
}

// Constant returns a Source that always yields v.
func Constant(v int32) Source {
	return func() int32 { return v }
}

// Sequence returns a Source that yields values in order and then repeats the
// last one.
func Sequence(values ...int32) Source {
	i := 0
	return func() int32 {
		if len(values) == 0 {
			return 0
		}
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}

// Stall keeps the data line high so the sensor never reports ready.
func (s *Sensor) Stall(stalled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalled = stalled
}

// Conversions returns how many conversions have been loaded.
func (s *Sensor) Conversions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Get returns the data line level.
func (s *Sensor) Get() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stalled {
		return true
	}

	// Start the next conversion once the previous one has been clocked out
	// and the clock has returned low.
	if s.pulses > hx710.Bits && !s.clockHi {
		s.word = uint32(s.source()) & hx710.Mask
		s.pulses = 0
		s.reads++
	}

	switch {
	case s.pulses == 0:
		return false // ready
	case s.pulses <= hx710.Bits:
		return s.word&(1<<(hx710.Bits-s.pulses)) != 0
	default:
		return true // busy
	}
}

func (s *Sensor) clock(high bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clockHi = high
	if high && !s.stalled {
		s.pulses++
	}
}
