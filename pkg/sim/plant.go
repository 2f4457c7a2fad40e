package sim

import (
	"math"
	"sync"

	"github.com/itohio/dpstep/pkg/hal"
)

// PlantConfig describes the simulated rig.
type PlantConfig struct {
	BaseA      int32   // at-rest raw value of channel A
	BaseB      int32   // at-rest raw value of channel B
	Scale      float64 // raw counts per kPa
	KPaPerStep float64 // pressure relieved by one forward step
	NoiseLevel float64 // noise amplitude in raw counts
}

// Plant couples a pressure disturbance with the stepper position.
// Channel A sees the differential pressure, channel B only its base value.
type Plant struct {
	cfg PlantConfig

	mu          sync.Mutex
	disturbance float64 // kPa
	position    int     // steps, positive = forward
	forward     bool
	samples     int
}

// NewPlant creates a plant driven by the motor step and direction lines.
func NewPlant(cfg PlantConfig, step, dir *hal.SimPin) *Plant {
	p := &Plant{
		cfg:     cfg,
		forward: dir.Get(),
	}
	dir.OnChange(func(high bool) {
		p.mu.Lock()
		p.forward = high
		p.mu.Unlock()
	})
	step.OnChange(func(high bool) {
		if !high {
			return
		}
		p.mu.Lock()
		if p.forward {
			p.position++
		} else {
			p.position--
		}
		p.mu.Unlock()
	})
	return p
}

// SetDisturbance sets the pressure applied to channel A, in kPa.
func (p *Plant) SetDisturbance(kpa float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disturbance = kpa
}

// Position returns the accumulated motor position in steps.
func (p *Plant) Position() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Pressure returns the current differential pressure in kPa.
func (p *Plant) Pressure() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pressure()
}

func (p *Plant) pressure() float64 {
	return p.disturbance - float64(p.position)*p.cfg.KPaPerStep
}

// SourceA returns the conversion source for channel A.
func (p *Plant) SourceA() Source {
	return func() int32 {
		p.mu.Lock()
		defer p.mu.Unlock()
		return clamp24(float64(p.cfg.BaseA) + p.pressure()*p.cfg.Scale + p.noise())
	}
}

// SourceB returns the conversion source for channel B.
func (p *Plant) SourceB() Source {
	return func() int32 {
		p.mu.Lock()
		defer p.mu.Unlock()
		return clamp24(float64(p.cfg.BaseB) + p.noise())
	}
}

// noise is a deterministic pseudo-noise term; callers hold the lock.
func (p *Plant) noise() float64 {
	p.samples++
	t := float64(p.samples)
	return (math.Sin(t*0.7) + math.Cos(t*1.3)) * p.cfg.NoiseLevel * 0.5
}

func clamp24(v float64) int32 {
	const maxCode, minCode = 1<<23 - 1, -(1 << 23)
	switch {
	case v > maxCode:
		return maxCode
	case v < minCode:
		return minCode
	default:
		return int32(math.Round(v))
	}
}
