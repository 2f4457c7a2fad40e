// Package stepper drives a step/direction/enable stepper driver from a
// differential pressure reading.
package stepper

import (
	"errors"
	"fmt"
	"time"

	"github.com/chewxy/math32"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/dpstep/pkg/hal"
)

// ErrInvalidConfig is returned by New for unusable settings.
var ErrInvalidConfig = errors.New("invalid stepper config")

// Direction is the rotation sense.
type Direction int

const (
	// Reverse is commanded for negative pressure (direction line low).
	Reverse Direction = iota
	// Forward is commanded for positive pressure (direction line high).
	Forward
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "reverse"
}

// MarshalText encodes the direction as its name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes "forward" or "reverse".
func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "forward":
		*d = Forward
	case "reverse":
		*d = Reverse
	default:
		return fmt.Errorf("unknown direction %q", text)
	}
	return nil
}

// Config holds the actuation policy and pulse timing.
type Config struct {
	// PulseHalfPeriod is how long the step line stays high, and then low.
	PulseHalfPeriod time.Duration
	// Deadband is the pressure magnitude, inclusive, that commands no motion.
	Deadband float32
	// StepsPerUnit converts pressure magnitude to steps before flooring.
	StepsPerUnit float32
	// MaxSteps caps the steps issued per call.
	MaxSteps int
	// EnableActiveLow drives the enable line low to enable the driver.
	EnableActiveLow bool
}

// DefaultConfig returns the stock policy: 800µs half period, 0.10 kPa
// deadband, 10 steps per kPa, at most 50 steps, active-low enable.
func DefaultConfig() Config {
	return Config{
		PulseHalfPeriod: 800 * time.Microsecond,
		Deadband:        0.10,
		StepsPerUnit:    10,
		MaxSteps:        50,
		EnableActiveLow: true,
	}
}

func (c Config) validate() error {
	switch {
	case c.MaxSteps <= 0:
		return fmt.Errorf("%w: max steps must be positive, got %d", ErrInvalidConfig, c.MaxSteps)
	case c.StepsPerUnit <= 0:
		return fmt.Errorf("%w: steps per unit must be positive, got %g", ErrInvalidConfig, c.StepsPerUnit)
	case c.Deadband < 0:
		return fmt.Errorf("%w: deadband must not be negative, got %g", ErrInvalidConfig, c.Deadband)
	case c.PulseHalfPeriod < 0:
		return fmt.Errorf("%w: pulse half period must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Command is the outcome of one actuation decision.
type Command struct {
	Steps     int       // steps issued
	Direction Direction // meaningful only when Move is set
	Move      bool      // pressure was outside the deadband
	Requested int       // steps before the cap was applied
	Saturated bool      // Requested exceeded MaxSteps
}

// Plan applies the actuation policy to pressure p without touching hardware.
func Plan(p float32, cfg Config) Command {
	if math32.IsNaN(p) || (p >= -cfg.Deadband && p <= cfg.Deadband) {
		return Command{}
	}

	cmd := Command{Move: true, Direction: Reverse}
	if p > 0 {
		cmd.Direction = Forward
	}

	want := math32.Floor(math32.Abs(p) * cfg.StepsPerUnit)
	if want > float32(cfg.MaxSteps) {
		cmd.Steps = cfg.MaxSteps
		cmd.Saturated = true
		// Requested is informational; clamp to keep the int conversion defined
		if math32.IsInf(want, 1) || want > float32(1<<30) {
			cmd.Requested = 1 << 30
		} else {
			cmd.Requested = int(want)
		}
		return cmd
	}

	cmd.Steps = int(want)
	cmd.Requested = cmd.Steps
	return cmd
}

// Motor owns the step, direction and enable lines.
type Motor struct {
	step   hal.OutputPin
	dir    hal.OutputPin
	enable hal.OutputPin
	clk    hal.Clock
	cfg    Config
	log    log.FieldLogger

	direction Direction
	enabled   bool
}

// New creates a Motor. The enable line may be nil when the driver is
// hard-wired enabled.
func New(step, dir, enable hal.OutputPin, clk hal.Clock, cfg Config, logger log.FieldLogger) (*Motor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = hal.SystemClock{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Motor{
		step:   step,
		dir:    dir,
		enable: enable,
		clk:    clk,
		cfg:    cfg,
		log:    logger.WithField("component", "stepper"),
	}, nil
}

// Init drives step and direction low and asserts enable. The driver stays
// enabled for the life of the process.
func (m *Motor) Init() {
	m.step.Set(false)
	m.dir.Set(false)
	m.direction = Reverse
	if m.enable != nil {
		m.enable.Set(!m.cfg.EnableActiveLow)
	}
	m.enabled = true
	m.log.Debug("driver enabled")
}

// Actuate plans a command for p and executes it, blocking for every pulse.
// Inside the deadband nothing moves and the direction line is unchanged.
func (m *Motor) Actuate(p float32) Command {
	cmd := Plan(p, m.cfg)
	if !cmd.Move {
		return cmd
	}

	m.setDirection(cmd.Direction)
	for i := 0; i < cmd.Steps; i++ {
		m.pulse()
	}

	if cmd.Saturated {
		m.log.WithFields(log.Fields{
			"pressure":  p,
			"requested": cmd.Requested,
			"steps":     cmd.Steps,
		}).Warn("step count saturated")
	}

	return cmd
}

// Direction returns the last commanded direction.
func (m *Motor) Direction() Direction {
	return m.direction
}

// Enabled reports whether Init has asserted the enable line.
func (m *Motor) Enabled() bool {
	return m.enabled
}

func (m *Motor) setDirection(d Direction) {
	m.dir.Set(d == Forward)
	m.direction = d
}

func (m *Motor) pulse() {
	m.step.Set(true)
	m.clk.Sleep(m.cfg.PulseHalfPeriod)
	m.step.Set(false)
	m.clk.Sleep(m.cfg.PulseHalfPeriod)
}
