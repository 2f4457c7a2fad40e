// Package control sequences calibration and the read, filter, compute,
// actuate and report cycle of the differential pressure loop.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/itohio/dpstep/pkg/calibration"
	"github.com/itohio/dpstep/pkg/filter"
	"github.com/itohio/dpstep/pkg/hal"
	"github.com/itohio/dpstep/pkg/hx710"
	"github.com/itohio/dpstep/pkg/pressure"
	"github.com/itohio/dpstep/pkg/stepper"
)

var (
	// ErrNotCalibrated is returned by Step before Calibrate has succeeded.
	ErrNotCalibrated = errors.New("loop is not calibrated")
	// ErrAlreadyCalibrated is returned by a second Calibrate call.
	ErrAlreadyCalibrated = errors.New("loop is already calibrated")
)

// State is the loop's lifecycle state.
type State int

const (
	Calibrating State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Calibrating:
		return "calibrating"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sensor reads raw codes from the two channels.
type Sensor interface {
	Read(ctx context.Context, ch hx710.Channel) (hx710.Code, error)
}

// Actuator turns a pressure into motion.
type Actuator interface {
	Actuate(p float32) stepper.Command
}

// Config holds the loop cadence and conversion scale.
type Config struct {
	Interval time.Duration // delay before every iteration
	Scale    float32       // raw counts per kPa
}

// Report describes one completed iteration.
type Report struct {
	Time      time.Time
	Iteration uint64
	Raw       [hx710.NumChannels]hx710.Code
	Filtered  [hx710.NumChannels]uint32
	Offsets   calibration.Offsets
	Pressure  float32 // kPa
	Command   stepper.Command
}

// Loop owns the filter state, offsets and collaborators of one control loop.
// It is not safe for concurrent Step calls.
type Loop struct {
	sensor Sensor
	motor  Actuator
	clk    hal.Clock
	cfg    Config
	log    log.FieldLogger

	filters   filter.Bank
	offsets   calibration.Offsets
	state     State
	iteration uint64

	cbMu           sync.RWMutex
	reportHandlers []func(Report)
	stateHandlers  []func(State)
}

// New creates a loop in the Calibrating state.
func New(sensor Sensor, motor Actuator, clk hal.Clock, cfg Config, logger log.FieldLogger) *Loop {
	if clk == nil {
		clk = hal.SystemClock{}
	}
	if cfg.Scale == 0 {
		cfg.Scale = pressure.DefaultScale
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Loop{
		sensor:  sensor,
		motor:   motor,
		clk:     clk,
		cfg:     cfg,
		log:     logger.WithField("component", "control"),
		filters: filter.NewBank(hx710.NumChannels),
		state:   Calibrating,
	}
}

// OnReport registers a callback invoked after every iteration.
// Callbacks run on the loop goroutine and delay the next iteration.
func (l *Loop) OnReport(cb func(Report)) {
	l.cbMu.Lock()
	defer l.cbMu.Unlock()
	l.reportHandlers = append(l.reportHandlers, cb)
}

// OnStateChange registers a callback invoked on entry to each state,
// including the initial Calibrating state when Calibrate starts.
func (l *Loop) OnStateChange(cb func(State)) {
	l.cbMu.Lock()
	defer l.cbMu.Unlock()
	l.stateHandlers = append(l.stateHandlers, cb)
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return l.state
}

// Offsets returns the calibrated offsets (zero before calibration).
func (l *Loop) Offsets() calibration.Offsets {
	return l.offsets
}

// Calibrate primes both channel filters and captures their offsets, then
// switches to Running. It may only succeed once.
func (l *Loop) Calibrate(ctx context.Context) error {
	if l.state != Calibrating {
		return ErrAlreadyCalibrated
	}
	l.notifyState(Calibrating)

	offsets, err := calibration.Calibrate(ctx, l.sensor, l.filters, l.log)
	if err != nil {
		return err
	}

	l.offsets = offsets
	l.state = Running
	l.log.WithField("offsets", offsets).Info("calibration complete")
	l.notifyState(Running)

	return nil
}

// Step waits one interval and runs a single iteration. Both filters are
// updated only once both channels have been read, and nothing is actuated
// if ctx is done before the motor would move.
func (l *Loop) Step(ctx context.Context) (Report, error) {
	if l.state != Running {
		return Report{}, ErrNotCalibrated
	}
	if err := hal.Sleep(ctx, l.clk, l.cfg.Interval); err != nil {
		return Report{}, err
	}

	var r Report
	for _, ch := range hx710.Channels {
		code, err := l.sensor.Read(ctx, ch)
		if err != nil {
			return Report{}, err
		}
		r.Raw[ch] = code
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	for _, ch := range hx710.Channels {
		r.Filtered[ch] = l.filters.Update(int(ch), uint32(r.Raw[ch]))
	}

	r.Offsets = l.offsets
	r.Pressure = pressure.Compute(r.Filtered[hx710.ChannelA], r.Filtered[hx710.ChannelB], l.offsets, l.cfg.Scale)
	r.Command = l.motor.Actuate(r.Pressure)

	l.iteration++
	r.Iteration = l.iteration
	r.Time = l.clk.Now()

	l.log.WithFields(log.Fields{
		"iteration": r.Iteration,
		"pressure":  r.Pressure,
		"steps":     r.Command.Steps,
		"direction": r.Command.Direction,
	}).Debug("iteration")

	l.notifyReport(r)

	return r, nil
}

// Run calibrates if needed and then iterates until ctx is cancelled.
// An iteration whose sensor read times out is skipped without actuation;
// any other error ends the loop.
func (l *Loop) Run(ctx context.Context) error {
	if l.state == Calibrating {
		if err := l.Calibrate(ctx); err != nil {
			return fmt.Errorf("calibration failed: %w", err)
		}
	}

	for {
		_, err := l.Step(ctx)
		switch {
		case err == nil:
		case errors.Is(err, hal.ErrTimeout):
			l.log.WithError(err).Warn("sensor not ready, iteration skipped")
		default:
			return err
		}
	}
}

func (l *Loop) notifyReport(r Report) {
	l.cbMu.RLock()
	handlers := make([]func(Report), len(l.reportHandlers))
	copy(handlers, l.reportHandlers)
	l.cbMu.RUnlock()

	for _, cb := range handlers {
		if cb != nil {
			cb(r)
		}
	}
}

func (l *Loop) notifyState(s State) {
	l.cbMu.RLock()
	handlers := make([]func(State), len(l.stateHandlers))
	copy(handlers, l.stateHandlers)
	l.cbMu.RUnlock()

	for _, cb := range handlers {
		if cb != nil {
			cb(s)
		}
	}
}
