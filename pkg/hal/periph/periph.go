// Package periph binds hal lines to Linux GPIO through periph.io.
package periph

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/itohio/dpstep/pkg/hal"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph host drivers. It is safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		state, err := host.Init()
		if err != nil {
			initErr = fmt.Errorf("failed to initialize periph host: %w", err)
			return
		}
		for _, d := range state.Loaded {
			log.Debugf("periph: loaded driver %s", d)
		}
		for _, f := range state.Failed {
			log.Debugf("periph: driver %s failed: %v", f.D, f.Err)
		}
	})
	return initErr
}

// Output is an output line backed by a periph GPIO pin.
type Output struct {
	pin gpio.PinIO
}

var _ hal.OutputPin = (*Output)(nil)

// OpenOutput resolves name (e.g. "GPIO23") and configures it as an output at
// the initial level.
func OpenOutput(name string, initial bool) (*Output, error) {
	p, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Level(initial)); err != nil {
		return nil, fmt.Errorf("failed to configure %s as output: %w", name, err)
	}
	return &Output{pin: p}, nil
}

// Set drives the line. Write errors are logged; the control loop has no
// recovery path for a failed pin write.
func (o *Output) Set(high bool) {
	if err := o.pin.Out(gpio.Level(high)); err != nil {
		log.WithError(err).WithField("pin", o.pin.Name()).Error("gpio write failed")
	}
}

// Input is an input line backed by a periph GPIO pin.
type Input struct {
	pin gpio.PinIO
}

var _ hal.InputPin = (*Input)(nil)

// OpenInput resolves name and configures it as an input with the given pull.
func OpenInput(name string, pull gpio.Pull) (*Input, error) {
	p, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := p.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("failed to configure %s as input: %w", name, err)
	}
	return &Input{pin: p}, nil
}

// Get reads the line.
func (i *Input) Get() bool {
	return i.pin.Read() == gpio.High
}

func lookup(name string) (gpio.PinIO, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %q not found", name)
	}
	return p, nil
}
