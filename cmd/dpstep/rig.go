package main

import (
	"io"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"

	"github.com/itohio/dpstep/pkg/config"
	"github.com/itohio/dpstep/pkg/control"
	"github.com/itohio/dpstep/pkg/display"
	"github.com/itohio/dpstep/pkg/hal"
	"github.com/itohio/dpstep/pkg/hal/periph"
	"github.com/itohio/dpstep/pkg/hx710"
	"github.com/itohio/dpstep/pkg/sim"
	"github.com/itohio/dpstep/pkg/stepper"
	"github.com/itohio/dpstep/pkg/telemetry/mqtt"
	"github.com/itohio/dpstep/pkg/telemetry/rs485"
)

// lines are the hardware lines of the rig.
type lines struct {
	sck, step, dir, enable hal.OutputPin
	doutA, doutB           hal.InputPin
	de                     hal.OutputPin // optional RS485 driver enable
}

// rig is a fully wired control loop with its sinks.
type rig struct {
	loop    *control.Loop
	plant   *sim.Plant
	closers []func()
}

// Close releases telemetry sinks.
func (r *rig) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func buildRig(cfg *config.Config, simulate bool, out io.Writer) (*rig, error) {
	clk := hal.SystemClock{}
	r := &rig{}

	var (
		l   lines
		err error
	)
	if simulate {
		l, r.plant = simLines(cfg)
	} else {
		l, err = gpioLines(cfg)
		if err != nil {
			return nil, err
		}
	}

	reader := hx710.New(l.sck, l.doutA, l.doutB, clk, hx710.Config{
		HalfPeriod:   cfg.Sensor.HalfPeriod,
		ReadyTimeout: cfg.Sensor.ReadyTimeout,
		PollInterval: cfg.Sensor.PollInterval,
		Mode:         hx710.Mode(cfg.Sensor.Mode),
	}, nil)

	motor, err := stepper.New(l.step, l.dir, l.enable, clk, stepper.Config{
		PulseHalfPeriod: cfg.Motor.PulseHalfPeriod,
		Deadband:        cfg.Motor.Deadband,
		StepsPerUnit:    cfg.Motor.StepsPerUnit,
		MaxSteps:        cfg.Motor.MaxSteps,
		EnableActiveLow: *cfg.Motor.EnableActiveLow,
	}, nil)
	if err != nil {
		return nil, err
	}
	motor.Init()

	r.loop = control.New(reader, motor, clk, control.Config{
		Interval: cfg.Loop.Interval,
		Scale:    cfg.Pressure.Scale,
	}, nil)

	if r.plant != nil {
		disturbance := cfg.Sim.Disturbance
		r.loop.OnStateChange(func(s control.State) {
			if s == control.Running {
				r.plant.SetDisturbance(disturbance)
				log.WithField("kpa", disturbance).Info("sim: disturbance applied")
			}
		})
		r.loop.OnReport(func(control.Report) {
			log.WithFields(log.Fields{
				"position": r.plant.Position(),
				"actual":   r.plant.Pressure(),
			}).Debug("sim: plant")
		})
	}

	if cfg.Display.Enabled {
		d := display.NewConsole(out)
		r.loop.OnStateChange(display.ShowState(d))
		r.loop.OnReport(display.ShowReport(d))
	}

	if cfg.Telemetry.Serial.Enabled {
		tr, err := rs485.Open(cfg.Telemetry.Serial.Port, cfg.Telemetry.Serial.BaudRate, l.de, clk)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.loop.OnReport(tr.Report)
		r.closers = append(r.closers, func() {
			if err := tr.Close(); err != nil {
				log.WithError(err).Warn("failed to close telemetry port")
			}
		})
	}

	if cfg.Telemetry.MQTT.Enabled {
		pub, err := mqtt.Connect(mqtt.Config{
			Broker:   cfg.Telemetry.MQTT.Broker,
			ClientID: cfg.Telemetry.MQTT.ClientID,
			Topic:    cfg.Telemetry.MQTT.Topic,
			QoS:      cfg.Telemetry.MQTT.QoS,
		})
		if err != nil {
			r.Close()
			return nil, err
		}
		r.loop.OnReport(pub.Report)
		r.closers = append(r.closers, pub.Close)
	}

	return r, nil
}

// outputLine is an output to open and where to store it.
type outputLine struct {
	dst     *hal.OutputPin
	name    string
	initial bool
}

func gpioLines(cfg *config.Config) (lines, error) {
	var (
		l   lines
		err error
	)

	outputs := []outputLine{
		{&l.sck, cfg.Sensor.ClockPin, false},
		{&l.step, cfg.Motor.StepPin, false},
		{&l.dir, cfg.Motor.DirPin, false},
	}
	if cfg.Motor.EnablePin != "" {
		// Start disabled; Init asserts enable
		outputs = append(outputs, outputLine{&l.enable, cfg.Motor.EnablePin, *cfg.Motor.EnableActiveLow})
	}
	if cfg.Telemetry.Serial.Enabled && cfg.Telemetry.Serial.DriverEnablePin != "" {
		outputs = append(outputs, outputLine{&l.de, cfg.Telemetry.Serial.DriverEnablePin, false})
	}

	for _, o := range outputs {
		pin, err := periph.OpenOutput(o.name, o.initial)
		if err != nil {
			return lines{}, err
		}
		*o.dst = pin
	}

	if l.doutA, err = periph.OpenInput(cfg.Sensor.DataPinA, gpio.PullNoChange); err != nil {
		return lines{}, err
	}
	if l.doutB, err = periph.OpenInput(cfg.Sensor.DataPinB, gpio.PullNoChange); err != nil {
		return lines{}, err
	}

	return l, nil
}

func simLines(cfg *config.Config) (lines, *sim.Plant) {
	sck := hal.NewSimPin(false)
	step := hal.NewSimPin(false)
	dir := hal.NewSimPin(false)

	plant := sim.NewPlant(sim.PlantConfig{
		BaseA:      cfg.Sim.BaseA,
		BaseB:      cfg.Sim.BaseB,
		Scale:      float64(cfg.Pressure.Scale),
		KPaPerStep: cfg.Sim.KPaPerStep,
		NoiseLevel: cfg.Sim.NoiseLevel,
	}, step, dir)

	return lines{
		sck:    sck,
		step:   step,
		dir:    dir,
		enable: hal.NewSimPin(true),
		doutA:  sim.NewSensor(sck, plant.SourceA()),
		doutB:  sim.NewSensor(sck, plant.SourceB()),
	}, plant
}
