package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itohio/dpstep/pkg/filter"
)

// Config represents the application configuration.
type Config struct {
	Sensor    SensorConfig    `yaml:"sensor"`
	Filter    FilterConfig    `yaml:"filter"`
	Pressure  PressureConfig  `yaml:"pressure"`
	Motor     MotorConfig     `yaml:"motor"`
	Loop      LoopConfig      `yaml:"loop"`
	Display   DisplayConfig   `yaml:"display"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Sim       SimConfig       `yaml:"sim"`
}

// SensorConfig contains the bit-clocked ADC wiring and timing.
type SensorConfig struct {
	ClockPin     string        `yaml:"clock_pin"`
	DataPinA     string        `yaml:"data_pin_a"`
	DataPinB     string        `yaml:"data_pin_b"`
	HalfPeriod   time.Duration `yaml:"half_period"`   // clock edge hold (0 = as fast as possible)
	ReadyTimeout time.Duration `yaml:"ready_timeout"` // 0 = wait forever
	PollInterval time.Duration `yaml:"poll_interval"`
	Mode         int           `yaml:"mode"` // extra clock pulses after data: 1, 2 or 3
}

// FilterConfig contains the moving average settings.
type FilterConfig struct {
	Depth int `yaml:"depth"` // fixed; only filter.Depth is accepted
}

// PressureConfig contains the code-to-kPa conversion.
type PressureConfig struct {
	Scale float32 `yaml:"scale"`
}

// MotorConfig contains stepper wiring and actuation policy.
type MotorConfig struct {
	StepPin         string        `yaml:"step_pin"`
	DirPin          string        `yaml:"dir_pin"`
	EnablePin       string        `yaml:"enable_pin"`
	EnableActiveLow *bool         `yaml:"enable_active_low"`
	PulseHalfPeriod time.Duration `yaml:"pulse_half_period"`
	Deadband        float32       `yaml:"deadband"`
	StepsPerUnit    float32       `yaml:"steps_per_unit"`
	MaxSteps        int           `yaml:"max_steps"`
}

// LoopConfig contains the control loop cadence.
type LoopConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// DisplayConfig contains status output settings.
type DisplayConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TelemetryConfig contains the optional telemetry sinks.
type TelemetryConfig struct {
	Serial SerialConfig `yaml:"serial"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
}

// SerialConfig contains the RS485 transceiver settings.
type SerialConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Port            string `yaml:"port"`
	BaudRate        int    `yaml:"baud_rate"`
	DriverEnablePin string `yaml:"driver_enable_pin"` // empty when the adapter switches direction itself
}

// MQTTConfig contains the MQTT publisher settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// SimConfig contains the simulated rig used with --sim.
type SimConfig struct {
	BaseA       int32   `yaml:"base_a"`
	BaseB       int32   `yaml:"base_b"`
	KPaPerStep  float64 `yaml:"kpa_per_step"`
	NoiseLevel  float64 `yaml:"noise_level"`
	Disturbance float64 `yaml:"disturbance"` // kPa applied once calibration completes
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	activeLow := true
	return &Config{
		Sensor: SensorConfig{
			ClockPin:     "GPIO17",
			DataPinA:     "GPIO27",
			DataPinB:     "GPIO22",
			HalfPeriod:   time.Microsecond,
			ReadyTimeout: time.Second, // HX710B converts at 10 Hz, so a second is ten missed conversions
			PollInterval: 100 * time.Microsecond,
			Mode:         1,
		},
		Filter: FilterConfig{
			Depth: filter.Depth,
		},
		Pressure: PressureConfig{
			Scale: 10000.0,
		},
		Motor: MotorConfig{
			StepPin:         "GPIO23",
			DirPin:          "GPIO24",
			EnablePin:       "GPIO25",
			EnableActiveLow: &activeLow,
			PulseHalfPeriod: 800 * time.Microsecond,
			Deadband:        0.10,
			StepsPerUnit:    10,
			MaxSteps:        50,
		},
		Loop: LoopConfig{
			Interval: 500 * time.Millisecond,
		},
		Display: DisplayConfig{
			Enabled: true,
		},
		Telemetry: TelemetryConfig{
			Serial: SerialConfig{
				Enabled:  false,
				Port:     "/dev/ttyAMA0",
				BaudRate: 9600,
			},
			MQTT: MQTTConfig{
				Enabled:  false,
				Broker:   "tcp://localhost:1883",
				ClientID: "dpstep",
				Topic:    "dpstep/telemetry",
			},
		},
		Sim: SimConfig{
			BaseA:       120000,
			BaseB:       -40000,
			KPaPerStep:  0.01,
			NoiseLevel:  20,
			Disturbance: 2.0,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects settings the control loop cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Filter.Depth != filter.Depth {
		errs = append(errs, fmt.Errorf("filter.depth must be %d, got %d", filter.Depth, c.Filter.Depth))
	}
	if c.Pressure.Scale <= 0 {
		errs = append(errs, fmt.Errorf("pressure.scale must be positive, got %g", c.Pressure.Scale))
	}
	if c.Sensor.Mode < 1 || c.Sensor.Mode > 3 {
		errs = append(errs, fmt.Errorf("sensor.mode must be 1, 2 or 3, got %d", c.Sensor.Mode))
	}
	if c.Motor.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("motor.max_steps must be positive, got %d", c.Motor.MaxSteps))
	}
	if c.Motor.Deadband < 0 {
		errs = append(errs, fmt.Errorf("motor.deadband must not be negative, got %g", c.Motor.Deadband))
	}
	if c.Loop.Interval < 0 {
		errs = append(errs, fmt.Errorf("loop.interval must not be negative, got %s", c.Loop.Interval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Sensor.ClockPin == "" {
		c.Sensor.ClockPin = def.Sensor.ClockPin
	}
	if c.Sensor.DataPinA == "" {
		c.Sensor.DataPinA = def.Sensor.DataPinA
	}
	if c.Sensor.DataPinB == "" {
		c.Sensor.DataPinB = def.Sensor.DataPinB
	}
	if c.Sensor.Mode == 0 {
		c.Sensor.Mode = def.Sensor.Mode
	}

	if c.Filter.Depth == 0 {
		c.Filter.Depth = def.Filter.Depth
	}

	if c.Pressure.Scale == 0 {
		c.Pressure.Scale = def.Pressure.Scale
	}

	if c.Motor.StepPin == "" {
		c.Motor.StepPin = def.Motor.StepPin
	}
	if c.Motor.DirPin == "" {
		c.Motor.DirPin = def.Motor.DirPin
	}
	if c.Motor.EnableActiveLow == nil {
		c.Motor.EnableActiveLow = def.Motor.EnableActiveLow
	}
	if c.Motor.PulseHalfPeriod == 0 {
		c.Motor.PulseHalfPeriod = def.Motor.PulseHalfPeriod
	}
	if c.Motor.StepsPerUnit == 0 {
		c.Motor.StepsPerUnit = def.Motor.StepsPerUnit
	}
	if c.Motor.MaxSteps == 0 {
		c.Motor.MaxSteps = def.Motor.MaxSteps
	}

	if c.Loop.Interval == 0 {
		c.Loop.Interval = def.Loop.Interval
	}

	if c.Telemetry.Serial.BaudRate == 0 {
		c.Telemetry.Serial.BaudRate = def.Telemetry.Serial.BaudRate
	}
	if c.Telemetry.MQTT.Topic == "" {
		c.Telemetry.MQTT.Topic = def.Telemetry.MQTT.Topic
	}
	if c.Telemetry.MQTT.ClientID == "" {
		c.Telemetry.MQTT.ClientID = def.Telemetry.MQTT.ClientID
	}

	if c.Sim.KPaPerStep == 0 {
		c.Sim.KPaPerStep = def.Sim.KPaPerStep
	}
}
