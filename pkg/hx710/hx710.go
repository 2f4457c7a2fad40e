// Package hx710 reads HX710B-style 24-bit sensors that share one clock line
// and expose one data line each.
//
// A conversion is ready when the data line goes low. The host then pulses the
// clock 24 times, sampling the data line on each high phase (MSB first), and
// adds one to three extra pulses that select the next conversion.
package hx710

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/itohio/dpstep/pkg/hal"
)

const (
	// Bits is the width of a conversion result.
	Bits = 24
	// Mask keeps the low Bits bits of a code.
	Mask = 1<<Bits - 1
	// SignBit is flipped to turn the sensor's two's complement output into an
	// offset code that subtracts like an ordinary integer.
	SignBit = 1 << (Bits - 1)
)

// Code is a raw 24-bit conversion result after sign correction.
type Code uint32

// SignCorrect flips bit 23 of a 24-bit code. Applying it twice is a no-op.
func SignCorrect(c Code) Code {
	return (c ^ SignBit) & Mask
}

// Channel identifies one sensor data line.
type Channel int

const (
	ChannelA Channel = iota
	ChannelB

	// NumChannels is the number of data lines a Reader serves.
	NumChannels = 2
)

// Channels lists every channel in read order.
var Channels = [NumChannels]Channel{ChannelA, ChannelB}

func (c Channel) String() string {
	switch c {
	case ChannelA:
		return "A"
	case ChannelB:
		return "B"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// Mode is the number of clock pulses after the 24 data pulses. It selects
// the input and rate of the next conversion.
type Mode int

const (
	// ModeDifferential10Hz is the 25-pulse mode.
	ModeDifferential10Hz Mode = 1
	// ModeSupply40Hz is the 26-pulse mode (HX710B: DVDD-AVDD).
	ModeSupply40Hz Mode = 2
	// ModeDifferential40Hz is the 27-pulse mode.
	ModeDifferential40Hz Mode = 3
)

// ErrUnknownChannel is returned for a channel without a data line.
var ErrUnknownChannel = errors.New("unknown channel")

// Config holds the bit protocol timing.
type Config struct {
	// HalfPeriod is held after every clock edge. Zero toggles as fast as the
	// host can, which HX710B tolerates (T3/T4 min 0.2µs).
	HalfPeriod time.Duration
	// ReadyTimeout bounds the wait for a conversion. Zero waits forever.
	ReadyTimeout time.Duration
	// PollInterval is slept between ready checks. Zero spins.
	PollInterval time.Duration
	// Mode selects the next conversion. Zero means ModeDifferential10Hz.
	Mode Mode
}

// Reader drives the shared clock line and samples per-channel data lines.
type Reader struct {
	sck  hal.OutputPin
	dout [NumChannels]hal.InputPin
	clk  hal.Clock
	cfg  Config
	log  log.FieldLogger
}

// New creates a Reader. The clock line is driven low immediately; a clock
// held high for more than 60µs powers the sensors down.
func New(sck hal.OutputPin, doutA, doutB hal.InputPin, clk hal.Clock, cfg Config, logger log.FieldLogger) *Reader {
	if clk == nil {
		clk = hal.SystemClock{}
	}
	if cfg.Mode < ModeDifferential10Hz || cfg.Mode > ModeDifferential40Hz {
		cfg.Mode = ModeDifferential10Hz
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	sck.Set(false)

	return &Reader{
		sck:  sck,
		dout: [NumChannels]hal.InputPin{doutA, doutB},
		clk:  clk,
		cfg:  cfg,
		log:  logger.WithField("component", "hx710"),
	}
}

// Read waits for the channel to become ready and clocks out one conversion.
// The clock line is low on return.
func (r *Reader) Read(ctx context.Context, ch Channel) (Code, error) {
	if ch < 0 || int(ch) >= NumChannels || r.dout[ch] == nil {
		return 0, fmt.Errorf("channel %s: %w", ch, ErrUnknownChannel)
	}
	dout := r.dout[ch]

	if err := hal.WaitFor(ctx, r.clk, dout, false, r.cfg.ReadyTimeout, r.cfg.PollInterval); err != nil {
		return 0, fmt.Errorf("channel %s not ready: %w", ch, err)
	}

	var value uint32
	for i := 0; i < Bits; i++ {
		r.sck.Set(true)
		r.hold()
		value <<= 1
		if dout.Get() {
			value++
		}
		r.sck.Set(false)
		r.hold()
	}

	for i := 0; i < int(r.cfg.Mode); i++ {
		r.pulse()
	}

	code := SignCorrect(Code(value))
	r.log.WithFields(log.Fields{"channel": ch, "code": uint32(code)}).Trace("conversion read")

	return code, nil
}

func (r *Reader) pulse() {
	r.sck.Set(true)
	r.hold()
	r.sck.Set(false)
	r.hold()
}

func (r *Reader) hold() {
	if r.cfg.HalfPeriod > 0 {
		r.clk.Sleep(r.cfg.HalfPeriod)
	}
}
