package hx710_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/dpstep/pkg/hal"
	"github.com/itohio/dpstep/pkg/hx710"
	"github.com/itohio/dpstep/pkg/sim"
)

func newRig(t *testing.T, cfg hx710.Config, a, b sim.Source) (*hx710.Reader, *hal.SimPin, *sim.Sensor, *sim.Sensor) {
	t.Helper()
	sck := hal.NewSimPin(false)
	sa := sim.NewSensor(sck, a)
	sb := sim.NewSensor(sck, b)
	clk := hal.NewFakeClock(time.Unix(0, 0))
	return hx710.New(sck, sa, sb, clk, cfg, nil), sck, sa, sb
}

func TestSignCorrect(t *testing.T) {
	tests := []struct {
		name string
		in   hx710.Code
		want hx710.Code
	}{
		{name: "zero", in: 0x000000, want: 0x800000},
		{name: "most negative", in: 0x800000, want: 0x000000},
		{name: "minus one", in: 0xFFFFFF, want: 0x7FFFFF},
		{name: "plus one", in: 0x000001, want: 0x800001},
		{name: "upper bits dropped", in: 0xFF000001, want: 0x800001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hx710.SignCorrect(tt.in))
		})
	}
}

func TestSignCorrect_Involution(t *testing.T) {
	for _, c := range []hx710.Code{0, 1, 1000, 0x7FFFFF, 0x800000, 0xABCDEF, 0xFFFFFF} {
		assert.Equal(t, c, hx710.SignCorrect(hx710.SignCorrect(c)), "code %#x", uint32(c))
	}
}

func TestRead_DecodesBothChannels(t *testing.T) {
	r, _, _, _ := newRig(t, hx710.Config{}, sim.Constant(1000), sim.Constant(-1000))

	a, err := r.Read(context.Background(), hx710.ChannelA)
	require.NoError(t, err)
	assert.Equal(t, hx710.Code(0x800000+1000), a)

	b, err := r.Read(context.Background(), hx710.ChannelB)
	require.NoError(t, err)
	assert.Equal(t, hx710.Code(0x800000-1000), b)
}

func TestRead_OrdersCodesLikeSignedValues(t *testing.T) {
	r, _, _, _ := newRig(t, hx710.Config{}, sim.Sequence(-5, 0, 5), sim.Constant(0))

	var codes []hx710.Code
	for i := 0; i < 3; i++ {
		c, err := r.Read(context.Background(), hx710.ChannelA)
		require.NoError(t, err)
		codes = append(codes, c)
	}

	assert.Less(t, codes[0], codes[1])
	assert.Less(t, codes[1], codes[2])
	assert.Equal(t, uint32(10), uint32(codes[2]-codes[0]))
}

func TestRead_ClockPulseCount(t *testing.T) {
	tests := []struct {
		mode   hx710.Mode
		pulses int
	}{
		{mode: 0, pulses: 25},
		{mode: hx710.ModeDifferential10Hz, pulses: 25},
		{mode: hx710.ModeSupply40Hz, pulses: 26},
		{mode: hx710.ModeDifferential40Hz, pulses: 27},
	}

	for _, tt := range tests {
		r, sck, _, _ := newRig(t, hx710.Config{Mode: tt.mode}, sim.Constant(42), sim.Constant(0))

		_, err := r.Read(context.Background(), hx710.ChannelA)
		require.NoError(t, err)
		assert.Equal(t, tt.pulses, sck.Rises(), "mode %d", tt.mode)
		assert.Equal(t, tt.pulses, sck.Falls(), "mode %d", tt.mode)
		assert.False(t, sck.Get(), "clock must be left low")
	}
}

func TestRead_HalfPeriodUsesClock(t *testing.T) {
	sck := hal.NewSimPin(false)
	sa := sim.NewSensor(sck, sim.Constant(1))
	clk := hal.NewFakeClock(time.Unix(0, 0))
	r := hx710.New(sck, sa, nil, clk, hx710.Config{HalfPeriod: time.Microsecond}, nil)

	_, err := r.Read(context.Background(), hx710.ChannelA)
	require.NoError(t, err)

	// 25 pulses, two half periods each
	assert.Equal(t, 50*time.Microsecond, clk.Slept())
}

func TestRead_ReadyTimeout(t *testing.T) {
	cfg := hx710.Config{ReadyTimeout: 100 * time.Millisecond, PollInterval: time.Millisecond}
	r, sck, sa, _ := newRig(t, cfg, sim.Constant(1), sim.Constant(1))
	sa.Stall(true)

	_, err := r.Read(context.Background(), hx710.ChannelA)
	assert.ErrorIs(t, err, hal.ErrTimeout)
	assert.Equal(t, 0, sck.Rises(), "no clock pulses without a ready conversion")
}

func TestRead_UnknownChannel(t *testing.T) {
	r, _, _, _ := newRig(t, hx710.Config{}, sim.Constant(1), sim.Constant(1))

	_, err := r.Read(context.Background(), hx710.Channel(5))
	assert.ErrorIs(t, err, hx710.ErrUnknownChannel)
}

func TestChannel_String(t *testing.T) {
	assert.Equal(t, "A", hx710.ChannelA.String())
	assert.Equal(t, "B", hx710.ChannelB.String())
	assert.Equal(t, "Channel(7)", hx710.Channel(7).String())
}
