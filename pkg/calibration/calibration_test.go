package calibration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/dpstep/pkg/filter"
	"github.com/itohio/dpstep/pkg/hx710"
)

type scriptedSource struct {
	codes map[hx710.Channel][]hx710.Code
	order []hx710.Channel
	fail  error
}

func (s *scriptedSource) Read(_ context.Context, ch hx710.Channel) (hx710.Code, error) {
	if s.fail != nil {
		return 0, s.fail
	}
	s.order = append(s.order, ch)
	q := s.codes[ch]
	c := q[0]
	if len(q) > 1 {
		s.codes[ch] = q[1:]
	}
	return c, nil
}

func TestCalibrate_ConstantStream(t *testing.T) {
	src := &scriptedSource{codes: map[hx710.Channel][]hx710.Code{
		hx710.ChannelA: {1000},
		hx710.ChannelB: {1000},
	}}
	bank := filter.NewBank(hx710.NumChannels)

	offsets, err := Calibrate(context.Background(), src, bank, nil)
	require.NoError(t, err)

	assert.Equal(t, Offsets{1000, 1000}, offsets)
	assert.True(t, bank[0].Primed())
	assert.True(t, bank[1].Primed())
}

func TestCalibrate_ReadOrder(t *testing.T) {
	src := &scriptedSource{codes: map[hx710.Channel][]hx710.Code{
		hx710.ChannelA: {7},
		hx710.ChannelB: {9},
	}}

	_, err := Calibrate(context.Background(), src, filter.NewBank(hx710.NumChannels), nil)
	require.NoError(t, err)

	require.Len(t, src.order, 2*filter.Depth)
	for i, ch := range src.order {
		if i < filter.Depth {
			assert.Equal(t, hx710.ChannelA, ch)
		} else {
			assert.Equal(t, hx710.ChannelB, ch)
		}
	}
}

func TestCalibrate_AveragesWindow(t *testing.T) {
	src := &scriptedSource{codes: map[hx710.Channel][]hx710.Code{
		hx710.ChannelA: {100, 200, 300, 400, 500, 600, 700, 800},
		hx710.ChannelB: {5, 5, 5, 5, 5, 5, 5, 12},
	}}

	offsets, err := Calibrate(context.Background(), src, filter.NewBank(hx710.NumChannels), nil)
	require.NoError(t, err)

	assert.Equal(t, int32(450), offsets[hx710.ChannelA])
	assert.Equal(t, int32(5), offsets[hx710.ChannelB]) // 47/8 truncates
}

func TestCalibrate_ReadError(t *testing.T) {
	boom := errors.New("boom")
	src := &scriptedSource{fail: boom}

	offsets, err := Calibrate(context.Background(), src, filter.NewBank(hx710.NumChannels), nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Offsets{}, offsets)
}
