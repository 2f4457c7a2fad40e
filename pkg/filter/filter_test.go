package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// reference computes the truncated mean of the last Depth values of pushed,
// zero-padded when fewer values exist.
func reference(pushed []uint32) uint32 {
	var sum uint64
	start := len(pushed) - Depth
	for i := start; i < len(pushed); i++ {
		if i >= 0 {
			sum += uint64(pushed[i])
		}
	}
	return uint32(sum / Depth)
}

func TestMovingAverage_ZeroPadding(t *testing.T) {
	var m MovingAverage

	assert.Equal(t, uint32(1000/8), m.Update(1000))
	assert.Equal(t, uint32(2000/8), m.Update(1000))
	assert.False(t, m.Primed())
}

func TestMovingAverage_MatchesLastEight(t *testing.T) {
	var m MovingAverage
	var pushed []uint32

	for i := 0; i < 40; i++ {
		code := uint32((i*7919 + 13) % (1 << 24))
		pushed = append(pushed, code)
		assert.Equal(t, reference(pushed), m.Update(code), "after %d pushes", len(pushed))
	}
	assert.True(t, m.Primed())
}

func TestMovingAverage_OldestDroppedOnNinth(t *testing.T) {
	var m MovingAverage

	m.Update(800)
	for i := 0; i < 7; i++ {
		m.Update(0)
	}
	assert.Equal(t, uint32(100), m.Value())

	// The ninth push evicts the 800
	assert.Equal(t, uint32(0), m.Update(0))
}

func TestMovingAverage_TruncatingDivision(t *testing.T) {
	var m MovingAverage
	for i := 0; i < Depth-1; i++ {
		m.Update(1)
	}
	// 7/8 truncates to zero
	assert.Equal(t, uint32(0), m.Value())
	assert.Equal(t, uint32(1), m.Update(1))
}

func TestMovingAverage_FullScaleNoOverflow(t *testing.T) {
	var m MovingAverage
	const full = 1<<24 - 1
	var got uint32
	for i := 0; i < Depth; i++ {
		got = m.Update(full)
	}
	assert.Equal(t, uint32(full), got)
}

func TestBank_IndependentChannels(t *testing.T) {
	b := NewBank(2)

	for i := 0; i < Depth; i++ {
		b.Update(0, 1000)
		b.Update(1, 2000)
	}

	assert.Equal(t, uint32(1000), b.Value(0))
	assert.Equal(t, uint32(2000), b.Value(1))
	assert.Len(t, b, 2)
}
