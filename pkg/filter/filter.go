// Package filter smooths raw sensor codes with a fixed-depth moving average.
package filter

// Depth is the number of samples averaged.
const Depth = 8

// MovingAverage is an unweighted moving average over the last Depth codes.
// The window starts zero-filled, so the first Depth-1 results are biased
// toward zero.
type MovingAverage struct {
	buf   [Depth]uint32
	next  int
	count int
}

// Update stores code over the oldest slot and returns the new average.
func (m *MovingAverage) Update(code uint32) uint32 {
	m.buf[m.next] = code
	m.next = (m.next + 1) % Depth
	if m.count < Depth {
		m.count++
	}
	return m.Value()
}

// Value returns the truncated mean of all slots.
func (m *MovingAverage) Value() uint32 {
	// 24-bit codes: 8 * (2^24 - 1) still fits in uint32
	var sum uint32
	for _, v := range m.buf {
		sum += v
	}
	return sum / Depth
}

// Primed reports whether Depth samples have been pushed since creation.
func (m *MovingAverage) Primed() bool {
	return m.count >= Depth
}

// Bank holds one MovingAverage per channel.
type Bank []MovingAverage

// NewBank creates a bank with n channels.
func NewBank(n int) Bank {
	return make(Bank, n)
}

// Update pushes code into the filter of channel ch and returns its average.
func (b Bank) Update(ch int, code uint32) uint32 {
	return b[ch].Update(code)
}

// Value returns the current average of channel ch.
func (b Bank) Value(ch int) uint32 {
	return b[ch].Value()
}
