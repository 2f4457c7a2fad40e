// Package pressure converts filtered, offset-corrected codes into a
// differential pressure.
package pressure

import (
	"github.com/itohio/dpstep/pkg/calibration"
	"github.com/itohio/dpstep/pkg/hx710"
)

// DefaultScale maps raw code difference to kPa. Determined empirically.
const DefaultScale float32 = 10000.0

// Delta returns (a - offsetA) - (b - offsetB) in raw counts.
func Delta(a, b uint32, offsets calibration.Offsets) int32 {
	return (int32(a) - offsets[hx710.ChannelA]) - (int32(b) - offsets[hx710.ChannelB])
}

// Compute returns the differential pressure in kPa for filtered codes a and b.
func Compute(a, b uint32, offsets calibration.Offsets, scale float32) float32 {
	return float32(Delta(a, b, offsets)) / scale
}
