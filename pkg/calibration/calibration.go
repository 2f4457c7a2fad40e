// Package calibration captures the at-rest offset of every sensor channel.
package calibration

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/itohio/dpstep/pkg/filter"
	"github.com/itohio/dpstep/pkg/hx710"
)

// Source reads one raw conversion from a channel.
type Source interface {
	Read(ctx context.Context, ch hx710.Channel) (hx710.Code, error)
}

// Offsets holds the zero-pressure filtered code of every channel.
type Offsets [hx710.NumChannels]int32

// Calibrate primes each channel's filter with filter.Depth live reads, in
// channel order, and records the resulting average as that channel's offset.
// The rig must be at zero pressure while this runs.
func Calibrate(ctx context.Context, src Source, filters filter.Bank, logger log.FieldLogger) (Offsets, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	var offsets Offsets
	for _, ch := range hx710.Channels {
		var avg uint32
		for i := 0; i < filter.Depth; i++ {
			code, err := src.Read(ctx, ch)
			if err != nil {
				return Offsets{}, fmt.Errorf("failed to calibrate channel %s: %w", ch, err)
			}
			avg = filters.Update(int(ch), uint32(code))
		}
		offsets[ch] = int32(avg)
		logger.WithFields(log.Fields{"channel": ch, "offset": avg}).Info("channel calibrated")
	}

	return offsets, nil
}
