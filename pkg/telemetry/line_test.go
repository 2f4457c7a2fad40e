package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/dpstep/pkg/control"
	"github.com/itohio/dpstep/pkg/stepper"
)

func TestFormatLine(t *testing.T) {
	rec := Record{
		Timestamp: time.UnixMicro(1234567890123),
		Pressure:  0.25,
		Steps:     2,
		Direction: stepper.Forward,
	}
	assert.Equal(t, "1234567890123,0.2500,2,F,0\n", FormatLine(rec))

	rec.Direction = stepper.Reverse
	rec.Saturated = true
	rec.Pressure = -6
	rec.Steps = 50
	assert.Equal(t, "1234567890123,-6.0000,50,R,1\n", FormatLine(rec))
}

func TestFromReport(t *testing.T) {
	now := time.UnixMicro(42)
	rec := FromReport(control.Report{
		Time:     now,
		Pressure: -3,
		Command:  stepper.Command{Steps: 30, Direction: stepper.Reverse, Move: true, Requested: 30},
	})

	assert.Equal(t, Record{Timestamp: now, Pressure: -3, Steps: 30, Direction: stepper.Reverse}, rec)
}

func TestParseLine(t *testing.T) {
	rec, err := ParseLine("  1234567890123,-0.5000,5,R,0\r\n")
	require.NoError(t, err)

	assert.Equal(t, int64(1234567890123), rec.Timestamp.UnixMicro())
	assert.Equal(t, float32(-0.5), rec.Pressure)
	assert.Equal(t, 5, rec.Steps)
	assert.Equal(t, stepper.Reverse, rec.Direction)
	assert.False(t, rec.Saturated)
}

func TestParseLine_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "too few fields", line: "1,2,3"},
		{name: "bad timestamp", line: "x,0.1,1,F,0"},
		{name: "bad pressure", line: "1,p,1,F,0"},
		{name: "bad steps", line: "1,0.1,s,F,0"},
		{name: "negative steps", line: "1,0.1,-1,F,0"},
		{name: "bad direction", line: "1,0.1,1,X,0"},
		{name: "bad saturation", line: "1,0.1,1,F,2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.line)
			assert.Error(t, err)
		})
	}
}
