// Package telemetry defines the line format reported by the control loop
// to optional sinks (serial transceiver, MQTT).
package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/dpstep/pkg/control"
	"github.com/itohio/dpstep/pkg/stepper"
)

// Record is one telemetry entry.
type Record struct {
	Timestamp time.Time         `json:"timestamp"`
	Pressure  float32           `json:"pressure_kpa"`
	Steps     int               `json:"steps"`
	Direction stepper.Direction `json:"direction"`
	Saturated bool              `json:"saturated"`
}

// FromReport extracts a Record from a loop report.
func FromReport(r control.Report) Record {
	return Record{
		Timestamp: r.Time,
		Pressure:  r.Pressure,
		Steps:     r.Command.Steps,
		Direction: r.Command.Direction,
		Saturated: r.Command.Saturated,
	}
}

// FormatLine renders rec as "unix_micros,pressure,steps,direction,saturated\n".
// Example: "1234567890123,0.2500,2,F,0\n"
func FormatLine(rec Record) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(rec.Timestamp.UnixMicro(), 10))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(float64(rec.Pressure), 'f', 4, 32))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(rec.Steps))
	b.WriteByte(',')
	if rec.Direction == stepper.Forward {
		b.WriteByte('F')
	} else {
		b.WriteByte('R')
	}
	b.WriteByte(',')
	if rec.Saturated {
		b.WriteByte('1')
	} else {
		b.WriteByte('0')
	}
	b.WriteByte('\n')
	return b.String()
}

// ParseLine parses a line produced by FormatLine. Surrounding whitespace,
// including the terminator, is ignored.
func ParseLine(line string) (Record, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 5 {
		return Record{}, fmt.Errorf("invalid line format: expected 5 comma-separated values, got %d", len(parts))
	}

	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	p, err := strconv.ParseFloat(parts[1], 32)
	if err != nil {
		return Record{}, fmt.Errorf("invalid pressure: %w", err)
	}

	steps, err := strconv.Atoi(parts[2])
	if err != nil {
		return Record{}, fmt.Errorf("invalid steps: %w", err)
	}
	if steps < 0 {
		return Record{}, fmt.Errorf("steps out of range: %d", steps)
	}

	var dir stepper.Direction
	switch parts[3] {
	case "F":
		dir = stepper.Forward
	case "R":
		dir = stepper.Reverse
	default:
		return Record{}, fmt.Errorf("invalid direction: %q", parts[3])
	}

	var saturated bool
	switch parts[4] {
	case "1":
		saturated = true
	case "0":
	default:
		return Record{}, fmt.Errorf("invalid saturation flag: %q", parts[4])
	}

	return Record{
		Timestamp: time.UnixMicro(micros),
		Pressure:  float32(p),
		Steps:     steps,
		Direction: dir,
		Saturated: saturated,
	}, nil
}
