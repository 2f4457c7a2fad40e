//go:build tinygo

package main

import (
	"machine"
	"time"
)

const (
	// Loop configuration
	LOOP_INTERVAL = 500 * time.Millisecond // delay before every control iteration
	READY_TIMEOUT = time.Second            // HX710B converts at 10 Hz
	SCALE_FACTOR  = 10000.0                // raw counts per kPa, determined empirically

	// HX710B pins (shared clock, one data line per sensor)
	PIN_SCK    = machine.D1
	PIN_DOUT_A = machine.D2
	PIN_DOUT_B = machine.D3

	// Stepper driver pins (enable is active low)
	PIN_STEP   = machine.D7
	PIN_DIR    = machine.D8
	PIN_ENABLE = machine.D9

	// Status lines go out on the USB serial console
	UART_BAUD_RATE = 115200
)
