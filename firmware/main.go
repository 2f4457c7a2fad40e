//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"context"
	"machine"
	"time"

	"github.com/itohio/dpstep/pkg/control"
	"github.com/itohio/dpstep/pkg/display"
	"github.com/itohio/dpstep/pkg/hal"
	"github.com/itohio/dpstep/pkg/hx710"
	"github.com/itohio/dpstep/pkg/stepper"
)

var uart = machine.UART0

func main() {
	// Sensor lines
	PIN_SCK.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_DOUT_A.Configure(machine.PinConfig{Mode: machine.PinInput})
	PIN_DOUT_B.Configure(machine.PinConfig{Mode: machine.PinInput})

	// Stepper lines
	PIN_STEP.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_DIR.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_ENABLE.Configure(machine.PinConfig{Mode: machine.PinOutput})

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	clk := hal.SystemClock{}

	reader := hx710.New(PIN_SCK, PIN_DOUT_A, PIN_DOUT_B, clk, hx710.Config{
		ReadyTimeout: READY_TIMEOUT,
	}, nil)

	motor, err := stepper.New(PIN_STEP, PIN_DIR, PIN_ENABLE, clk, stepper.DefaultConfig(), nil)
	if err != nil {
		halt(err)
	}
	motor.Init()

	loop := control.New(reader, motor, clk, control.Config{
		Interval: LOOP_INTERVAL,
		Scale:    SCALE_FACTOR,
	}, nil)

	lcd := &console{}
	loop.OnStateChange(display.ShowState(lcd))
	loop.OnReport(display.ShowReport(lcd))

	// Run only returns on a failed calibration; retry it
	for {
		if err := loop.Run(context.Background()); err != nil {
			println("control loop:", err.Error())
			time.Sleep(time.Second)
		}
	}
}

func halt(err error) {
	for {
		println("fatal:", err.Error())
		time.Sleep(time.Second)
	}
}

// console prints display rows on the UART. Each write is emitted as its own line.
type console struct{}

func (*console) Clear() {}

func (*console) SetCursor(row, col int) {}

func (*console) WriteString(s string) {
	uart.Write([]byte(s))
	uart.Write([]byte("\r\n"))
}
