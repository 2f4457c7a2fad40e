// Package rs485 is a half-duplex line transceiver over a serial port with an
// optional driver-enable line.
package rs485

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/itohio/dpstep/pkg/control"
	"github.com/itohio/dpstep/pkg/hal"
	"github.com/itohio/dpstep/pkg/telemetry"
)

const (
	// DefaultBaudRate matches the 9600 8N1 link of the rig.
	DefaultBaudRate = 9600
	// DefaultMaxLine bounds ReadLine results, terminator included.
	DefaultMaxLine = 64

	// Driver-enable guard times around a transmission.
	enableSetup = 50 * time.Microsecond
	enableHold  = 5 * time.Microsecond
)

// ErrNotConnected is returned when the transceiver has been closed.
var ErrNotConnected = errors.New("not connected")

// Port is the byte stream under the transceiver. go.bug.st/serial ports
// satisfy it.
type Port interface {
	io.ReadWriteCloser
}

// Transceiver sends and receives newline-terminated lines. The driver-enable
// line, when present, is high only while transmitting.
type Transceiver struct {
	mu        sync.Mutex
	port      Port
	reader    *bufio.Reader
	de        hal.OutputPin
	clk       hal.Clock
	maxLine   int
	connected bool
	log       log.FieldLogger
}

// Open opens a serial port at baud (8N1) and wraps it.
func Open(name string, baud int, de hal.OutputPin, clk hal.Clock) (*Transceiver, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}

	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	return New(port, de, clk), nil
}

// New wraps an already open port. de may be nil.
func New(port Port, de hal.OutputPin, clk hal.Clock) *Transceiver {
	if clk == nil {
		clk = hal.SystemClock{}
	}
	if de != nil {
		de.Set(false) // receive
	}

	return &Transceiver{
		port:      port,
		reader:    bufio.NewReader(port),
		de:        de,
		clk:       clk,
		maxLine:   DefaultMaxLine,
		connected: true,
		log:       log.WithField("component", "rs485"),
	}
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Send transmits line, appending '\n' when missing.
func (t *Transceiver) Send(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return ErrNotConnected
	}
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line += "\n"
	}

	if t.de != nil {
		t.de.Set(true)
		t.clk.Sleep(enableSetup)
		defer func() {
			t.clk.Sleep(enableHold)
			t.de.Set(false)
		}()
	}

	if _, err := io.WriteString(t.port, line); err != nil {
		return fmt.Errorf("failed to send line: %w", err)
	}

	if d, ok := t.port.(interface{ Drain() error }); ok {
		if err := d.Drain(); err != nil {
			return fmt.Errorf("failed to drain port: %w", err)
		}
	}

	return nil
}

// ReadLine blocks until a '\n' arrives and returns the line including the
// terminator. Bytes beyond the line limit are consumed and dropped.
func (t *Transceiver) ReadLine() (string, error) {
	t.mu.Lock()
	reader, limit, connected := t.reader, t.maxLine, t.connected
	t.mu.Unlock()

	if !connected {
		return "", ErrNotConnected
	}
	return readLine(reader, limit)
}

// SetMaxLine changes the ReadLine limit.
func (t *Transceiver) SetMaxLine(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > 1 {
		t.maxLine = n
	}
}

// Report sends the telemetry line for r. Send errors are logged.
func (t *Transceiver) Report(r control.Report) {
	if err := t.Send(telemetry.FormatLine(telemetry.FromReport(r))); err != nil {
		t.log.WithError(err).Warn("telemetry send failed")
	}
}

// Close closes the port.
func (t *Transceiver) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil
	}
	t.connected = false
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// readLine keeps at most limit-1 bytes so the result fits a limit-byte buffer
// with a terminating NUL on the MCU side.
func readLine(r io.ByteReader, limit int) (string, error) {
	buf := make([]byte, 0, limit)
	for {
		c, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return string(buf), io.ErrUnexpectedEOF
			}
			return string(buf), err
		}
		if len(buf) < limit-1 {
			buf = append(buf, c)
		}
		if c == '\n' {
			return string(buf), nil
		}
	}
}
