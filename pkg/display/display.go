// Package display renders loop status for a character display collaborator.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/itohio/dpstep/pkg/control"
)

const (
	// Rows and Cols match a 16x2 character LCD.
	Rows = 2
	Cols = 16

	// CalibratingText is shown while offsets are being captured.
	CalibratingText = "Calibrating..."
)

// Display is a character display with a cursor.
type Display interface {
	Clear()
	SetCursor(row, col int)
	WriteString(s string)
}

// StatusLine formats the pressure line: "dP: " + %5.2f + " kPa ".
func StatusLine(kpa float32) string {
	return fmt.Sprintf("dP: %5.2f kPa ", kpa)
}

// ShowState reacts to loop state changes: the calibration banner on entry to
// Calibrating, a cleared screen on entry to Running.
func ShowState(d Display) func(control.State) {
	return func(s control.State) {
		switch s {
		case control.Calibrating:
			d.SetCursor(0, 0)
			d.WriteString(CalibratingText)
		case control.Running:
			d.Clear()
		}
	}
}

// ShowReport writes the status line of every report to row 0.
func ShowReport(d Display) func(control.Report) {
	return func(r control.Report) {
		d.SetCursor(0, 0)
		d.WriteString(StatusLine(r.Pressure))
	}
}

// Screen is an in-memory Rows x Cols character buffer. Writes past the last
// column are dropped, as on an LCD with no line wrap.
type Screen struct {
	mu       sync.Mutex
	cells    [Rows][Cols]byte
	row, col int
}

var _ Display = (*Screen)(nil)

// NewScreen returns a blank screen.
func NewScreen() *Screen {
	s := &Screen{}
	s.Clear()
	return s
}

// Clear blanks the screen and homes the cursor.
func (s *Screen) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for r := range s.cells {
		for c := range s.cells[r] {
			s.cells[r][c] = ' '
		}
	}
	s.row, s.col = 0, 0
}

// SetCursor moves the cursor, clamping to the screen.
func (s *Screen) SetCursor(row, col int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.row = min(max(row, 0), Rows-1)
	s.col = min(max(col, 0), Cols)
}

// WriteString writes at the cursor and advances it.
func (s *Screen) WriteString(str string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < len(str) && s.col < Cols; i++ {
		s.cells[s.row][s.col] = str[i]
		s.col++
	}
}

// Line returns the contents of row, right-trimmed.
func (s *Screen) Line(row int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row < 0 || row >= Rows {
		return ""
	}
	return strings.TrimRight(string(s.cells[row][:]), " ")
}

// Console mirrors a Screen to a writer, printing the touched row after each
// write. It stands in for the LCD on hosts without one.
type Console struct {
	*Screen
	w io.Writer
}

// NewConsole creates a console display writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{Screen: NewScreen(), w: w}
}

// WriteString writes at the cursor and prints the row.
func (c *Console) WriteString(str string) {
	c.Screen.WriteString(str)
	c.Screen.mu.Lock()
	row := c.Screen.row
	c.Screen.mu.Unlock()
	fmt.Fprintf(c.w, "[%d] %s\n", row, c.Screen.Line(row))
}
