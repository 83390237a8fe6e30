package adrv9002

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/rjboer/adrv9002/internal/ssi"
)

// EyeDiagram holds the outcome of every trial, indexed [clk][data]. true
// means the pattern was received cleanly.
type EyeDiagram [ssi.MaxClkDelay][ssi.MaxDataDelay]bool

// Region is a rectangle of the eye. Top and Height run along the clock
// delay, Left and Width along the data delay.
type Region struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Height int `json:"height"`
	Width  int `json:"width"`
}

// Area is the number of cells in r.
func (r Region) Area() int { return r.Height * r.Width }

// Center returns the delay pair in the middle of r, rounding down.
func (r Region) Center() (clk, data uint8) {
	return uint8(r.Top + (r.Height-1)/2), uint8(r.Left + (r.Width-1)/2)
}

// Passed counts the passing cells.
func (e *EyeDiagram) Passed() int {
	n := 0
	for _, row := range e {
		for _, ok := range row {
			if ok {
				n++
			}
		}
	}
	return n
}

// LargestRegion finds the all-pass rectangle with the largest area. Among
// equal areas the one whose center has the smaller clock delay wins, then
// the smaller data delay. ok is false when nothing passed.
func (e *EyeDiagram) LargestRegion() (best Region, ok bool) {
	const rows, cols = ssi.MaxClkDelay, ssi.MaxDataDelay

	// sum[i][j] counts passing cells in [0,i) x [0,j).
	var sum [rows + 1][cols + 1]int
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := 0
			if e[i][j] {
				v = 1
			}
			sum[i+1][j+1] = sum[i][j+1] + sum[i+1][j] - sum[i][j] + v
		}
	}

	better := func(r Region) bool {
		if !ok || r.Area() > best.Area() {
			return true
		}
		if r.Area() < best.Area() {
			return false
		}
		rc, rd := r.Center()
		bc, bd := best.Center()
		return rc < bc || (rc == bc && rd < bd)
	}

	for top := 0; top < rows; top++ {
		for bottom := top + 1; bottom <= rows; bottom++ {
			for left := 0; left < cols; left++ {
				for right := left + 1; right <= cols; right++ {
					r := Region{Top: top, Left: left, Height: bottom - top, Width: right - left}
					n := sum[bottom][right] - sum[top][right] - sum[bottom][left] + sum[top][left]
					if n != r.Area() {
						// Growing right only adds cells, it can't fix a failing one.
						break
					}
					if better(r) {
						best, ok = r, true
					}
				}
			}
		}
	}
	return best, ok
}

// Center returns the delay pair that maximizes the timing margin.
func (e *EyeDiagram) Center() (clk, data uint8, ok bool) {
	r, ok := e.LargestRegion()
	if !ok {
		return 0, 0, false
	}
	clk, data = r.Center()
	return clk, data, true
}

// Matrix returns the eye as a 0/1 matrix, rows are clock delays.
func (e *EyeDiagram) Matrix() *mat.Dense {
	m := mat.NewDense(ssi.MaxClkDelay, ssi.MaxDataDelay, nil)
	for i, row := range e {
		for j, ok := range row {
			if ok {
				m.Set(i, j, 1)
			}
		}
	}
	return m
}

func (e *EyeDiagram) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "clk\\data %v\n", "01234567"[:ssi.MaxDataDelay])
	for i, row := range e {
		fmt.Fprintf(&b, "%8d ", i)
		for _, ok := range row {
			if ok {
				b.WriteByte('o')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Format renders the eye through gonum's matrix formatter.
func (e *EyeDiagram) Format() string {
	return fmt.Sprintf("%v", mat.Formatted(e.Matrix(), mat.Squeeze()))
}
