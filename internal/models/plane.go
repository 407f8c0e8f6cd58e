package models

import (
	"fmt"
	"math"
)

// NumModalities is the number of MRI modalities stored per sample
// (T1, T1ce, T2, FLAIR).
const NumModalities = 4

// Plane is a single H×W field of per-pixel values in row-major order.
// Image channels, segmentation labels, score maps and masks all use it.
type Plane struct {
	// Data holds Width*Height values, row by row
	Data []float64

	// Width is the number of columns
	Width int

	// Height is the number of rows
	Height int
}

// NewPlane allocates a zero-filled plane
func NewPlane(width, height int) Plane {
	return Plane{
		Data:   make([]float64, width*height),
		Width:  width,
		Height: height,
	}
}

// PlaneFromRows builds a plane from a row-major 2D slice. All rows must
// have the same length.
func PlaneFromRows(rows [][]float64) (Plane, error) {
	if len(rows) == 0 {
		return Plane{}, nil
	}
	width := len(rows[0])
	p := NewPlane(width, len(rows))
	for y, row := range rows {
		if len(row) != width {
			return Plane{}, fmt.Errorf("row %d has %d values, expected %d", y, len(row), width)
		}
		copy(p.Data[y*width:], row)
	}
	return p, nil
}

// At returns the value at column x, row y
func (p Plane) At(x, y int) float64 {
	return p.Data[y*p.Width+x]
}

// Set stores v at column x, row y
func (p Plane) Set(x, y int, v float64) {
	p.Data[y*p.Width+x] = v
}

// Len returns the number of pixels
func (p Plane) Len() int {
	return len(p.Data)
}

// SameShape reports whether both planes have identical spatial dimensions
func (p Plane) SameShape(o Plane) bool {
	return p.Width == o.Width && p.Height == o.Height && len(p.Data) == len(o.Data)
}

// Clone returns a deep copy
func (p Plane) Clone() Plane {
	c := NewPlane(p.Width, p.Height)
	copy(c.Data, p.Data)
	return c
}

// Min returns the smallest value, or +Inf for an empty plane
func (p Plane) Min() float64 {
	m := math.Inf(1)
	for _, v := range p.Data {
		if v < m {
			m = v
		}
	}
	return m
}

// Max returns the largest value, or -Inf for an empty plane
func (p Plane) Max() float64 {
	m := math.Inf(-1)
	for _, v := range p.Data {
		if v > m {
			m = v
		}
	}
	return m
}

// Rows returns the plane as a row-major 2D slice
func (p Plane) Rows() [][]float64 {
	rows := make([][]float64, p.Height)
	for y := range rows {
		rows[y] = append([]float64(nil), p.Data[y*p.Width:(y+1)*p.Width]...)
	}
	return rows
}
