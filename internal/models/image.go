package models

import (
	"errors"
	"fmt"
	"math"
)

// MaxLabelID is the largest label id that can be persisted in a label raster.
// Label rasters are written as 16-bit single-channel images.
const MaxLabelID = math.MaxUint16

// ErrShapeMismatch is returned when two grids that must share a pixel grid differ.
var ErrShapeMismatch = errors.New("shape mismatch")

// LabelImage is a 2D integer grid where 0 is background and every positive
// value identifies one segmented region.
type LabelImage struct {
	// Width and Height are the grid dimensions in pixels
	Width, Height int

	// Pix holds the label ids in row-major order
	Pix []uint32
}

// NewLabelImage allocates an all-background label image.
func NewLabelImage(width, height int) *LabelImage {
	return &LabelImage{
		Width:  width,
		Height: height,
		Pix:    make([]uint32, width*height),
	}
}

// LabelImageFromRows builds a label image from a row-major literal, mostly for tests.
func LabelImageFromRows(rows [][]uint32) *LabelImage {
	if len(rows) == 0 {
		return NewLabelImage(0, 0)
	}
	img := NewLabelImage(len(rows[0]), len(rows))
	for y, row := range rows {
		copy(img.Pix[y*img.Width:(y+1)*img.Width], row)
	}
	return img
}

// At returns the label at (x, y).
func (l *LabelImage) At(x, y int) uint32 {
	return l.Pix[y*l.Width+x]
}

// Set assigns the label at (x, y).
func (l *LabelImage) Set(x, y int, v uint32) {
	l.Pix[y*l.Width+x] = v
}

// Clone returns a deep copy.
func (l *LabelImage) Clone() *LabelImage {
	out := &LabelImage{Width: l.Width, Height: l.Height, Pix: make([]uint32, len(l.Pix))}
	copy(out.Pix, l.Pix)
	return out
}

// MaxLabel returns the largest id present, 0 for an all-background image.
func (l *LabelImage) MaxLabel() uint32 {
	var max uint32
	for _, v := range l.Pix {
		if v > max {
			max = v
		}
	}
	return max
}

// IntensityImage is a single-channel grayscale image stored as float64.
type IntensityImage struct {
	Width, Height int
	Pix           []float64
}

// NewIntensityImage allocates a zero-valued intensity image.
func NewIntensityImage(width, height int) *IntensityImage {
	return &IntensityImage{
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height),
	}
}

// At returns the intensity at (x, y).
func (m *IntensityImage) At(x, y int) float64 {
	return m.Pix[y*m.Width+x]
}

// Set assigns the intensity at (x, y).
func (m *IntensityImage) Set(x, y int, v float64) {
	m.Pix[y*m.Width+x] = v
}

// CheckShape returns ErrShapeMismatch, annotated with both sizes and the given
// names, when the two grids differ.
func CheckShape(nameA string, wa, ha int, nameB string, wb, hb int) error {
	if wa != wb || ha != hb {
		return fmt.Errorf("%w: %s is %dx%d, %s is %dx%d", ErrShapeMismatch, nameA, wa, ha, nameB, wb, hb)
	}
	return nil
}
