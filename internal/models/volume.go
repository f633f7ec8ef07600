package models

import "fmt"

// Volume represents an N-dimensional image array with its spatial metadata
type Volume struct {
	// Shape holds the size of every axis, outermost last
	Shape []int

	// Data is the sample array in column-major order: axis 0 varies fastest,
	// the same layout NIfTI uses on disk
	Data []float64

	// Affine maps voxel indices (i, j, k, 1) to world coordinates
	Affine [4][4]float64
}

// NewVolume allocates a zero-filled volume with an identity affine
func NewVolume(shape ...int) *Volume {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Volume{
		Shape:  append([]int(nil), shape...),
		Data:   make([]float64, n),
		Affine: Identity(),
	}
}

// Identity returns the 4x4 identity affine
func Identity() [4][4]float64 {
	var m [4][4]float64
	for i := 0; i < 4; i++ {
		m[i][i] = 1
	}
	return m
}

// Rank is the number of axes
func (v *Volume) Rank() int { return len(v.Shape) }

// Len is the number of samples implied by Shape
func (v *Volume) Len() int {
	n := 1
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

// Offset converts an index tuple into a position in Data.
// It panics when the tuple does not match the rank.
func (v *Volume) Offset(idx ...int) int {
	if len(idx) != len(v.Shape) {
		panic(fmt.Sprintf("models: index rank %d does not match volume rank %d", len(idx), len(v.Shape)))
	}
	off, stride := 0, 1
	for axis, i := range idx {
		off += i * stride
		stride *= v.Shape[axis]
	}
	return off
}

// At returns the sample at idx
func (v *Volume) At(idx ...int) float64 { return v.Data[v.Offset(idx...)] }

// Set stores value at idx
func (v *Volume) Set(value float64, idx ...int) { v.Data[v.Offset(idx...)] = value }

// ShapeString formats Shape the way error messages print it, e.g. (128, 256, 2)
func ShapeString(shape []int) string {
	s := "("
	for i, n := range shape {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprint(n)
	}
	return s + ")"
}
