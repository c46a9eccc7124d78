package models

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"volprep/pkg/affine"
)

// ErrShapeMismatch is returned when array lengths disagree with a declared
// shape, or when two volumes that must share a grid do not.
var ErrShapeMismatch = errors.New("shape mismatch")

// Volume is a sampled grid together with its voxel-to-world affine.
//
// A Volume is immutable once constructed: every transform in this module
// returns a new Volume with its own backing array and affine.
type Volume struct {
	// data holds the samples with the first axis varying fastest:
	// index = i + nx*(j + ny*(k + nz*c))
	data []float64

	// shape is the per-axis voxel count, (x, y, z[, channel...])
	shape []int

	// affine maps voxel indices (i, j, k, 1) to world coordinates
	affine *mat.Dense
}

// NewVolume copies data, shape and a into a new Volume. A nil affine means
// the identity.
func NewVolume(data []float64, shape []int, a mat.Matrix) (*Volume, error) {
	d := make([]float64, len(data))
	copy(d, data)
	var m *mat.Dense
	if a != nil {
		m = affine.Clone(a)
	}
	return Adopt(d, shape, m)
}

// Adopt builds a Volume that takes ownership of data and a. The caller must
// not use either afterwards.
func Adopt(data []float64, shape []int, a *mat.Dense) (*Volume, error) {
	if len(shape) < 3 {
		return nil, fmt.Errorf("%w: volume shape %v", affine.ErrDimensionality, shape)
	}
	n := 1
	for i, s := range shape {
		if s <= 0 {
			return nil, fmt.Errorf("%w: axis %d has size %d", ErrShapeMismatch, i, s)
		}
		n *= s
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: shape %v needs %d samples, got %d", ErrShapeMismatch, shape, n, len(data))
	}
	if a == nil {
		a = affine.Identity()
	}
	if err := affine.Validate(a); err != nil {
		return nil, err
	}

	sh := make([]int, len(shape))
	copy(sh, shape)
	return &Volume{data: data, shape: sh, affine: a}, nil
}

// Data returns the backing samples. Callers must treat the slice as
// read-only; use CopyData for a writable copy.
func (v *Volume) Data() []float64 { return v.data }

// CopyData returns a copy of the samples.
func (v *Volume) CopyData() []float64 {
	d := make([]float64, len(v.data))
	copy(d, v.data)
	return d
}

// Shape returns a copy of the per-axis voxel counts.
func (v *Volume) Shape() []int {
	s := make([]int, len(v.shape))
	copy(s, v.shape)
	return s
}

// Dims returns the number of axes.
func (v *Volume) Dims() int { return len(v.shape) }

// SpatialShape returns the first three axis sizes.
func (v *Volume) SpatialShape() [3]int {
	return [3]int{v.shape[0], v.shape[1], v.shape[2]}
}

// Channels returns the product of the trailing (non-spatial) axis sizes.
func (v *Volume) Channels() int {
	c := 1
	for _, s := range v.shape[3:] {
		c *= s
	}
	return c
}

// Affine returns a copy of the voxel-to-world transform.
func (v *Volume) Affine() *mat.Dense { return affine.Clone(v.affine) }

// Spacing returns the per-axis voxel size derived from the affine.
func (v *Volume) Spacing() []float64 {
	// The affine was validated at construction.
	s, _ := affine.SpacingOf(v.affine)
	return s
}

// Extent returns the physical size of the first three axes.
func (v *Volume) Extent() []float64 {
	e, _ := affine.ExtentOf(v.shape, v.affine)
	return e
}

// Index returns the flat offset of voxel (i, j, k) in channel c.
func (v *Volume) Index(i, j, k, c int) int {
	nx, ny, nz := v.shape[0], v.shape[1], v.shape[2]
	return i + nx*(j+ny*(k+nz*c))
}

// At returns the sample at voxel (i, j, k) in channel c.
func (v *Volume) At(i, j, k, c int) float64 {
	return v.data[v.Index(i, j, k, c)]
}

// Clone returns a deep copy of v.
func (v *Volume) Clone() *Volume {
	return &Volume{data: v.CopyData(), shape: v.Shape(), affine: v.Affine()}
}

// SameGrid reports whether v and o share shape and affine (within tol).
func (v *Volume) SameGrid(o *Volume, tol float64) bool {
	return EqualShapes(v.shape, o.shape) && affine.Equal(v.affine, o.affine, tol)
}

func (v *Volume) String() string {
	return fmt.Sprintf("Volume(shape=%v, spacing=%v)", v.shape, v.Spacing())
}

// EqualShapes reports whether a and b have identical axis sizes.
func EqualShapes(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Product returns the number of elements in a grid of the given shape.
func Product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
