// Package affine provides pure functions over 4x4 homogeneous voxel-to-world
// transforms. Every function returns a freshly allocated matrix and never
// writes to its arguments. Composition is always right multiplication
// (new = old · delta), so deltas are expressed in voxel space.
package affine

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDegenerateAffine is returned when the 3x3 linear part of an affine is
	// singular, has a zero-norm column, or the last row is not (0, 0, 0, 1).
	ErrDegenerateAffine = errors.New("degenerate affine")

	// ErrDimensionality is returned when fewer than three spatial axes are
	// available where three are required.
	ErrDimensionality = errors.New("fewer than three spatial axes")
)

// singularTol bounds |det(RZS)| relative to the product of the column norms.
const singularTol = 1e-12

// Identity returns a new 4x4 identity matrix.
func Identity() *mat.Dense {
	return Scale([]float64{1, 1, 1})
}

// need3 panics with ErrDimensionality when a vector argument is short.
func need3(name string, n int) {
	if n < 3 {
		panic(fmt.Errorf("%w: %s has %d entries", ErrDimensionality, name, n))
	}
}

// Scale returns diag(s[0], s[1], s[2], 1). It panics with an error wrapping
// ErrDimensionality if s has fewer than 3 entries.
func Scale(s []float64) *mat.Dense {
	need3("scale", len(s))
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		m.Set(i, i, s[i])
	}
	m.Set(3, 3, 1)
	return m
}

// Translation returns the identity with v in the translation column. Like
// Scale it panics if v has fewer than 3 entries.
func Translation(v []float64) *mat.Dense {
	need3("translation", len(v))
	m := Identity()
	for i := 0; i < 3; i++ {
		m.Set(i, 3, v[i])
	}
	return m
}

// Clone returns a deep copy of a.
func Clone(a mat.Matrix) *mat.Dense {
	return mat.DenseCopyOf(a)
}

// Equal reports whether a and b agree elementwise within tol.
func Equal(a, b mat.Matrix, tol float64) bool {
	return mat.EqualApprox(a, b, tol)
}

func checkShape(a mat.Matrix) error {
	if a == nil {
		return fmt.Errorf("%w: nil affine", ErrDimensionality)
	}
	if r, c := a.Dims(); r != 4 || c != 4 {
		return fmt.Errorf("%w: affine is %dx%d, want 4x4", ErrDimensionality, r, c)
	}
	return nil
}

// SpacingOf returns the per-axis voxel size: the Euclidean norm of each of the
// first three columns of the linear part of a.
func SpacingOf(a mat.Matrix) ([]float64, error) {
	if err := checkShape(a); err != nil {
		return nil, err
	}

	spacing := make([]float64, 3)
	col := make([]float64, 3)
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			col[i] = a.At(i, j)
		}
		spacing[j] = floats.Norm(col, 2)
		if spacing[j] == 0 || math.IsNaN(spacing[j]) || math.IsInf(spacing[j], 0) {
			return nil, fmt.Errorf("%w: column %d has norm %v", ErrDegenerateAffine, j, spacing[j])
		}
	}

	rzs := mat.NewDense(3, 3, nil)
	rzs.Copy(a)
	det := mat.Det(rzs)
	if math.Abs(det) <= singularTol*floats.Prod(spacing) {
		return nil, fmt.Errorf("%w: linear part is singular (det=%g)", ErrDegenerateAffine, det)
	}
	return spacing, nil
}

// Validate checks that a is a usable voxel-to-world transform.
func Validate(a mat.Matrix) error {
	if err := checkShape(a); err != nil {
		return err
	}
	if a.At(3, 0) != 0 || a.At(3, 1) != 0 || a.At(3, 2) != 0 || a.At(3, 3) != 1 {
		return fmt.Errorf("%w: last row must be (0, 0, 0, 1)", ErrDegenerateAffine)
	}
	_, err := SpacingOf(a)
	return err
}

// SetSpacing rescales the three linear columns of a so that their norms
// equal spacing, keeping their directions.
func SetSpacing(a mat.Matrix, spacing []float64) (*mat.Dense, error) {
	if len(spacing) < 3 {
		return nil, fmt.Errorf("%w: spacing has %d entries", ErrDimensionality, len(spacing))
	}
	current, err := SpacingOf(a)
	if err != nil {
		return nil, err
	}
	for i, s := range spacing[:3] {
		if !(s > 0) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("%w: target spacing %v on axis %d", ErrDegenerateAffine, s, i)
		}
	}

	scale := make([]float64, 3)
	floats.DivTo(scale, spacing[:3], current)

	var out mat.Dense
	out.Mul(a, Scale(scale))
	return &out, nil
}

// OriginOffset returns the half-voxel centering correction, in old-spacing
// voxel units, for moving from oldSpacing to newSpacing. Both need 3
// entries; shorter input panics as in Scale. AdjustSpacing checks lengths
// and returns ErrDimensionality instead.
func OriginOffset(newSpacing, oldSpacing []float64) []float64 {
	need3("new spacing", len(newSpacing))
	need3("old spacing", len(oldSpacing))
	offset := make([]float64, 3)
	floats.SubTo(offset, newSpacing[:3], oldSpacing[:3])
	floats.Scale(0.5, offset)
	floats.Div(offset, oldSpacing[:3])
	return offset
}

// AdjustSpacing translates a by the origin offset for the spacing change and
// then rewrites its spacing. The offset is applied in voxel space before the
// rescale because it is measured in the current voxel units. If
// currentSpacing is nil it is taken from a.
func AdjustSpacing(a mat.Matrix, newSpacing, currentSpacing []float64) (*mat.Dense, error) {
	if err := checkShape(a); err != nil {
		return nil, err
	}
	if len(newSpacing) < 3 {
		return nil, fmt.Errorf("%w: spacing has %d entries", ErrDimensionality, len(newSpacing))
	}
	if currentSpacing == nil {
		s, err := SpacingOf(a)
		if err != nil {
			return nil, err
		}
		currentSpacing = s
	} else if len(currentSpacing) < 3 {
		return nil, fmt.Errorf("%w: current spacing has %d entries", ErrDimensionality, len(currentSpacing))
	}

	var shifted mat.Dense
	shifted.Mul(a, Translation(OriginOffset(newSpacing, currentSpacing)))
	return SetSpacing(&shifted, newSpacing)
}

// ExtentOf returns the physical size of a grid of the given shape under a.
func ExtentOf(shape []int, a mat.Matrix) ([]float64, error) {
	if len(shape) < 3 {
		return nil, fmt.Errorf("%w: shape has %d axes", ErrDimensionality, len(shape))
	}
	spacing, err := SpacingOf(a)
	if err != nil {
		return nil, err
	}
	extent := make([]float64, 3)
	for i := range extent {
		extent[i] = float64(shape[i]) * spacing[i]
	}
	return extent, nil
}

// Translate moves the origin of a to the voxel at index v, i.e. a · T(v).
func Translate(a mat.Matrix, v []float64) *mat.Dense {
	var out mat.Dense
	out.Mul(a, Translation(v))
	return &out
}

// Inverse returns the world-to-voxel transform of a.
func Inverse(a mat.Matrix) (*mat.Dense, error) {
	if err := Validate(a); err != nil {
		return nil, err
	}
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateAffine, err)
	}
	return &inv, nil
}

// Apply maps the 3-point p through a.
func Apply(a mat.Matrix, p []float64) []float64 {
	need3("point", len(p))
	out := make([]float64, 3)
	for i := 0; i < 3; i++ {
		out[i] = a.At(i, 0)*p[0] + a.At(i, 1)*p[1] + a.At(i, 2)*p[2] + a.At(i, 3)
	}
	return out
}
