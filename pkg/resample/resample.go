// Package resample moves volumes between voxel grids. A target grid is
// described by a spatial shape and a voxel-to-world affine; samples are
// carried across by mapping each target voxel through world coordinates
// back into the source grid and reading it with an interpolation kernel.
package resample

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"volprep/internal/models"
	"volprep/pkg/affine"
	"volprep/pkg/interpolation"
)

// Options controls a resize.
type Options struct {
	// Interpolation selects the sampling kernel
	Interpolation interpolation.Kind

	// BackgroundCorrection runs the resize through the Resampler's
	// BackgroundCorrector
	BackgroundCorrection bool

	// PadMode is used when the source is padded before an upsampling
	// resize. Empty means PadEdge.
	PadMode PadMode
}

// DefaultOptions returns linear interpolation, no correction, edge padding.
func DefaultOptions() Options {
	return Options{Interpolation: interpolation.Linear, PadMode: PadEdge}
}

// Target describes a grid to resample onto. Only the first three entries of
// Shape are used; trailing axes are carried over from the source.
type Target struct {
	Shape  []int
	Affine *mat.Dense
}

// Resampler performs resizes and resamples. It holds no per-call state and
// is safe for concurrent use.
type Resampler struct {
	corrector BackgroundCorrector
	logger    *slog.Logger
}

// Option configures a Resampler.
type Option func(*Resampler)

// WithCorrector sets the collaborator used when BackgroundCorrection is on.
func WithCorrector(c BackgroundCorrector) Option {
	return func(r *Resampler) { r.corrector = c }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resampler) { r.logger = l }
}

// New creates a Resampler. By default background correction uses
// MedianCornerCorrector.
func New(opts ...Option) *Resampler {
	r := &Resampler{corrector: MedianCornerCorrector{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resampler) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

var std = New()

// ResizeToShape resizes src with the default Resampler.
func ResizeToShape(src *models.Volume, newShape []int, opts Options) (*models.Volume, error) {
	return std.ResizeToShape(src, newShape, opts)
}

// ResampleToSpacing respaces src with the default Resampler.
func ResampleToSpacing(src *models.Volume, newSpacing []float64, kind interpolation.Kind) (*models.Volume, error) {
	return std.ResampleToSpacing(src, newSpacing, kind)
}

// ResampleOnto resamples src onto target with the default Resampler.
func ResampleOnto(src *models.Volume, target Target, kind interpolation.Kind, mode PadMode, pad bool) (*models.Volume, error) {
	return std.ResampleOnto(src, target, kind, mode, pad)
}

// ResizeToShape resamples src onto a grid of newShape voxels covering the
// same physical field of view. Spacing grows by the inverse of the zoom and
// the origin shifts by half a voxel so sample centers stay aligned. The
// source is padded with opts.PadMode first whenever any axis is upsampled. The resample
// runs even when newShape equals the source shape.
//
// newShape may list only the three spatial axes or every axis; trailing
// axes must then match the source.
func (r *Resampler) ResizeToShape(src *models.Volume, newShape []int, opts Options) (*models.Volume, error) {
	if _, err := interpolation.New(opts.Interpolation); err != nil {
		return nil, err
	}
	if err := checkNewShape(src, newShape); err != nil {
		return nil, err
	}

	if opts.BackgroundCorrection {
		inner := opts
		inner.BackgroundCorrection = false
		return r.corrector.Correct(r.ResizeToShape, src, newShape, inner)
	}

	shape := src.SpatialShape()
	zoom := make([]float64, 3)
	pad := false
	for i := 0; i < 3; i++ {
		zoom[i] = float64(newShape[i]) / float64(shape[i])
		if newShape[i] > shape[i] {
			pad = true
		}
	}
	newSpacing := make([]float64, 3)
	floats.DivTo(newSpacing, src.Spacing(), zoom)

	a, err := affine.AdjustSpacing(src.Affine(), newSpacing, nil)
	if err != nil {
		return nil, fmt.Errorf("adjusting affine for shape %v: %w", newShape, err)
	}

	r.log().Debug("resizing volume",
		"from", shape, "to", newShape[:3], "spacing", newSpacing,
		"interpolation", opts.Interpolation.String(), "pad", pad)

	return r.ResampleOnto(src, Target{Shape: newShape[:3], Affine: a}, opts.Interpolation, opts.PadMode, pad)
}

func checkNewShape(src *models.Volume, newShape []int) error {
	if len(newShape) < 3 {
		return fmt.Errorf("%w: new shape %v", affine.ErrDimensionality, newShape)
	}
	for i, s := range newShape {
		if s <= 0 {
			return fmt.Errorf("%w: new shape axis %d is %d", models.ErrShapeMismatch, i, s)
		}
	}
	if len(newShape) > 3 {
		shape := src.Shape()
		if !models.EqualShapes(shape[3:], newShape[3:]) {
			return fmt.Errorf("%w: new shape %v changes non-spatial axes of %v", models.ErrShapeMismatch, newShape, shape)
		}
	}
	return nil
}

// ceilTol absorbs rounding in extent/spacing before taking the ceiling.
const ceilTol = 1e-9

// ResampleToSpacing resamples src to the given physical voxel size. The grid
// keeps the source field of view, rounded up to whole voxels. No padding is
// applied.
func (r *Resampler) ResampleToSpacing(src *models.Volume, newSpacing []float64, kind interpolation.Kind) (*models.Volume, error) {
	if len(newSpacing) < 3 {
		return nil, fmt.Errorf("%w: spacing has %d entries", affine.ErrDimensionality, len(newSpacing))
	}
	a, err := affine.AdjustSpacing(src.Affine(), newSpacing, src.Spacing())
	if err != nil {
		return nil, err
	}

	extent := src.Extent()
	shape := make([]int, 3)
	for i := range shape {
		shape[i] = int(math.Ceil(extent[i]/newSpacing[i] - ceilTol))
		if shape[i] < 1 {
			shape[i] = 1
		}
	}

	r.log().Debug("respacing volume", "spacing", newSpacing[:3], "shape", shape)
	return r.ResampleOnto(src, Target{Shape: shape, Affine: a}, kind, PadEdge, false)
}

// Resample resamples src onto an explicit affine and spatial shape.
func (r *Resampler) Resample(src *models.Volume, targetAffine mat.Matrix, targetShape []int, kind interpolation.Kind, mode PadMode, pad bool) (*models.Volume, error) {
	if targetAffine == nil {
		return nil, fmt.Errorf("%w: nil target affine", affine.ErrDimensionality)
	}
	return r.ResampleOnto(src, Target{Shape: targetShape, Affine: affine.Clone(targetAffine)}, kind, mode, pad)
}

// ResampleOnto samples src on target's grid. When pad is set the source is
// first padded by one voxel with mode so that target voxels near the border
// read border data instead of the zero fill. Positions outside the source
// grid are filled with 0.
func (r *Resampler) ResampleOnto(src *models.Volume, target Target, kind interpolation.Kind, mode PadMode, pad bool) (*models.Volume, error) {
	interp, err := interpolation.New(kind)
	if err != nil {
		return nil, err
	}
	if len(target.Shape) < 3 {
		return nil, fmt.Errorf("%w: target shape %v", affine.ErrDimensionality, target.Shape)
	}
	for i, s := range target.Shape[:3] {
		if s <= 0 {
			return nil, fmt.Errorf("%w: target axis %d is %d", models.ErrShapeMismatch, i, s)
		}
	}
	if target.Affine == nil {
		return nil, fmt.Errorf("%w: nil target affine", affine.ErrDimensionality)
	}
	if err := affine.Validate(target.Affine); err != nil {
		return nil, fmt.Errorf("target affine: %w", err)
	}

	if pad {
		if src, err = PadVolume(src, mode, 1); err != nil {
			return nil, err
		}
	}

	inv, err := affine.Inverse(src.Affine())
	if err != nil {
		return nil, fmt.Errorf("source affine: %w", err)
	}
	// Target voxel -> world -> source voxel, computed once.
	var vox mat.Dense
	vox.Mul(inv, target.Affine)
	var m [3][4]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			m[i][j] = vox.At(i, j)
		}
	}

	srcShape := src.Shape()
	nx, ny, nz := target.Shape[0], target.Shape[1], target.Shape[2]
	outShape := append([]int{nx, ny, nz}, srcShape[3:]...)
	out := make([]float64, models.Product(outShape))

	srcVoxels := srcShape[0] * srcShape[1] * srcShape[2]
	outVoxels := nx * ny * nz
	grid := interpolation.Grid{Data: src.Data(), NX: srcShape[0], NY: srcShape[1], NZ: srcShape[2]}

	for c := 0; c < src.Channels(); c++ {
		grid.Offset = c * srcVoxels
		base := c * outVoxels
		for k := 0; k < nz; k++ {
			fk := float64(k)
			for j := 0; j < ny; j++ {
				fj := float64(j)
				row := base + nx*(j+ny*k)
				for i := 0; i < nx; i++ {
					fi := float64(i)
					x := m[0][0]*fi + m[0][1]*fj + m[0][2]*fk + m[0][3]
					y := m[1][0]*fi + m[1][1]*fj + m[1][2]*fk + m[1][3]
					z := m[2][0]*fi + m[2][1]*fj + m[2][2]*fk + m[2][3]
					if v, ok := interp.Sample(grid, x, y, z); ok {
						out[row+i] = v
					}
				}
			}
		}
	}

	return models.Adopt(out, outShape, affine.Clone(target.Affine))
}

// ResizeAffine returns the affine a grid of targetShape voxels would have if
// it covered the same field of view as a grid of shape voxels under a.
func ResizeAffine(a mat.Matrix, shape, targetShape []int) (*mat.Dense, error) {
	if len(shape) < 3 || len(targetShape) < 3 {
		return nil, fmt.Errorf("%w: shapes %v and %v", affine.ErrDimensionality, shape, targetShape)
	}
	spacing, err := affine.SpacingOf(a)
	if err != nil {
		return nil, err
	}
	target := make([]float64, 3)
	for i := range target {
		if targetShape[i] <= 0 {
			return nil, fmt.Errorf("%w: target axis %d is %d", models.ErrShapeMismatch, i, targetShape[i])
		}
		target[i] = spacing[i] * float64(shape[i]) / float64(targetShape[i])
	}
	return affine.AdjustSpacing(a, target, nil)
}
