package resample

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"volprep/internal/models"
)

// ResizeFunc is the inner resize a BackgroundCorrector wraps.
type ResizeFunc func(src *models.Volume, newShape []int, opts Options) (*models.Volume, error)

// BackgroundCorrector runs inner on src so that the zero fill used outside
// the source grid does not bleed into the result. opts always arrives with
// BackgroundCorrection off and must be passed to inner unchanged. The result
// has the same shape and affine as a direct call to inner.
type BackgroundCorrector interface {
	Correct(inner ResizeFunc, src *models.Volume, newShape []int, opts Options) (*models.Volume, error)
}

// CorrectorFunc adapts a function to BackgroundCorrector.
type CorrectorFunc func(inner ResizeFunc, src *models.Volume, newShape []int, opts Options) (*models.Volume, error)

// Correct calls f.
func (f CorrectorFunc) Correct(inner ResizeFunc, src *models.Volume, newShape []int, opts Options) (*models.Volume, error) {
	return f(inner, src, newShape, opts)
}

// MedianCornerCorrector estimates the background of each channel as the
// median of the eight corner voxels, shifts the volume so the background is
// zero, runs the inner resize, and shifts the result back.
type MedianCornerCorrector struct{}

// Correct implements BackgroundCorrector.
func (MedianCornerCorrector) Correct(inner ResizeFunc, src *models.Volume, newShape []int, opts Options) (*models.Volume, error) {
	opts.BackgroundCorrection = false
	background := EstimateBackground(src)

	shifted, err := offsetChannels(src, background, -1)
	if err != nil {
		return nil, err
	}
	out, err := inner(shifted, newShape, opts)
	if err != nil {
		return nil, err
	}
	return offsetChannels(out, background, 1)
}

// EstimateBackground returns one background estimate per channel: the
// median of the corner voxels of that channel.
func EstimateBackground(v *models.Volume) []float64 {
	s := v.SpatialShape()
	xs := []int{0, s[0] - 1}
	ys := []int{0, s[1] - 1}
	zs := []int{0, s[2] - 1}

	background := make([]float64, v.Channels())
	corners := make([]float64, 0, 8)
	for c := range background {
		corners = corners[:0]
		for _, k := range zs {
			for _, j := range ys {
				for _, i := range xs {
					corners = append(corners, v.At(i, j, k, c))
				}
			}
		}
		// even count: the median is the mean of the two middle values
		sort.Float64s(corners)
		background[c] = stat.Mean(corners[3:5], nil)
	}
	return background
}

// offsetChannels returns a copy of v with sign*offset[c] added to channel c.
func offsetChannels(v *models.Volume, offset []float64, sign float64) (*models.Volume, error) {
	data := v.CopyData()
	s := v.SpatialShape()
	n := s[0] * s[1] * s[2]
	for c, o := range offset {
		if o == 0 {
			continue
		}
		for i := c * n; i < (c+1)*n; i++ {
			data[i] += sign * o
		}
	}
	return models.Adopt(data, v.Shape(), v.Affine())
}
