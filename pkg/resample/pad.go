package resample

import (
	"errors"
	"fmt"

	"volprep/internal/models"
	"volprep/pkg/affine"
)

// ErrUnknownPadMode is returned for a padding mode outside the enumerated set.
var ErrUnknownPadMode = errors.New("unknown pad mode")

// PadMode names how samples beyond the border are synthesized.
type PadMode string

const (
	// PadEdge repeats the border sample
	PadEdge PadMode = "edge"
	// PadConstant fills with zero
	PadConstant PadMode = "constant"
	// PadReflect mirrors about the border sample without repeating it
	PadReflect PadMode = "reflect"
	// PadSymmetric mirrors about the border, repeating the border sample
	PadSymmetric PadMode = "symmetric"
	// PadWrap continues from the opposite side
	PadWrap PadMode = "wrap"
)

// ParsePadMode validates a mode name. The empty string means PadEdge.
func ParsePadMode(s string) (PadMode, error) {
	switch m := PadMode(s); m {
	case "":
		return PadEdge, nil
	case PadEdge, PadConstant, PadReflect, PadSymmetric, PadWrap:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPadMode, s)
	}
}

// sourceIndex maps a possibly out-of-range index i on an axis of n voxels
// back into [0, n). It returns -1 when the sample is a constant fill.
func sourceIndex(i, n int, mode PadMode) int {
	if i >= 0 && i < n {
		return i
	}
	switch mode {
	case PadConstant:
		return -1
	case PadReflect:
		if n == 1 {
			return 0
		}
		period := 2 * (n - 1)
		i = mod(i, period)
		if i >= n {
			i = period - i
		}
		return i
	case PadSymmetric:
		period := 2 * n
		i = mod(i, period)
		if i >= n {
			i = period - 1 - i
		}
		return i
	case PadWrap:
		return mod(i, n)
	default:
		if i < 0 {
			return 0
		}
		return n - 1
	}
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// PadVolume extends the three spatial axes of src by width voxels on each
// side. Trailing axes are not padded. The affine origin moves to source
// voxel (-width, -width, -width), so the original samples keep their world
// positions under any rotation or axis flip.
func PadVolume(src *models.Volume, mode PadMode, width int) (*models.Volume, error) {
	mode, err := ParsePadMode(string(mode))
	if err != nil {
		return nil, err
	}
	if width < 0 {
		return nil, fmt.Errorf("%w: negative pad width %d", models.ErrShapeMismatch, width)
	}

	shape := src.Shape()
	nx, ny, nz := shape[0], shape[1], shape[2]
	outShape := src.Shape()
	for i := 0; i < 3; i++ {
		outShape[i] += 2 * width
	}
	px, py, pz := outShape[0], outShape[1], outShape[2]

	in := src.Data()
	out := make([]float64, models.Product(outShape))
	for c := 0; c < src.Channels(); c++ {
		for k := 0; k < pz; k++ {
			sk := sourceIndex(k-width, nz, mode)
			for j := 0; j < py; j++ {
				sj := sourceIndex(j-width, ny, mode)
				dst := px * (j + py*(k+pz*c))
				for i := 0; i < px; i++ {
					si := sourceIndex(i-width, nx, mode)
					if si < 0 || sj < 0 || sk < 0 {
						continue
					}
					out[dst+i] = in[si+nx*(sj+ny*(sk+nz*c))]
				}
			}
		}
	}

	w := -float64(width)
	return models.Adopt(out, outShape, affine.Translate(src.Affine(), []float64{w, w, w}))
}

// Crop returns the axis-aligned box [start, stop) of src. The affine origin
// moves to the voxel at start.
func Crop(src *models.Volume, start, stop [3]int) (*models.Volume, error) {
	shape := src.Shape()
	outShape := src.Shape()
	for i := 0; i < 3; i++ {
		if start[i] < 0 || stop[i] > shape[i] || start[i] >= stop[i] {
			return nil, fmt.Errorf("%w: crop [%v, %v) outside shape %v", models.ErrShapeMismatch, start, stop, shape)
		}
		outShape[i] = stop[i] - start[i]
	}

	nx, ny, nz := shape[0], shape[1], shape[2]
	cx, cy, cz := outShape[0], outShape[1], outShape[2]
	in := src.Data()
	out := make([]float64, models.Product(outShape))
	for c := 0; c < src.Channels(); c++ {
		for k := 0; k < cz; k++ {
			for j := 0; j < cy; j++ {
				from := start[0] + nx*(start[1]+j+ny*(start[2]+k+nz*c))
				to := cx * (j + cy*(k+cz*c))
				copy(out[to:to+cx], in[from:from+cx])
			}
		}
	}

	origin := []float64{float64(start[0]), float64(start[1]), float64(start[2])}
	return models.Adopt(out, outShape, affine.Translate(src.Affine(), origin))
}
