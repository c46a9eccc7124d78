package interpolation

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownInterpolation is returned for an interpolation kind outside the
// enumerated set.
var ErrUnknownInterpolation = errors.New("unknown interpolation kind")

// Kind selects the sampling kernel. The zero value is Linear.
type Kind int

const (
	// Linear blends the eight surrounding voxels (trilinear)
	Linear Kind = iota
	// Nearest takes the closest voxel without blending
	Nearest
	// Continuous uses a tricubic Catmull-Rom kernel over 4x4x4 voxels
	Continuous
)

func (k Kind) String() string {
	switch k {
	case Linear:
		return "linear"
	case Nearest:
		return "nearest"
	case Continuous:
		return "continuous"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a kind name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear":
		return Linear, nil
	case "nearest":
		return Nearest, nil
	case "continuous":
		return Continuous, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownInterpolation, s)
	}
}

// Grid is a read-only view of one channel of a first-axis-fastest volume.
type Grid struct {
	Data       []float64
	NX, NY, NZ int
	// Offset is the flat index of voxel (0, 0, 0) of the channel
	Offset int
}

func (g Grid) at(i, j, k int) float64 {
	return g.Data[g.Offset+i+g.NX*(j+g.NY*k)]
}

// Interpolator samples a grid at a fractional voxel position. The boolean
// result is false when the position lies outside the grid; the caller
// decides the fill value.
type Interpolator interface {
	Sample(g Grid, x, y, z float64) (float64, bool)
}

// New returns the kernel for kind.
func New(kind Kind) (Interpolator, error) {
	switch kind {
	case Nearest:
		return nearestKernel{}, nil
	case Linear:
		return linearKernel{}, nil
	case Continuous:
		return cubicKernel{}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownInterpolation, kind)
	}
}

// edgeTol admits positions a rounding error outside [0, n-1].
const edgeTol = 1e-9

type nearestKernel struct{}

func (nearestKernel) Sample(g Grid, x, y, z float64) (float64, bool) {
	i, j, k := int(math.Round(x)), int(math.Round(y)), int(math.Round(z))
	if i < 0 || j < 0 || k < 0 || i >= g.NX || j >= g.NY || k >= g.NZ {
		return 0, false
	}
	return g.at(i, j, k), true
}

// linearAxis returns the lower neighbor, the upper neighbor and the blend
// fraction along one axis.
func linearAxis(x float64, n int) (int, int, float64, bool) {
	if x < -edgeTol || x > float64(n-1)+edgeTol {
		return 0, 0, 0, false
	}
	if n == 1 {
		return 0, 0, 0, true
	}
	i0 := int(math.Floor(x))
	if i0 < 0 {
		i0 = 0
	}
	if i0 > n-2 {
		i0 = n - 2
	}
	f := x - float64(i0)
	if f < 0 {
		f = 0
	} else if f > 1 {
		f = 1
	}
	return i0, i0 + 1, f, true
}

type linearKernel struct{}

func (linearKernel) Sample(g Grid, x, y, z float64) (float64, bool) {
	x0, x1, fx, okx := linearAxis(x, g.NX)
	y0, y1, fy, oky := linearAxis(y, g.NY)
	z0, z1, fz, okz := linearAxis(z, g.NZ)
	if !okx || !oky || !okz {
		return 0, false
	}

	c00 := g.at(x0, y0, z0)*(1-fx) + g.at(x1, y0, z0)*fx
	c10 := g.at(x0, y1, z0)*(1-fx) + g.at(x1, y1, z0)*fx
	c01 := g.at(x0, y0, z1)*(1-fx) + g.at(x1, y0, z1)*fx
	c11 := g.at(x0, y1, z1)*(1-fx) + g.at(x1, y1, z1)*fx

	c0 := c00*(1-fy) + c10*fy
	c1 := c01*(1-fy) + c11*fy
	return c0*(1-fz) + c1*fz, true
}

// cubicAxis returns the four tap indices (clamped to the grid) and the
// Catmull-Rom weights along one axis.
func cubicAxis(x float64, n int) ([4]int, [4]float64, bool) {
	var idx [4]int
	var w [4]float64
	if x < -edgeTol || x > float64(n-1)+edgeTol {
		return idx, w, false
	}
	base := int(math.Floor(x))
	t := x - float64(base)
	for m := 0; m < 4; m++ {
		i := base - 1 + m
		if i < 0 {
			i = 0
		} else if i > n-1 {
			i = n - 1
		}
		idx[m] = i
	}

	t2, t3 := t*t, t*t*t
	w[0] = (-t3 + 2*t2 - t) / 2
	w[1] = (3*t3 - 5*t2 + 2) / 2
	w[2] = (-3*t3 + 4*t2 + t) / 2
	w[3] = (t3 - t2) / 2
	return idx, w, true
}

type cubicKernel struct{}

func (cubicKernel) Sample(g Grid, x, y, z float64) (float64, bool) {
	xi, wx, okx := cubicAxis(x, g.NX)
	yi, wy, oky := cubicAxis(y, g.NY)
	zi, wz, okz := cubicAxis(z, g.NZ)
	if !okx || !oky || !okz {
		return 0, false
	}

	var sum float64
	for c := 0; c < 4; c++ {
		var plane float64
		for b := 0; b < 4; b++ {
			var row float64
			for a := 0; a < 4; a++ {
				row += wx[a] * g.at(xi[a], yi[b], zi[c])
			}
			plane += wy[b] * row
		}
		sum += wz[c] * plane
	}
	return sum, true
}
