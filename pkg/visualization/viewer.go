// Package visualization renders orthogonal slices of a volume as grayscale
// images for quick inspection of preprocessed subjects.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"volprep/internal/models"
)

// Viewer extracts 2D slices from one channel of a volume. Intensities are
// rescaled from the channel's [min, max] range to the full 16-bit range.
type Viewer struct {
	vol     *models.Volume
	channel int
	dims    [3]int

	// lo and hi bound the channel's samples
	lo, hi float64
}

// NewViewer creates a viewer on channel of v.
func NewViewer(v *models.Volume, channel int) (*Viewer, error) {
	if channel < 0 || channel >= v.Channels() {
		return nil, fmt.Errorf("channel %d out of range [0, %d)", channel, v.Channels())
	}
	dims := v.SpatialShape()
	n := dims[0] * dims[1] * dims[2]
	samples := v.Data()[channel*n : (channel+1)*n]
	return &Viewer{
		vol:     v,
		channel: channel,
		dims:    dims,
		lo:      floats.Min(samples),
		hi:      floats.Max(samples),
	}, nil
}

func (v *Viewer) gray(i, j, k int) color.Gray16 {
	if v.hi <= v.lo {
		return color.Gray16{}
	}
	t := (v.vol.At(i, j, k, v.channel) - v.lo) / (v.hi - v.lo)
	return color.Gray16{Y: uint16(math.Round(math.Max(0, math.Min(1, t)) * 65535))}
}

// axisIndex maps "x", "y", "z" (either case) to 0, 1, 2.
func axisIndex(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return 0, nil
	case "y", "Y":
		return 1, nil
	case "z", "Z":
		return 2, nil
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// ExtractSlice extracts the plane at position along axis. An x slice is
// depth wide and height tall, a y slice width by depth, a z slice width by
// height.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= v.dims[a] {
		return nil, fmt.Errorf("position %d outside [0, %d) on axis %s", position, v.dims[a], axis)
	}

	nx, ny, nz := v.dims[0], v.dims[1], v.dims[2]
	var img *image.Gray16
	switch a {
	case 0:
		img = image.NewGray16(image.Rect(0, 0, nz, ny))
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				img.SetGray16(z, y, v.gray(position, y, z))
			}
		}
	case 1:
		img = image.NewGray16(image.Rect(0, 0, nx, nz))
		for z := 0; z < nz; z++ {
			for x := 0; x < nx; x++ {
				img.SetGray16(x, z, v.gray(x, position, z))
			}
		}
	case 2:
		img = image.NewGray16(image.Rect(0, 0, nx, ny))
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				img.SetGray16(x, y, v.gray(x, y, position))
			}
		}
	}
	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along axis into
// outputDir as slice_<axis>_NNN.jpg.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	a, err := axisIndex(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < v.dims[a]; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// SaveMidSlices writes the central x, y and z slices to outputDir using
// prefix for the file names.
func (v *Viewer) SaveMidSlices(outputDir, prefix string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	for a, axis := range []string{"x", "y", "z"} {
		img, err := v.ExtractSlice(axis, v.dims[a]/2)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s.jpg", prefix, axis))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}
