// Package preprocess turns decoded images into training-ready volumes:
// shape normalization, cropping and resizing onto a common grid.
package preprocess

import (
	"context"
	"fmt"

	"volprep/internal/models"
	"volprep/pkg/interpolation"
	"volprep/pkg/logging"
	"volprep/pkg/resample"
)

// Loader supplies a decoded Volume for a path. Decoding on-disk formats is
// the loader's concern.
type Loader interface {
	Load(ctx context.Context, path string) (*models.Volume, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) (*models.Volume, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, path string) (*models.Volume, error) {
	return f(ctx, path)
}

// Resizer is the part of resample.Resampler the reader needs.
type Resizer interface {
	ResizeToShape(src *models.Volume, newShape []int, opts resample.Options) (*models.Volume, error)
}

// Box is an axis-aligned crop [Start, Stop) over the spatial axes.
type Box struct {
	Start [3]int
	Stop  [3]int
}

// ReadOptions controls ReadImage.
type ReadOptions struct {
	// Shape, when set, resizes the image to this spatial shape
	Shape []int

	// Crop, when set, is applied before any resize
	Crop *Box

	Interpolation        interpolation.Kind
	BackgroundCorrection bool
	PadMode              resample.PadMode
}

// Reader loads images and brings them onto the requested grid.
type Reader struct {
	loader  Loader
	resizer Resizer
}

// NewReader creates a Reader. A nil resizer uses resample.New().
func NewReader(loader Loader, resizer Resizer) *Reader {
	if resizer == nil {
		resizer = resample.New()
	}
	return &Reader{loader: loader, resizer: resizer}
}

// ReadImage loads path, drops a trailing singleton axis, crops and resizes.
func (r *Reader) ReadImage(ctx context.Context, path string, opts ReadOptions) (*models.Volume, error) {
	logging.FromContext(ctx).Info("reading image", "path", path)

	v, err := r.loader.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if v, err = FixShape(v); err != nil {
		return nil, fmt.Errorf("normalizing %s: %w", path, err)
	}
	if opts.Crop != nil {
		if v, err = resample.Crop(v, opts.Crop.Start, opts.Crop.Stop); err != nil {
			return nil, fmt.Errorf("cropping %s: %w", path, err)
		}
	}
	if len(opts.Shape) == 0 {
		return v, nil
	}

	out, err := r.resizer.ResizeToShape(v, opts.Shape, resample.Options{
		Interpolation:        opts.Interpolation,
		BackgroundCorrection: opts.BackgroundCorrection,
		PadMode:              opts.PadMode,
	})
	if err != nil {
		return nil, fmt.Errorf("resizing %s: %w", path, err)
	}
	return out, nil
}

// ReadImageFiles reads every path with opts. Paths whose index appears in
// labelIndices are read with nearest-neighbour interpolation so label values
// are never blended; the rest use opts.Interpolation.
func (r *Reader) ReadImageFiles(ctx context.Context, paths []string, opts ReadOptions, labelIndices ...int) ([]*models.Volume, error) {
	labels := make(map[int]bool, len(labelIndices))
	for _, i := range labelIndices {
		labels[i] = true
	}

	volumes := make([]*models.Volume, 0, len(paths))
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o := opts
		if labels[i] {
			o.Interpolation = interpolation.Nearest
		}
		v, err := r.ReadImage(ctx, path, o)
		if err != nil {
			return nil, err
		}
		volumes = append(volumes, v)
	}
	return volumes, nil
}

// FixShape drops trailing singleton axes beyond the three spatial ones.
func FixShape(v *models.Volume) (*models.Volume, error) {
	shape := v.Shape()
	n := len(shape)
	for n > 3 && shape[n-1] == 1 {
		n--
	}
	if n == len(shape) {
		return v, nil
	}
	return models.Adopt(v.CopyData(), shape[:n], v.Affine())
}
