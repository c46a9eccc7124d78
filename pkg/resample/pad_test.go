package resample

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"volprep/internal/models"
	"volprep/pkg/affine"
	"volprep/pkg/interpolation"
)

// TestPadModes compares one padded row against the expected fill
func TestPadModes(t *testing.T) {
	src := createTestVolume(t, []int{3, 1, 1}, affine.Identity(), func(i, j, k, c int) float64 {
		return float64(i + 1)
	})

	expected := map[PadMode][]float64{
		PadEdge:      {1, 1, 1, 2, 3, 3, 3},
		PadConstant:  {0, 0, 1, 2, 3, 0, 0},
		PadReflect:   {3, 2, 1, 2, 3, 2, 1},
		PadSymmetric: {2, 1, 1, 2, 3, 3, 2},
		PadWrap:      {2, 3, 1, 2, 3, 1, 2},
	}
	for mode, row := range expected {
		out, err := PadVolume(src, mode, 2)
		if err != nil {
			t.Fatalf("Padding with %s failed: %v", mode, err)
		}
		checkShape(t, out, []int{7, 5, 5})
		for i, v := range row {
			if got := out.At(i, 2, 2, 0); got != v {
				t.Errorf("%s: expected %f at %d, got %f", mode, v, i, got)
			}
		}
	}
}

// TestPadAffine shifts the origin back by spacing * width
func TestPadAffine(t *testing.T) {
	a := affine.Translate(affine.Scale([]float64{2, 3, 0.5}), []float64{1, 1, 1})
	src := createTestVolume(t, []int{4, 4, 4}, a, gradient)

	out, err := PadVolume(src, PadEdge, 3)
	if err != nil {
		t.Fatalf("Padding failed: %v", err)
	}
	expected := []float64{2 - 6, 3 - 9, 0.5 - 1.5}
	for i := range expected {
		if got := out.Affine().At(i, 3); math.Abs(got-expected[i]) > 1e-12 {
			t.Errorf("Expected origin[%d]=%f, got %f", i, expected[i], got)
		}
	}
	checkSpacing(t, out, []float64{2, 3, 0.5})

	// The original first voxel keeps its world position.
	world := affine.Apply(out.Affine(), []float64{3, 3, 3})
	orig := affine.Apply(src.Affine(), []float64{0, 0, 0})
	for i := range world {
		if math.Abs(world[i]-orig[i]) > 1e-12 {
			t.Errorf("Expected world[%d]=%f, got %f", i, orig[i], world[i])
		}
	}
}

// TestPadChannels leaves trailing axes alone
func TestPadChannels(t *testing.T) {
	src := createTestVolume(t, []int{2, 2, 2, 3}, affine.Identity(), gradient)
	out, err := PadVolume(src, PadEdge, 1)
	if err != nil {
		t.Fatalf("Padding failed: %v", err)
	}
	checkShape(t, out, []int{4, 4, 4, 3})
	if got, expected := out.At(0, 0, 0, 2), src.At(0, 0, 0, 2); got != expected {
		t.Errorf("Expected %f in channel 2, got %f", expected, got)
	}
}

// TestPadThenCrop recovers the original volume for every mode. The padded
// border itself is policy-defined and not checked here.
func TestPadThenCrop(t *testing.T) {
	a := affine.Translate(affine.Scale([]float64{1.5, 1, 2}), []float64{-4, 2, 0})
	src := createTestVolume(t, []int{5, 4, 3, 2}, a, gradient)

	for _, mode := range []PadMode{PadEdge, PadConstant, PadReflect, PadSymmetric, PadWrap} {
		for _, w := range []int{0, 1, 2} {
			padded, err := PadVolume(src, mode, w)
			if err != nil {
				t.Fatalf("Padding with %s failed: %v", mode, err)
			}
			cropped, err := Crop(padded, [3]int{w, w, w}, [3]int{5 + w, 4 + w, 3 + w})
			if err != nil {
				t.Fatalf("Crop failed: %v", err)
			}
			checkShape(t, cropped, src.Shape())
			for i, v := range cropped.Data() {
				if v != src.Data()[i] {
					t.Fatalf("%s/%d: expected %f at %d, got %f", mode, w, src.Data()[i], i, v)
				}
			}
			if !affine.Equal(cropped.Affine(), src.Affine(), 1e-12) {
				t.Errorf("%s/%d: affine not restored", mode, w)
			}
		}
	}
}

// TestPadErrors rejects unknown modes and negative widths
func TestPadErrors(t *testing.T) {
	src := createTestVolume(t, []int{2, 2, 2}, affine.Identity(), gradient)
	if _, err := PadVolume(src, "mirror", 1); !errors.Is(err, ErrUnknownPadMode) {
		t.Errorf("Expected ErrUnknownPadMode, got %v", err)
	}
	if _, err := PadVolume(src, PadEdge, -1); !errors.Is(err, models.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
	if mode, err := ParsePadMode(""); err != nil || mode != PadEdge {
		t.Errorf("Expected empty mode to mean edge, got %q, %v", mode, err)
	}
}

// TestCrop extracts a box and moves the origin
func TestCrop(t *testing.T) {
	src := createTestVolume(t, []int{6, 5, 4}, affine.Scale([]float64{2, 2, 2}), gradient)
	out, err := Crop(src, [3]int{1, 2, 0}, [3]int{4, 5, 2})
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	checkShape(t, out, []int{3, 3, 2})
	if got, expected := out.At(0, 0, 0, 0), src.At(1, 2, 0, 0); got != expected {
		t.Errorf("Expected %f, got %f", expected, got)
	}
	if got, expected := out.At(2, 2, 1, 0), src.At(3, 4, 1, 0); got != expected {
		t.Errorf("Expected %f, got %f", expected, got)
	}
	if got := out.Affine().At(1, 3); got != 4 {
		t.Errorf("Expected origin y=4, got %f", got)
	}

	if _, err := Crop(src, [3]int{0, 0, 0}, [3]int{7, 5, 4}); !errors.Is(err, models.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
	if _, err := Crop(src, [3]int{2, 0, 0}, [3]int{2, 5, 4}); !errors.Is(err, models.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for empty box, got %v", err)
	}
}

// TestBackgroundCorrectionGuard checks the corrector sees correction disabled
func TestBackgroundCorrectionGuard(t *testing.T) {
	calls := 0
	r := New(WithCorrector(CorrectorFunc(func(inner ResizeFunc, src *models.Volume, newShape []int, opts Options) (*models.Volume, error) {
		calls++
		if opts.BackgroundCorrection {
			t.Error("Corrector received BackgroundCorrection=true")
		}
		return inner(src, newShape, opts)
	})))

	src := createTestVolume(t, []int{4, 4, 4}, affine.Identity(), gradient)
	out, err := r.ResizeToShape(src, []int{6, 6, 6}, Options{BackgroundCorrection: true})
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected corrector to run once, ran %d times", calls)
	}

	direct, err := r.ResizeToShape(src, []int{6, 6, 6}, Options{})
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if !out.SameGrid(direct, 1e-12) {
		t.Error("Corrected result has a different grid than a direct call")
	}
}

// TestMedianCornerCorrector keeps the zero fill from pulling edges down
func TestMedianCornerCorrector(t *testing.T) {
	src := createTestVolume(t, []int{4, 4, 4}, affine.Identity(), func(i, j, k, c int) float64 { return 100 })
	opts := Options{Interpolation: interpolation.Linear, PadMode: PadConstant}

	plain, err := ResizeToShape(src, []int{8, 8, 8}, opts)
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if got := plain.At(0, 4, 4, 0); math.Abs(got-75) > 1e-9 {
		t.Errorf("Expected zero-padded edge to blend to 75, got %f", got)
	}

	opts.BackgroundCorrection = true
	corrected, err := ResizeToShape(src, []int{8, 8, 8}, opts)
	if err != nil {
		t.Fatalf("Corrected resize failed: %v", err)
	}
	for idx, v := range corrected.Data() {
		if math.Abs(v-100) > 1e-9 {
			t.Fatalf("Expected 100 everywhere, got %f at %d", v, idx)
		}
	}
}

// TestEstimateBackground takes the median of the corners per channel
func TestEstimateBackground(t *testing.T) {
	src := createTestVolume(t, []int{3, 3, 3, 2}, affine.Identity(), func(i, j, k, c int) float64 {
		if c == 1 {
			return -5
		}
		if i == 1 && j == 1 && k == 1 {
			return 1000
		}
		return 2
	})
	bg := EstimateBackground(src)
	if len(bg) != 2 {
		t.Fatalf("Expected 2 estimates, got %d", len(bg))
	}
	if bg[0] != 2 || bg[1] != -5 {
		t.Errorf("Expected [2 -5], got %v", bg)
	}
}

// TestEstimateBackgroundEvenMedian averages the two middle corner values
func TestEstimateBackgroundEvenMedian(t *testing.T) {
	// corners of a 3^3 grid take the values 0..7
	src := createTestVolume(t, []int{3, 3, 3}, affine.Identity(), func(i, j, k, c int) float64 {
		return float64(i/2 + 2*(j/2) + 4*(k/2))
	})
	if bg := EstimateBackground(src); bg[0] != 3.5 {
		t.Errorf("Expected median 3.5, got %v", bg[0])
	}
}

// TestPadFlippedAffine keeps world positions on flipped and rotated grids
func TestPadFlippedAffine(t *testing.T) {
	flipped := affine.Translate(affine.Scale([]float64{-1, 2, -0.5}), []float64{-3, 0, -6})
	rotated := mat.NewDense(4, 4, []float64{
		0, -2, 0, 10,
		1.5, 0, 0, -5,
		0, 0, -3, 1,
		0, 0, 0, 1,
	})
	for name, a := range map[string]mat.Matrix{"flipped": flipped, "rotated": rotated} {
		src := createTestVolume(t, []int{4, 3, 2}, a, gradient)
		for _, w := range []int{1, 2} {
			padded, err := PadVolume(src, PadEdge, w)
			if err != nil {
				t.Fatalf("Padding failed: %v", err)
			}
			fw := float64(w)
			world := affine.Apply(padded.Affine(), []float64{fw, fw, fw})
			orig := affine.Apply(src.Affine(), []float64{0, 0, 0})
			for i := range world {
				if math.Abs(world[i]-orig[i]) > 1e-12 {
					t.Errorf("%s/%d: expected world[%d]=%f, got %f", name, w, i, orig[i], world[i])
				}
			}
			cropped, err := Crop(padded, [3]int{w, w, w}, [3]int{4 + w, 3 + w, 2 + w})
			if err != nil {
				t.Fatalf("Crop failed: %v", err)
			}
			if !affine.Equal(cropped.Affine(), src.Affine(), 1e-12) {
				t.Errorf("%s/%d: affine not restored after pad then crop", name, w)
			}
		}
	}
}
