package store

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"volprep/internal/models"
	"volprep/pkg/affine"
)

// Field names of a stored record.
const (
	FieldMeta     = "meta"
	FieldFeatures = "features"
	FieldTargets  = "targets"
	FieldAffine   = "affine"
)

// recordVersion is written into every record's metadata.
const recordVersion = 1

// Fields is a record as a named group of encoded arrays.
type Fields map[string][]byte

// Record is one subject: two equal-shaped arrays and their affine.
type Record struct {
	Shape    []int
	Features []float64
	Targets  []float64
	Affine   *mat.Dense
}

type recordMeta struct {
	Version int   `yaml:"version"`
	Shape   []int `yaml:"shape"`
}

func (r *Record) validate() error {
	if len(r.Shape) < 3 {
		return fmt.Errorf("%w: record shape %v", affine.ErrDimensionality, r.Shape)
	}
	n := models.Product(r.Shape)
	if len(r.Features) != n || len(r.Targets) != n {
		return fmt.Errorf("%w: shape %v needs %d samples, got features=%d targets=%d",
			models.ErrShapeMismatch, r.Shape, n, len(r.Features), len(r.Targets))
	}
	return affine.Validate(r.Affine)
}

func encodeRecord(r *Record) (Fields, error) {
	meta, err := yaml.Marshal(recordMeta{Version: recordVersion, Shape: r.Shape})
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	features, err := mat.NewVecDense(len(r.Features), r.Features).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding features: %w", err)
	}
	targets, err := mat.NewVecDense(len(r.Targets), r.Targets).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding targets: %w", err)
	}
	a, err := r.Affine.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding affine: %w", err)
	}
	return Fields{FieldMeta: meta, FieldFeatures: features, FieldTargets: targets, FieldAffine: a}, nil
}

func decodeRecord(f Fields) (*Record, error) {
	for _, name := range []string{FieldMeta, FieldFeatures, FieldTargets, FieldAffine} {
		if _, ok := f[name]; !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrCorruptRecord, name)
		}
	}

	var meta recordMeta
	if err := yaml.Unmarshal(f[FieldMeta], &meta); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrCorruptRecord, err)
	}
	if meta.Version != recordVersion {
		return nil, fmt.Errorf("%w: unsupported record version %d", ErrCorruptRecord, meta.Version)
	}

	var features, targets mat.VecDense
	if err := features.UnmarshalBinary(f[FieldFeatures]); err != nil {
		return nil, fmt.Errorf("%w: features: %v", ErrCorruptRecord, err)
	}
	if err := targets.UnmarshalBinary(f[FieldTargets]); err != nil {
		return nil, fmt.Errorf("%w: targets: %v", ErrCorruptRecord, err)
	}
	var a mat.Dense
	if err := a.UnmarshalBinary(f[FieldAffine]); err != nil {
		return nil, fmt.Errorf("%w: affine: %v", ErrCorruptRecord, err)
	}

	r := &Record{
		Shape:    meta.Shape,
		Features: features.RawVector().Data,
		Targets:  targets.RawVector().Data,
		Affine:   &a,
	}
	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return r, nil
}

func cloneFields(f Fields) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		b := make([]byte, len(v))
		copy(b, v)
		out[k] = b
	}
	return out
}
