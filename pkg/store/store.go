// Package store persists paired feature/target volumes keyed by subject id.
//
// A Store validates and encodes records; a Container holds the encoded
// fields. Containers are provided for memory, a directory tree and Redis.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/mat"

	"volprep/internal/models"
	"volprep/pkg/affine"
)

var (
	// ErrSubjectNotFound is returned by Get when no record is stored under the id.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrSubjectExists is returned by Add when the id is taken and the store
	// was not opened WithOverwrite.
	ErrSubjectExists = errors.New("subject already stored")

	// ErrInvalidSubject is returned for an empty subject id.
	ErrInvalidSubject = errors.New("invalid subject id")

	// ErrCorruptRecord is returned when stored fields cannot be decoded into a
	// record: a field is missing, the metadata version is unknown, an array
	// fails to unmarshal, or the arrays disagree with the stored shape.
	ErrCorruptRecord = errors.New("corrupt record")
)

// Container is a key-value holder of encoded records.
type Container interface {
	// Put stores fields under id and reports whether a record was replaced.
	// When replace is false and id is taken it returns ErrSubjectExists and
	// leaves the stored record alone. The check and the write are one atomic
	// step, and a failed write keeps the previous record.
	Put(ctx context.Context, id string, fields Fields, replace bool) (bool, error)
	// Get returns the fields under id or ErrSubjectNotFound.
	Get(ctx context.Context, id string) (Fields, error)
	// Delete removes id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Store adds and retrieves subjects.
type Store struct {
	c         Container
	overwrite bool
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithOverwrite lets Add replace an existing subject instead of failing
// with ErrSubjectExists.
func WithOverwrite() Option {
	return func(s *Store) { s.overwrite = true }
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store on top of c.
func New(c Container, opts ...Option) *Store {
	s := &Store{c: c, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add stores the data of features and targets under id with the affine of
// features. Both volumes must have the same shape.
func (s *Store) Add(ctx context.Context, id string, features, targets *models.Volume) error {
	if !models.EqualShapes(features.Shape(), targets.Shape()) {
		return fmt.Errorf("%w: features %v, targets %v", models.ErrShapeMismatch, features.Shape(), targets.Shape())
	}
	return s.AddArrays(ctx, id, features.Shape(), features.Data(), targets.Data(), features.Affine())
}

// AddArrays stores raw arrays of the given shape under id. A nil affine is
// stored as the identity.
func (s *Store) AddArrays(ctx context.Context, id string, shape []int, features, targets []float64, a mat.Matrix) error {
	if id == "" {
		return ErrInvalidSubject
	}
	if a == nil {
		a = affine.Identity()
	}
	r := &Record{Shape: shape, Features: features, Targets: targets, Affine: affine.Clone(a)}
	if err := r.validate(); err != nil {
		return err
	}
	fields, err := encodeRecord(r)
	if err != nil {
		return err
	}

	replaced, err := s.c.Put(ctx, id, fields, s.overwrite)
	if err != nil {
		return fmt.Errorf("storing subject %q: %w", id, err)
	}
	s.logger.Debug("stored subject", "subject", id, "shape", shape, "replaced", replaced)
	return nil
}

// Get returns the record stored under id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, ErrInvalidSubject
	}
	fields, err := s.c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := decodeRecord(fields)
	if err != nil {
		return nil, fmt.Errorf("subject %q: %w", id, err)
	}
	return r, nil
}

// GetVolumes returns the features and targets of id as volumes sharing the
// stored affine.
func (s *Store) GetVolumes(ctx context.Context, id string) (*models.Volume, *models.Volume, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	features, err := models.Adopt(r.Features, r.Shape, r.Affine)
	if err != nil {
		return nil, nil, err
	}
	targets, err := models.Adopt(r.Targets, r.Shape, affine.Clone(r.Affine))
	if err != nil {
		return nil, nil, err
	}
	return features, targets, nil
}

// Subjects returns the stored ids in sorted order.
func (s *Store) Subjects(ctx context.Context) ([]string, error) {
	ids, err := s.c.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidSubject
	}
	return s.c.Delete(ctx, id)
}

// Close closes the underlying container.
func (s *Store) Close() error {
	return s.c.Close()
}

// Backend names accepted by OpenContainer.
const (
	BackendMemory = "memory"
	BackendDir    = "dir"
	BackendRedis  = "redis"
)

// OpenContainer opens the named backend. path is used by the directory
// backend, addr and prefix by Redis.
func OpenContainer(ctx context.Context, backend, path, addr, prefix string) (Container, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryContainer(), nil
	case BackendDir, "":
		return NewDirContainer(path)
	case BackendRedis:
		return DialRedis(ctx, addr, prefix)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
