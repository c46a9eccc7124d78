package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DirContainer stores one directory per subject under a root, with one
// file per field. Writes go to a temporary directory that is renamed into
// place, so readers never see a half-written record and a failed replace
// keeps the previous one.
type DirContainer struct {
	root string

	// mu serializes commits from this process
	mu sync.Mutex
}

// NewDirContainer creates root if needed and returns a container on it.
func NewDirContainer(root string) (*DirContainer, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &DirContainer{root: root}, nil
}

func (d *DirContainer) subjectDir(id string) string {
	name := url.PathEscape(id)
	// dot-prefixed names are reserved for temp directories
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return filepath.Join(d.root, name)
}

func (d *DirContainer) Put(ctx context.Context, id string, fields Fields, replace bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	tmp, err := os.MkdirTemp(d.root, ".tmp-")
	if err != nil {
		return false, fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	for name, b := range fields {
		if err := os.WriteFile(filepath.Join(tmp, name), b, 0o644); err != nil {
			return false, fmt.Errorf("writing field %s: %w", name, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	dst := d.subjectDir(id)
	if !replace {
		// rename onto an existing non-empty directory fails, so a
		// concurrent writer in another process cannot be overwritten
		if err := os.Rename(tmp, dst); err != nil {
			if _, statErr := os.Stat(dst); statErr == nil {
				return false, fmt.Errorf("%w: %q", ErrSubjectExists, id)
			}
			return false, fmt.Errorf("committing record: %w", err)
		}
		return false, nil
	}

	// move the previous record aside so it can be restored if the commit fails
	old := tmp + ".old"
	replaced := true
	if err := os.Rename(dst, old); errors.Is(err, fs.ErrNotExist) {
		replaced = false
	} else if err != nil {
		return false, fmt.Errorf("moving previous record: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		if replaced {
			os.Rename(old, dst)
		}
		return false, fmt.Errorf("committing record: %w", err)
	}
	if replaced {
		os.RemoveAll(old)
	}
	return replaced, nil
}

func (d *DirContainer) Get(ctx context.Context, id string) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.subjectDir(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrSubjectNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}

	fields := make(Fields, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(d.subjectDir(id), e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading field %s: %w", e.Name(), err)
		}
		fields[e.Name()] = b
	}
	return fields, nil
}

func (d *DirContainer) Delete(_ context.Context, id string) error {
	return os.RemoveAll(d.subjectDir(id))
}

func (d *DirContainer) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("listing store: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		id, err := url.PathUnescape(e.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (d *DirContainer) Close() error { return nil }
