// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package assets resolves shader binaries by name.
package assets

import (
	"os"
	"path/filepath"

	"github.com/devblok/korurt/utility/kar"
	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// ErrNotFound is returned when a source does not hold the named asset.
var ErrNotFound = errors.New("asset not found")

// Source provides asset contents by name.
type Source interface {
	Bytes(name string) ([]byte, error)
}

// Box serves assets from a packr box, which reads from disk during
// development and from the binary once packed.
type Box struct {
	box packr.Box
}

// NewBox wraps an existing packr box.
func NewBox(box packr.Box) *Box {
	return &Box{box: box}
}

// Bytes implements Source.
func (b *Box) Bytes(name string) ([]byte, error) {
	if !b.box.Has(name) {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return b.box.Find(name)
}

// Dir serves assets from a directory on disk.
type Dir string

// Bytes implements Source.
func (d Dir) Bytes(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(string(d), filepath.FromSlash(name)))
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return data, err
}

// Archive serves assets from a memory mapped kar archive.
type Archive struct {
	mapped  *mmap.ReaderAt
	archive *kar.Archive
}

// OpenArchive maps the archive at path. Close must be called once the
// source is no longer needed.
func OpenArchive(path string) (*Archive, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "mmap.Open()")
	}
	ar, err := kar.Open(r)
	if err != nil {
		r.Close()
		return nil, errors.Wrapf(err, "kar.Open(%s)", path)
	}
	return &Archive{mapped: r, archive: ar}, nil
}

// Bytes implements Source.
func (a *Archive) Bytes(name string) ([]byte, error) {
	data, err := a.archive.ReadAll(name)
	if errors.Cause(err) == kar.ErrFileNotFound {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return data, err
}

// Names lists the archived assets.
func (a *Archive) Names() []string {
	return a.archive.Names()
}

// Close unmaps the archive.
func (a *Archive) Close() error {
	return a.mapped.Close()
}

// Layered tries each source in order and returns the first hit.
type Layered []Source

// Bytes implements Source.
func (l Layered) Bytes(name string) ([]byte, error) {
	for _, s := range l {
		data, err := s.Bytes(name)
		if errors.Cause(err) == ErrNotFound {
			continue
		}
		return data, err
	}
	return nil, errors.Wrap(ErrNotFound, name)
}
