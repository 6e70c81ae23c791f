// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package assets_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/devblok/korurt/assets"
	"github.com/devblok/korurt/utility/kar"
	qt "github.com/frankban/quicktest"
	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
)

func TestBox(t *testing.T) {
	c := qt.New(t)
	src := assets.NewBox(packr.NewBox("./testdata"))

	data, err := src.Bytes("hello.txt")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "hello box")

	_, err = src.Bytes("missing.spv")
	c.Assert(errors.Cause(err), qt.Equals, assets.ErrNotFound)
}

func TestDir(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	c.Assert(os.WriteFile(filepath.Join(dir, "miss.rmiss.spv"), []byte{3, 2, 0x23, 7}, 0644), qt.IsNil)

	data, err := assets.Dir(dir).Bytes("miss.rmiss.spv")
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.DeepEquals, []byte{3, 2, 0x23, 7})

	_, err = assets.Dir(dir).Bytes("raygen.rgen.spv")
	c.Assert(errors.Cause(err), qt.Equals, assets.ErrNotFound)
}

func TestArchive(t *testing.T) {
	c := qt.New(t)
	builder, err := kar.NewBuilder(kar.Header{Author: "test", Version: 1})
	c.Assert(err, qt.IsNil)
	defer builder.Close()
	c.Assert(builder.Add("raygen.rgen.spv", bytes.NewReader([]byte("raygen code"))), qt.IsNil)

	path := filepath.Join(t.TempDir(), "shaders.kar")
	f, err := os.Create(path)
	c.Assert(err, qt.IsNil)
	_, err = builder.WriteTo(f)
	c.Assert(err, qt.IsNil)
	c.Assert(f.Close(), qt.IsNil)

	src, err := assets.OpenArchive(path)
	c.Assert(err, qt.IsNil)
	defer src.Close()

	data, err := src.Bytes("raygen.rgen.spv")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "raygen code")
	c.Assert(src.Names(), qt.DeepEquals, []string{"raygen.rgen.spv"})

	_, err = src.Bytes("miss.rmiss.spv")
	c.Assert(errors.Cause(err), qt.Equals, assets.ErrNotFound)
}

func TestLayered(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	c.Assert(os.WriteFile(filepath.Join(dir, "override.spv"), []byte("disk"), 0644), qt.IsNil)

	src := assets.Layered{assets.Dir(dir), assets.NewBox(packr.NewBox("./testdata"))}

	data, err := src.Bytes("hello.txt")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "hello box")

	data, err = src.Bytes("override.spv")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "disk")

	_, err = src.Bytes("nothing")
	c.Assert(errors.Cause(err), qt.Equals, assets.ErrNotFound)
}
