// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model holds the scene data the ray tracing pass consumes and
// its packing into the binary layouts the device reads.
package model

import (
	"encoding/binary"
	"math"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// ErrEmptyGeometry is returned for geometry that holds no triangles.
var ErrEmptyGeometry = errors.New("geometry has no primitives")

// Binary sizes of packed scene data.
const (
	VertexStride   = 12
	IndexSize      = 4
	InstanceStride = 64
)

// MaskAll makes an instance visible to every ray.
const MaskAll uint8 = 0xff

// InstanceCullDisable disables face culling for an instance.
const InstanceCullDisable uint8 = 0x1

// Geometry is an indexed triangle mesh.
type Geometry struct {
	Positions []glm.Vec3
	Indices   []uint32
}

// PrimitiveCount is the number of triangles in g.
func (g Geometry) PrimitiveCount() uint32 {
	return uint32(len(g.Indices) / 3)
}

// MaxVertex is the highest index g may reference.
func (g Geometry) MaxVertex() uint32 {
	if len(g.Positions) == 0 {
		return 0
	}
	return uint32(len(g.Positions) - 1)
}

// Validate fails for geometry the device can not build from.
func (g Geometry) Validate() error {
	if len(g.Positions) == 0 || len(g.Indices) == 0 {
		return ErrEmptyGeometry
	}
	if len(g.Indices)%3 != 0 {
		return errors.Wrapf(ErrEmptyGeometry, "%d indices do not form whole triangles", len(g.Indices))
	}
	for i, idx := range g.Indices {
		if int(idx) >= len(g.Positions) {
			return errors.Errorf("index %d references vertex %d of %d", i, idx, len(g.Positions))
		}
	}
	return nil
}

// VertexBytes packs positions as tightly laid out little endian float triples.
func (g Geometry) VertexBytes() []byte {
	out := make([]byte, len(g.Positions)*VertexStride)
	for i, p := range g.Positions {
		for c := 0; c < 3; c++ {
			binary.LittleEndian.PutUint32(out[i*VertexStride+c*4:], math.Float32bits(p[c]))
		}
	}
	return out
}

// IndexBytes packs indices as little endian uint32.
func (g Geometry) IndexBytes() []byte {
	out := make([]byte, len(g.Indices)*IndexSize)
	for i, idx := range g.Indices {
		binary.LittleEndian.PutUint32(out[i*IndexSize:], idx)
	}
	return out
}

// Identity is the 3x4 identity transform.
var Identity = [3][4]float32{
	{1, 0, 0, 0},
	{0, 1, 0, 0},
	{0, 0, 1, 0},
}

// Instance places the bottom level structure into the scene.
type Instance struct {
	// Transform is a row major 3x4 affine matrix.
	Transform [3][4]float32

	// CustomIndex is visible to shaders, only the low 24 bits are kept.
	CustomIndex uint32

	Mask uint8

	// SBTRecordOffset selects the hit group, only the low 24 bits are kept.
	SBTRecordOffset uint32

	Flags uint8
}

// TransformFrom converts an affine matrix into the row major 3x4 form.
func TransformFrom(m glm.Mat4) [3][4]float32 {
	var t [3][4]float32
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			t[r][c] = m.At(r, c)
		}
	}
	return t
}

// Record packs the instance into its 64 byte device layout referencing
// the bottom level structure at blas.
func (in Instance) Record(blas uint64) [InstanceStride]byte {
	var out [InstanceStride]byte
	off := 0
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(in.Transform[r][c]))
			off += 4
		}
	}
	binary.LittleEndian.PutUint32(out[48:], in.CustomIndex&0xffffff|uint32(in.Mask)<<24)
	binary.LittleEndian.PutUint32(out[52:], in.SBTRecordOffset&0xffffff|uint32(in.Flags)<<24)
	binary.LittleEndian.PutUint64(out[56:], blas)
	return out
}

// PackInstances packs all instances back to back.
func PackInstances(instances []Instance, blas uint64) []byte {
	out := make([]byte, 0, len(instances)*InstanceStride)
	for _, in := range instances {
		rec := in.Record(blas)
		out = append(out, rec[:]...)
	}
	return out
}

// Scene is everything a single pass traces against.
type Scene struct {
	Geometries []Geometry
	Instances  []Instance
}

// Validate checks every geometry and that at least one instance exists.
func (s Scene) Validate() error {
	if len(s.Geometries) == 0 {
		return ErrEmptyGeometry
	}
	for i, g := range s.Geometries {
		if err := g.Validate(); err != nil {
			return errors.Wrapf(err, "geometry %d", i)
		}
	}
	if len(s.Instances) == 0 {
		return errors.Wrap(ErrEmptyGeometry, "scene has no instances")
	}
	return nil
}

// Triangle is a single triangle in front of the camera with one
// identity instance.
func Triangle() Scene {
	return Scene{
		Geometries: []Geometry{{
			Positions: []glm.Vec3{
				{1, 1, 0},
				{-1, 1, 0},
				{0, -1, 0},
			},
			Indices: []uint32{0, 1, 2},
		}},
		Instances: []Instance{{
			Transform: Identity,
			Mask:      MaskAll,
			Flags:     InstanceCullDisable,
		}},
	}
}
