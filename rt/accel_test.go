// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rt_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/devblok/korurt/gfx"
	"github.com/devblok/korurt/gfx/gfxtest"
	"github.com/devblok/korurt/model"
	"github.com/devblok/korurt/rt"
	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

func TestBuildBottomLevelRejectsEmptyGeometry(t *testing.T) {
	tests := []struct {
		name       string
		geometries []model.Geometry
	}{
		{"none", nil},
		{"no indices", []model.Geometry{{Positions: []glm.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}}}},
		{"no positions", []model.Geometry{{Indices: []uint32{0, 1, 2}}}},
		{"second empty", []model.Geometry{model.Triangle().Geometries[0], {}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := qt.New(t)
			dev := gfxtest.NewDevice()
			cmd := &gfxtest.CommandBuffer{}
			b := rt.NewBuilder(dev, rt.NewAllocator(dev), quietLogger())

			_, err := b.BuildBottomLevel(cmd, test.geometries...)
			c.Assert(errors.Cause(err), qt.Equals, rt.ErrEmptyGeometry)
			c.Assert(dev.LiveTotal(), qt.Equals, 0)
			c.Assert(cmd.Commands, qt.HasLen, 0)
		})
	}
}

func TestBuildTopLevelRejectsNoInstances(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	cmd := &gfxtest.CommandBuffer{}
	b := rt.NewBuilder(dev, rt.NewAllocator(dev), quietLogger())

	blas, err := b.BuildBottomLevel(cmd, model.Triangle().Geometries...)
	c.Assert(err, qt.IsNil)
	defer blas.Release()

	_, err = b.BuildTopLevel(cmd, blas, nil)
	c.Assert(errors.Cause(err), qt.Equals, rt.ErrEmptyGeometry)
	c.Assert(cmd.Filter(gfxtest.CmdBuild), qt.HasLen, 1)
}

func TestBuildOrder(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	cmd := &gfxtest.CommandBuffer{}
	b := rt.NewBuilder(dev, rt.NewAllocator(dev), quietLogger())
	scene := model.Triangle()

	blas, err := b.BuildBottomLevel(cmd, scene.Geometries...)
	c.Assert(err, qt.IsNil)
	rt.RecordBuildBarrier(cmd)
	tlas, err := b.BuildTopLevel(cmd, blas, scene.Instances)
	c.Assert(err, qt.IsNil)

	c.Assert(cmd.Kinds(), qt.DeepEquals, []gfxtest.Kind{gfxtest.CmdBuild, gfxtest.CmdBarrier, gfxtest.CmdBuild})

	access := gfx.AccessAccelerationStructureRead | gfx.AccessAccelerationStructureWrite
	barrier := cmd.Commands[1]
	c.Assert(barrier.SrcStage, qt.Equals, gfx.PipelineStageAccelerationStructureBuild)
	c.Assert(barrier.DstStage, qt.Equals, gfx.PipelineStageAccelerationStructureBuild)
	c.Assert(barrier.Memory, qt.DeepEquals, []gfx.MemoryBarrier{{SrcAccess: access, DstAccess: access}})

	bottom := cmd.Commands[0].Build
	c.Assert(bottom.Type, qt.Equals, gfx.AccelerationStructureBottomLevel)
	c.Assert(bottom.Flags, qt.Equals, gfx.BuildPreferFastTrace)
	c.Assert(bottom.Destination, qt.Equals, blas.Structure)
	c.Assert(bottom.PrimitiveCounts, qt.DeepEquals, []uint32{1})
	c.Assert(bottom.Geometries[0].Triangles.VertexStride, qt.Equals, uint64(12))
	c.Assert(bottom.Geometries[0].Triangles.VertexFormat, qt.Equals, gfx.FormatR32G32B32Sfloat)
	c.Assert(bottom.Geometries[0].Triangles.IndexType, qt.Equals, gfx.IndexTypeUint32)
	c.Assert(bottom.ScratchData, qt.Not(qt.Equals), gfx.DeviceAddress(0))

	top := cmd.Commands[2].Build
	c.Assert(top.Type, qt.Equals, gfx.AccelerationStructureTopLevel)
	c.Assert(top.Flags, qt.Equals, gfx.BuildPreferFastTrace)
	c.Assert(top.Geometries[0].Type, qt.Equals, gfx.GeometryInstances)
	c.Assert(top.PrimitiveCounts, qt.DeepEquals, []uint32{1})
	c.Assert(tlas.Instances, qt.Equals, uint32(1))
	c.Assert(tlas.Address, qt.Not(qt.Equals), gfx.DeviceAddress(0))

	transient := b.Transient()
	// vertices, indices, bottom scratch, instances, top scratch
	c.Assert(transient, qt.HasLen, 5)
	c.Assert(b.Transient(), qt.HasLen, 0)
	for _, item := range transient {
		item.Release()
	}
	tlas.Release()
	blas.Release()
	c.Assert(dev.LiveTotal(), qt.Equals, 0)
}

func TestTopLevelReferencesBottomLevel(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	cmd := &gfxtest.CommandBuffer{}
	b := rt.NewBuilder(dev, rt.NewAllocator(dev), quietLogger())
	scene := model.Triangle()

	blas, err := b.BuildBottomLevel(cmd, scene.Geometries...)
	c.Assert(err, qt.IsNil)
	rt.RecordBuildBarrier(cmd)
	_, err = b.BuildTopLevel(cmd, blas, scene.Instances)
	c.Assert(err, qt.IsNil)

	var instances []byte
	for _, item := range b.Transient() {
		buf := item.(*rt.Buffer)
		if buf.Address == cmd.Commands[2].Build.Geometries[0].Instances.Data {
			instances = dev.BufferContents(buf.Handle)
		}
	}
	c.Assert(instances, qt.HasLen, model.InstanceStride)
	c.Assert(binary.LittleEndian.Uint64(instances[56:]), qt.Equals, uint64(blas.Address))
	c.Assert(binary.LittleEndian.Uint32(instances[48:])>>24, qt.Equals, uint32(0xff))
	c.Assert(binary.LittleEndian.Uint32(instances[52:])>>24, qt.Equals, uint32(model.InstanceCullDisable))
}

func TestBuildFailureReleasesStaging(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	dev.FailOn("CreateAccelerationStructure", errors.New("out of device memory"))
	cmd := &gfxtest.CommandBuffer{}
	b := rt.NewBuilder(dev, rt.NewAllocator(dev), quietLogger())

	_, err := b.BuildBottomLevel(cmd, model.Triangle().Geometries...)
	c.Assert(err, qt.ErrorMatches, ".*out of device memory")
	c.Assert(dev.LiveTotal(), qt.Equals, 0)
	c.Assert(b.Transient(), qt.HasLen, 0)
	c.Assert(cmd.Commands, qt.HasLen, 0)
}

func TestBuildManyGeometriesAndInstances(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	cmd := &gfxtest.CommandBuffer{}
	b := rt.NewBuilder(dev, rt.NewAllocator(dev), quietLogger())
	scene := mixedScene()

	blas, err := b.BuildBottomLevel(cmd, scene.Geometries...)
	c.Assert(err, qt.IsNil)
	rt.RecordBuildBarrier(cmd)
	tlas, err := b.BuildTopLevel(cmd, blas, scene.Instances)
	c.Assert(err, qt.IsNil)
	c.Assert(blas.Primitives, qt.Equals, uint32(3))

	bottom := cmd.Commands[0].Build
	c.Assert(bottom.Geometries, qt.HasLen, 2)
	c.Assert(bottom.PrimitiveCounts, qt.DeepEquals, []uint32{1, 2})
	c.Assert(bottom.Geometries[0].Triangles.VertexData, qt.Not(qt.Equals), bottom.Geometries[1].Triangles.VertexData)
	c.Assert(bottom.Geometries[0].Triangles.IndexData, qt.Not(qt.Equals), bottom.Geometries[1].Triangles.IndexData)
	c.Assert(bottom.Geometries[0].Triangles.MaxVertex, qt.Equals, uint32(2))
	c.Assert(bottom.Geometries[1].Triangles.MaxVertex, qt.Equals, uint32(3))

	top := cmd.Commands[2].Build
	c.Assert(top.Geometries, qt.HasLen, 1)
	c.Assert(top.PrimitiveCounts, qt.DeepEquals, []uint32{3})
	c.Assert(tlas.Instances, qt.Equals, uint32(3))

	transient := b.Transient()
	// two staging buffers per geometry, bottom scratch, instances, top scratch
	c.Assert(transient, qt.HasLen, 7)
	var instances []byte
	for _, item := range transient {
		buf := item.(*rt.Buffer)
		if buf.Address == top.Geometries[0].Instances.Data {
			instances = dev.BufferContents(buf.Handle)
		}
	}
	c.Assert(instances, qt.HasLen, 3*model.InstanceStride)
	for i := 0; i < 3; i++ {
		rec := instances[i*model.InstanceStride : (i+1)*model.InstanceStride]
		c.Assert(binary.LittleEndian.Uint64(rec[56:]), qt.Equals, uint64(blas.Address), qt.Commentf("instance %d", i))
		c.Assert(binary.LittleEndian.Uint32(rec[48:])&0xffffff, qt.Equals, uint32(i), qt.Commentf("instance %d", i))
	}
	c.Assert(math.Float32frombits(binary.LittleEndian.Uint32(instances[2*model.InstanceStride+12:])), qt.Equals, float32(6))

	for _, item := range transient {
		item.Release()
	}
	tlas.Release()
	blas.Release()
	c.Assert(dev.LiveTotal(), qt.Equals, 0)
}
