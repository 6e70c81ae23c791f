// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rt

import (
	"github.com/devblok/korurt/gfx"
	"github.com/devblok/korurt/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// BottomLevel is a built bottom level acceleration structure.
type BottomLevel struct {
	Structure  gfx.Handle
	Storage    *Buffer
	Address    gfx.DeviceAddress
	Primitives uint32

	dev gfx.AccelerationStructures
}

// Release destroys the structure and its storage.
func (b *BottomLevel) Release() {
	if b == nil || b.dev == nil {
		return
	}
	b.dev.DestroyAccelerationStructure(b.Structure)
	b.Storage.Release()
	b.dev = nil
}

// TopLevel is a built top level acceleration structure.
type TopLevel struct {
	Structure gfx.Handle
	Storage   *Buffer
	Address   gfx.DeviceAddress
	Instances uint32

	dev gfx.AccelerationStructures
}

// Release destroys the structure and its storage.
func (t *TopLevel) Release() {
	if t == nil || t.dev == nil {
		return
	}
	t.dev.DestroyAccelerationStructure(t.Structure)
	t.Storage.Release()
	t.dev = nil
}

// NewBuilder creates an acceleration structure builder.
func NewBuilder(dev gfx.Device, alloc *Allocator, log logrus.FieldLogger) *Builder {
	return &Builder{
		dev:   dev,
		alloc: alloc,
		log:   log,
	}
}

// Builder records device side acceleration structure builds. Staging and
// scratch buffers it creates are only needed until the recorded builds have
// executed, Transient hands them over.
type Builder struct {
	dev   gfx.Device
	alloc *Allocator
	log   logrus.FieldLogger

	transient []gfx.Releasable
}

// Transient returns and forgets the build time buffers created so far.
func (b *Builder) Transient() []gfx.Releasable {
	t := b.transient
	b.transient = nil
	return t
}

// BuildBottomLevel stages the geometries and records a build of a single
// bottom level structure holding all of them.
func (b *Builder) BuildBottomLevel(cmd gfx.CommandBuffer, geometries ...model.Geometry) (*BottomLevel, error) {
	if len(geometries) == 0 {
		return nil, ErrEmptyGeometry
	}
	for i, g := range geometries {
		if err := g.Validate(); err != nil {
			return nil, errors.Wrapf(err, "geometry %d", i)
		}
	}

	var (
		staging []gfx.Releasable
		geoms   = make([]gfx.Geometry, len(geometries))
		counts  = make([]uint32, len(geometries))
		total   uint32
	)
	fail := func(err error) (*BottomLevel, error) {
		releaseAll(staging)
		return nil, err
	}

	for i, g := range geometries {
		vertices, err := b.stage(g.VertexBytes())
		if err != nil {
			return fail(errors.Wrap(err, "stage vertices"))
		}
		staging = append(staging, vertices)

		indices, err := b.stage(g.IndexBytes())
		if err != nil {
			return fail(errors.Wrap(err, "stage indices"))
		}
		staging = append(staging, indices)

		geoms[i] = gfx.Geometry{
			Type:  gfx.GeometryTriangles,
			Flags: gfx.GeometryOpaque,
			Triangles: gfx.TrianglesData{
				VertexFormat: gfx.FormatR32G32B32Sfloat,
				VertexData:   vertices.Address,
				VertexStride: model.VertexStride,
				MaxVertex:    g.MaxVertex(),
				IndexType:    gfx.IndexTypeUint32,
				IndexData:    indices.Address,
			},
		}
		counts[i] = g.PrimitiveCount()
		total += counts[i]
	}

	structure, storage, address, err := b.build(cmd, gfx.AccelerationStructureBottomLevel, geoms, counts)
	if err != nil {
		return fail(errors.Wrap(err, "bottom level"))
	}
	b.transient = append(b.transient, staging...)

	return &BottomLevel{
		Structure:  structure,
		Storage:    storage,
		Address:    address,
		Primitives: total,
		dev:        b.dev,
	}, nil
}

// BuildTopLevel packs instances referencing blas and records the build of
// the top level structure. The build barrier must be recorded in between.
func (b *Builder) BuildTopLevel(cmd gfx.CommandBuffer, blas *BottomLevel, instances []model.Instance) (*TopLevel, error) {
	if len(instances) == 0 {
		return nil, errors.Wrap(ErrEmptyGeometry, "no instances")
	}
	if blas == nil || blas.Address == 0 {
		return nil, errors.New("top level build needs a built bottom level structure")
	}

	records, err := b.stage(model.PackInstances(instances, uint64(blas.Address)))
	if err != nil {
		return nil, errors.Wrap(err, "stage instances")
	}

	geoms := []gfx.Geometry{{
		Type:      gfx.GeometryInstances,
		Flags:     gfx.GeometryOpaque,
		Instances: gfx.InstancesData{Data: records.Address},
	}}
	counts := []uint32{uint32(len(instances))}

	structure, storage, address, err := b.build(cmd, gfx.AccelerationStructureTopLevel, geoms, counts)
	if err != nil {
		records.Release()
		return nil, errors.Wrap(err, "top level")
	}
	b.transient = append(b.transient, records)

	return &TopLevel{
		Structure: structure,
		Storage:   storage,
		Address:   address,
		Instances: counts[0],
		dev:       b.dev,
	}, nil
}

// stage copies data into a new host visible build input buffer.
func (b *Builder) stage(data []byte) (*Buffer, error) {
	buf, err := b.alloc.CreateBuffer(gfx.BufferUsageAccelerationStructureBuildIn, uint64(len(data)), true)
	if err != nil {
		return nil, err
	}
	if err := b.alloc.Write(buf, data); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

func (b *Builder) build(cmd gfx.CommandBuffer, t gfx.AccelerationStructureType, geoms []gfx.Geometry, counts []uint32) (gfx.Handle, *Buffer, gfx.DeviceAddress, error) {
	sizes := b.dev.AccelerationStructureBuildSizes(t, gfx.BuildPreferFastTrace, geoms, counts)
	b.log.WithFields(logrus.Fields{
		"type":    t,
		"storage": sizes.AccelerationStructureSize,
		"scratch": sizes.BuildScratchSize,
	}).Debug("acceleration structure build sizes")

	storage, err := b.alloc.CreateBuffer(gfx.BufferUsageAccelerationStructureStorage, sizes.AccelerationStructureSize, false)
	if err != nil {
		return gfx.NullHandle, nil, 0, errors.Wrap(err, "storage buffer")
	}

	structure, err := b.dev.CreateAccelerationStructure(t, storage.Handle, sizes.AccelerationStructureSize)
	if err != nil {
		storage.Release()
		return gfx.NullHandle, nil, 0, errors.Wrap(err, "CreateAccelerationStructure()")
	}

	scratch, err := b.alloc.CreateBuffer(gfx.BufferUsageStorageBuffer, sizes.BuildScratchSize, false)
	if err != nil {
		b.dev.DestroyAccelerationStructure(structure)
		storage.Release()
		return gfx.NullHandle, nil, 0, errors.Wrap(err, "scratch buffer")
	}

	cmd.BuildAccelerationStructure(gfx.BuildInfo{
		Type:            t,
		Flags:           gfx.BuildPreferFastTrace,
		Destination:     structure,
		ScratchData:     scratch.Address,
		Geometries:      geoms,
		PrimitiveCounts: counts,
	})

	address := b.dev.AccelerationStructureDeviceAddress(structure)
	b.transient = append(b.transient, scratch)
	return structure, storage, address, nil
}

// RecordBuildBarrier makes acceleration structure builds recorded before it
// visible to the builds recorded after it.
func RecordBuildBarrier(cmd gfx.CommandBuffer) {
	access := gfx.AccessAccelerationStructureRead | gfx.AccessAccelerationStructureWrite
	cmd.PipelineBarrier(
		gfx.PipelineStageAccelerationStructureBuild,
		gfx.PipelineStageAccelerationStructureBuild,
		[]gfx.MemoryBarrier{{SrcAccess: access, DstAccess: access}},
		nil,
	)
}

func releaseAll(items []gfx.Releasable) {
	for _, item := range items {
		item.Release()
	}
}
