// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the device features a ray tracing backend must implement.
// Values of the enumerations below are the ones Vulkan uses, which lets a
// Vulkan backend pass them through unchanged.
package gfx

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// ReleaseFunc adapts a plain function to Releasable.
type ReleaseFunc func()

// Release calls f.
func (f ReleaseFunc) Release() { f() }

// Handle is an opaque device object handle. Zero is the null handle.
type Handle uintptr

// NullHandle is the empty handle.
const NullHandle Handle = 0

// DeviceAddress is a GPU virtual address of a buffer or acceleration structure.
type DeviceAddress uint64

// WholeSize selects the remaining range of a buffer.
const WholeSize = ^uint64(0)

// ShaderUnused marks an unused shader index inside a shader group.
const ShaderUnused = ^uint32(0)

// BufferUsage describes how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	BufferUsageTransferSrc                  BufferUsage = 0x00000001
	BufferUsageTransferDst                  BufferUsage = 0x00000002
	BufferUsageUniformBuffer                BufferUsage = 0x00000010
	BufferUsageStorageBuffer                BufferUsage = 0x00000020
	BufferUsageShaderBindingTable           BufferUsage = 0x00000400
	BufferUsageShaderDeviceAddress          BufferUsage = 0x00020000
	BufferUsageAccelerationStructureBuildIn BufferUsage = 0x00080000
	BufferUsageAccelerationStructureStorage BufferUsage = 0x00100000
)

// MemoryProperty describes a memory type.
type MemoryProperty uint32

// Memory property flags.
const (
	MemoryPropertyDeviceLocal  MemoryProperty = 0x1
	MemoryPropertyHostVisible  MemoryProperty = 0x2
	MemoryPropertyHostCoherent MemoryProperty = 0x4
)

// MemoryType is one of the memory types a device exposes.
type MemoryType struct {
	Properties MemoryProperty
	HeapIndex  uint32
}

// MemoryRequirements are reported for a freshly created buffer.
type MemoryRequirements struct {
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
}

// ImageLayout is the layout an image is currently in.
type ImageLayout uint32

// Image layouts.
const (
	ImageLayoutUndefined             ImageLayout = 0
	ImageLayoutGeneral               ImageLayout = 1
	ImageLayoutShaderReadOnlyOptimal ImageLayout = 5
	ImageLayoutTransferSrcOptimal    ImageLayout = 6
	ImageLayoutTransferDstOptimal    ImageLayout = 7
)

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "undefined"
	case ImageLayoutGeneral:
		return "general"
	case ImageLayoutShaderReadOnlyOptimal:
		return "shader-read-only-optimal"
	case ImageLayoutTransferSrcOptimal:
		return "transfer-src-optimal"
	case ImageLayoutTransferDstOptimal:
		return "transfer-dst-optimal"
	}
	return "unknown"
}

// Access is a memory access mask.
type Access uint32

// Access flags.
const (
	AccessShaderRead                 Access = 0x00000020
	AccessShaderWrite                Access = 0x00000040
	AccessTransferRead               Access = 0x00000800
	AccessTransferWrite              Access = 0x00001000
	AccessHostRead                   Access = 0x00002000
	AccessAccelerationStructureRead  Access = 0x00200000
	AccessAccelerationStructureWrite Access = 0x00400000
)

// PipelineStage is a pipeline stage mask.
type PipelineStage uint32

// Pipeline stages.
const (
	PipelineStageTopOfPipe                  PipelineStage = 0x00000001
	PipelineStageFragmentShader             PipelineStage = 0x00000080
	PipelineStageTransfer                   PipelineStage = 0x00001000
	PipelineStageBottomOfPipe               PipelineStage = 0x00002000
	PipelineStageHost                       PipelineStage = 0x00004000
	PipelineStageRayTracingShader           PipelineStage = 0x00200000
	PipelineStageAccelerationStructureBuild PipelineStage = 0x02000000
)

// ShaderStage identifies a ray tracing shader stage.
type ShaderStage uint32

// Shader stages.
const (
	ShaderStageRaygen       ShaderStage = 0x00000100
	ShaderStageAnyHit       ShaderStage = 0x00000200
	ShaderStageClosestHit   ShaderStage = 0x00000400
	ShaderStageMiss         ShaderStage = 0x00000800
	ShaderStageIntersection ShaderStage = 0x00001000
	ShaderStageCallable     ShaderStage = 0x00002000
)

// DescriptorType is the kind of resource a binding holds.
type DescriptorType uint32

// Descriptor types.
const (
	DescriptorTypeStorageImage          DescriptorType = 3
	DescriptorTypeUniformBuffer         DescriptorType = 6
	DescriptorTypeAccelerationStructure DescriptorType = 1000150000
)

// Format of vertex positions.
type Format uint32

// FormatR32G32B32Sfloat is three 32 bit floats.
const FormatR32G32B32Sfloat Format = 106

// IndexType of index buffers.
type IndexType uint32

// IndexTypeUint32 is 32 bit indices.
const IndexTypeUint32 IndexType = 1

// AccelerationStructureType is top or bottom level.
type AccelerationStructureType uint32

// Acceleration structure types.
const (
	AccelerationStructureTopLevel    AccelerationStructureType = 0
	AccelerationStructureBottomLevel AccelerationStructureType = 1
)

// BuildFlags influence how a structure gets built.
type BuildFlags uint32

// BuildPreferFastTrace favors trace performance over build speed.
const BuildPreferFastTrace BuildFlags = 0x4

// GeometryType is the content of a geometry entry.
type GeometryType uint32

// Geometry types.
const (
	GeometryTriangles GeometryType = 0
	GeometryInstances GeometryType = 2
)

// GeometryFlags of a geometry entry.
type GeometryFlags uint32

// GeometryOpaque disables any-hit invocation.
const GeometryOpaque GeometryFlags = 0x1

// ShaderGroupType identifies a shader group kind.
type ShaderGroupType uint32

// Shader group types.
const (
	ShaderGroupGeneral      ShaderGroupType = 0
	ShaderGroupTrianglesHit ShaderGroupType = 1
)

// RayTracingProperties are the hardware limits relevant for ray tracing.
type RayTracingProperties struct {
	ShaderGroupHandleSize         uint32 `json:"shaderGroupHandleSize"`
	ShaderGroupHandleAlignment    uint32 `json:"shaderGroupHandleAlignment"`
	ShaderGroupBaseAlignment      uint32 `json:"shaderGroupBaseAlignment"`
	MaxRayRecursionDepth          uint32 `json:"maxRayRecursionDepth"`
	MaxShaderGroupStride          uint32 `json:"maxShaderGroupStride"`
	MaxRayDispatchInvocationCount uint32 `json:"maxRayDispatchInvocationCount"`
}

// TrianglesData describes an indexed triangle mesh living in device memory.
type TrianglesData struct {
	VertexFormat Format
	VertexData   DeviceAddress
	VertexStride uint64
	MaxVertex    uint32
	IndexType    IndexType
	IndexData    DeviceAddress
}

// InstancesData points at a packed array of instance records.
type InstancesData struct {
	Data DeviceAddress
}

// Geometry is one entry of an acceleration structure build.
type Geometry struct {
	Type      GeometryType
	Flags     GeometryFlags
	Triangles TrianglesData
	Instances InstancesData
}

// BuildSizes are the storage and scratch sizes a build requires.
type BuildSizes struct {
	AccelerationStructureSize uint64
	UpdateScratchSize         uint64
	BuildScratchSize          uint64
}

// BuildInfo is a single device side acceleration structure build.
type BuildInfo struct {
	Type            AccelerationStructureType
	Flags           BuildFlags
	Destination     Handle
	ScratchData     DeviceAddress
	Geometries      []Geometry
	PrimitiveCounts []uint32
}

// DescriptorBinding is a single binding of a descriptor set layout.
type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

// DescriptorPoolSize is the amount of descriptors of a type a pool holds.
type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

// DescriptorWrite updates one binding of a descriptor set. Only the fields
// matching Type are read.
type DescriptorWrite struct {
	Set     Handle
	Binding uint32
	Type    DescriptorType

	AccelerationStructure Handle

	ImageView   Handle
	ImageLayout ImageLayout

	Buffer Handle
	Offset uint64
	Range  uint64
}

// PipelineShaderStage is a shader module bound to a stage.
type PipelineShaderStage struct {
	Stage  ShaderStage
	Module Handle
	Entry  string
}

// ShaderGroup indexes into the stages of a ray tracing pipeline.
type ShaderGroup struct {
	Type         ShaderGroupType
	General      uint32
	ClosestHit   uint32
	AnyHit       uint32
	Intersection uint32
}

// RayTracingPipelineInfo describes a ray tracing pipeline.
type RayTracingPipelineInfo struct {
	Layout            Handle
	Stages            []PipelineShaderStage
	Groups            []ShaderGroup
	MaxRecursionDepth uint32
}

// StridedRegion addresses a region of a shader binding table.
type StridedRegion struct {
	Address DeviceAddress
	Stride  uint64
	Size    uint64
}

// MemoryBarrier is a global memory barrier.
type MemoryBarrier struct {
	SrcAccess Access
	DstAccess Access
}

// ImageBarrier transitions the layout of a color image.
type ImageBarrier struct {
	Image     Handle
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess Access
	DstAccess Access
}

// Memory provides buffers with their backing memory.
type Memory interface {
	MemoryTypes() []MemoryType

	CreateBuffer(usage BufferUsage, size uint64) (Handle, MemoryRequirements, error)
	DestroyBuffer(buffer Handle)

	// AllocateMemory allocates from the memory type at typeIndex. The
	// allocation always supports device address queries.
	AllocateMemory(size uint64, typeIndex uint32) (Handle, error)
	FreeMemory(memory Handle)
	BindBufferMemory(buffer, memory Handle) error

	// WriteMemory maps memory, copies data at offset and unmaps it again.
	WriteMemory(memory Handle, offset uint64, data []byte) error

	BufferDeviceAddress(buffer Handle) DeviceAddress
}

// AccelerationStructures creates and queries acceleration structures.
type AccelerationStructures interface {
	AccelerationStructureBuildSizes(t AccelerationStructureType, flags BuildFlags, geometries []Geometry, maxPrimitiveCounts []uint32) BuildSizes
	CreateAccelerationStructure(t AccelerationStructureType, buffer Handle, size uint64) (Handle, error)
	DestroyAccelerationStructure(as Handle)
	AccelerationStructureDeviceAddress(as Handle) DeviceAddress
}

// Pipelines creates ray tracing pipelines and what they depend on.
type Pipelines interface {
	RayTracingProperties() RayTracingProperties

	CreateDescriptorSetLayout(bindings []DescriptorBinding) (Handle, error)
	DestroyDescriptorSetLayout(layout Handle)
	CreatePipelineLayout(setLayout Handle) (Handle, error)
	DestroyPipelineLayout(layout Handle)
	CreateShaderModule(code []byte) (Handle, error)
	DestroyShaderModule(module Handle)
	CreateRayTracingPipeline(info RayTracingPipelineInfo) (Handle, error)
	DestroyPipeline(pipeline Handle)

	// ShaderGroupHandles fills dst with the handles of groupCount groups,
	// in declaration order.
	ShaderGroupHandles(pipeline Handle, groupCount uint32, dst []byte) error
}

// Descriptors manages descriptor pools and sets.
type Descriptors interface {
	CreateDescriptorPool(maxSets uint32, sizes []DescriptorPoolSize) (Handle, error)
	DestroyDescriptorPool(pool Handle)
	AllocateDescriptorSets(pool, layout Handle, count int) ([]Handle, error)
	FreeDescriptorSets(pool Handle, sets []Handle) error
	UpdateDescriptorSets(writes []DescriptorWrite)
}

// Device is everything the ray tracing pass needs from a logical device.
type Device interface {
	Memory
	AccelerationStructures
	Pipelines
	Descriptors
}

// CommandBuffer records commands into an already begun command buffer.
type CommandBuffer interface {
	PipelineBarrier(src, dst PipelineStage, memory []MemoryBarrier, images []ImageBarrier)
	BuildAccelerationStructure(info BuildInfo)
	BindRayTracingPipeline(pipeline Handle)
	BindRayTracingDescriptorSet(layout, set Handle)
	TraceRays(raygen, miss, hit, callable StridedRegion, width, height, depth uint32)
}
