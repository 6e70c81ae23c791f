// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfxtest provides an in-memory gfx.Device and gfx.CommandBuffer
// that record what is done to them.
package gfxtest

import (
	"fmt"

	"github.com/devblok/korurt/gfx"
	"github.com/pkg/errors"
)

// Object kinds tracked by Device.Live.
const (
	KindBuffer         = "buffer"
	KindMemory         = "memory"
	KindAccel          = "acceleration-structure"
	KindSetLayout      = "descriptor-set-layout"
	KindPipelineLayout = "pipeline-layout"
	KindShader         = "shader-module"
	KindPipeline       = "pipeline"
	KindPool           = "descriptor-pool"
	KindSet            = "descriptor-set"
)

// ErrOutOfPoolMemory is returned when a pool has no sets left.
var ErrOutOfPoolMemory = errors.New("out of pool memory")

const bufferAlignment = 256

type buffer struct {
	usage  gfx.BufferUsage
	size   uint64
	memory gfx.Handle
}

type memory struct {
	typeIndex uint32
	data      []byte
}

type structure struct {
	kind   gfx.AccelerationStructureType
	buffer gfx.Handle
	size   uint64
}

type pool struct {
	maxSets   uint32
	allocated uint32
	sizes     []gfx.DescriptorPoolSize
}

// Set is the recorded state of a descriptor set.
type Set struct {
	Pool     gfx.Handle
	Layout   gfx.Handle
	Bindings map[uint32]gfx.DescriptorWrite
}

// Pipeline is the recorded creation info of a pipeline.
type Pipeline struct {
	Info gfx.RayTracingPipelineInfo
}

// Device is a fake gfx.Device. The zero value is not usable, use NewDevice.
type Device struct {
	Props     gfx.RayTracingProperties
	Types     []gfx.MemoryType
	TypeBits  uint32
	BaseAddr  gfx.DeviceAddress
	PoolSizes map[gfx.Handle][]gfx.DescriptorPoolSize

	next       gfx.Handle
	live       map[string]int
	created    map[string]int
	fail       map[string]error
	buffers    map[gfx.Handle]*buffer
	memories   map[gfx.Handle]*memory
	structures map[gfx.Handle]*structure
	pools      map[gfx.Handle]*pool
	sets       map[gfx.Handle]*Set
	pipelines  map[gfx.Handle]*Pipeline
	shaders    map[gfx.Handle][]byte
	writes     int
}

// NewDevice returns a device with typical desktop ray tracing limits, one
// device-local memory type and one host-visible, host-coherent type.
func NewDevice() *Device {
	return &Device{
		Props: gfx.RayTracingProperties{
			ShaderGroupHandleSize:         32,
			ShaderGroupHandleAlignment:    32,
			ShaderGroupBaseAlignment:      64,
			MaxRayRecursionDepth:          31,
			MaxShaderGroupStride:          4096,
			MaxRayDispatchInvocationCount: 1 << 30,
		},
		Types: []gfx.MemoryType{
			{Properties: gfx.MemoryPropertyDeviceLocal},
			{Properties: gfx.MemoryPropertyHostVisible | gfx.MemoryPropertyHostCoherent},
		},
		TypeBits:   0x3,
		BaseAddr:   0x100000,
		PoolSizes:  make(map[gfx.Handle][]gfx.DescriptorPoolSize),
		live:       make(map[string]int),
		created:    make(map[string]int),
		fail:       make(map[string]error),
		buffers:    make(map[gfx.Handle]*buffer),
		memories:   make(map[gfx.Handle]*memory),
		structures: make(map[gfx.Handle]*structure),
		pools:      make(map[gfx.Handle]*pool),
		sets:       make(map[gfx.Handle]*Set),
		pipelines:  make(map[gfx.Handle]*Pipeline),
		shaders:    make(map[gfx.Handle][]byte),
	}
}

// FailOn makes the named operation return err until cleared with a nil err.
func (d *Device) FailOn(op string, err error) {
	if err == nil {
		delete(d.fail, op)
		return
	}
	d.fail[op] = err
}

func (d *Device) failure(op string) error {
	if err, ok := d.fail[op]; ok {
		return errors.Wrap(err, op)
	}
	return nil
}

func (d *Device) create(kind string) gfx.Handle {
	d.next++
	d.live[kind]++
	d.created[kind]++
	return d.next
}

func (d *Device) destroy(kind string) {
	d.live[kind]--
	if d.live[kind] < 0 {
		panic(fmt.Sprintf("gfxtest: %s destroyed more often than created", kind))
	}
}

// Live returns the number of objects of kind that were not yet destroyed.
func (d *Device) Live(kind string) int {
	return d.live[kind]
}

// Created returns the number of objects of kind that were ever created.
func (d *Device) Created(kind string) int {
	return d.created[kind]
}

// LiveTotal sums Live over all kinds.
func (d *Device) LiveTotal() int {
	var total int
	for _, n := range d.live {
		total += n
	}
	return total
}

// MemoryTypes implements gfx.Memory.
func (d *Device) MemoryTypes() []gfx.MemoryType {
	return d.Types
}

// CreateBuffer implements gfx.Memory.
func (d *Device) CreateBuffer(usage gfx.BufferUsage, size uint64) (gfx.Handle, gfx.MemoryRequirements, error) {
	if err := d.failure("CreateBuffer"); err != nil {
		return gfx.NullHandle, gfx.MemoryRequirements{}, err
	}
	if size == 0 {
		return gfx.NullHandle, gfx.MemoryRequirements{}, errors.New("CreateBuffer: zero size")
	}
	h := d.create(KindBuffer)
	d.buffers[h] = &buffer{usage: usage, size: size}
	return h, gfx.MemoryRequirements{
		Size:           (size + bufferAlignment - 1) / bufferAlignment * bufferAlignment,
		Alignment:      bufferAlignment,
		MemoryTypeBits: d.TypeBits,
	}, nil
}

// DestroyBuffer implements gfx.Memory.
func (d *Device) DestroyBuffer(h gfx.Handle) {
	if _, ok := d.buffers[h]; !ok {
		panic(fmt.Sprintf("gfxtest: unknown buffer %d", h))
	}
	delete(d.buffers, h)
	d.destroy(KindBuffer)
}

// AllocateMemory implements gfx.Memory.
func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (gfx.Handle, error) {
	if err := d.failure("AllocateMemory"); err != nil {
		return gfx.NullHandle, err
	}
	if int(typeIndex) >= len(d.Types) {
		return gfx.NullHandle, errors.Errorf("AllocateMemory: memory type %d out of range", typeIndex)
	}
	h := d.create(KindMemory)
	d.memories[h] = &memory{typeIndex: typeIndex, data: make([]byte, size)}
	return h, nil
}

// FreeMemory implements gfx.Memory.
func (d *Device) FreeMemory(h gfx.Handle) {
	if _, ok := d.memories[h]; !ok {
		panic(fmt.Sprintf("gfxtest: unknown memory %d", h))
	}
	delete(d.memories, h)
	d.destroy(KindMemory)
}

// BindBufferMemory implements gfx.Memory.
func (d *Device) BindBufferMemory(b, m gfx.Handle) error {
	buf, ok := d.buffers[b]
	if !ok {
		return errors.Errorf("BindBufferMemory: unknown buffer %d", b)
	}
	if _, ok := d.memories[m]; !ok {
		return errors.Errorf("BindBufferMemory: unknown memory %d", m)
	}
	buf.memory = m
	return nil
}

// WriteMemory implements gfx.Memory.
func (d *Device) WriteMemory(m gfx.Handle, offset uint64, data []byte) error {
	mem, ok := d.memories[m]
	if !ok {
		return errors.Errorf("WriteMemory: unknown memory %d", m)
	}
	if d.Types[mem.typeIndex].Properties&gfx.MemoryPropertyHostVisible == 0 {
		return errors.New("WriteMemory: memory is not host visible")
	}
	if offset+uint64(len(data)) > uint64(len(mem.data)) {
		return errors.New("WriteMemory: write out of bounds")
	}
	copy(mem.data[offset:], data)
	return nil
}

// BufferDeviceAddress implements gfx.Memory. Buffers created without the
// device address usage report a zero address.
func (d *Device) BufferDeviceAddress(h gfx.Handle) gfx.DeviceAddress {
	buf, ok := d.buffers[h]
	if !ok || buf.usage&gfx.BufferUsageShaderDeviceAddress == 0 || buf.memory == gfx.NullHandle {
		return 0
	}
	return d.BaseAddr + gfx.DeviceAddress(h)<<16
}

// BufferContents returns the bytes backing a bound buffer.
func (d *Device) BufferContents(h gfx.Handle) []byte {
	buf, ok := d.buffers[h]
	if !ok || buf.memory == gfx.NullHandle {
		return nil
	}
	return d.memories[buf.memory].data[:buf.size]
}

// BufferUsage returns the usage a buffer was created with.
func (d *Device) BufferUsage(h gfx.Handle) gfx.BufferUsage {
	if buf, ok := d.buffers[h]; ok {
		return buf.usage
	}
	return 0
}

// AccelerationStructureBuildSizes implements gfx.AccelerationStructures.
func (d *Device) AccelerationStructureBuildSizes(t gfx.AccelerationStructureType, flags gfx.BuildFlags, geometries []gfx.Geometry, counts []uint32) gfx.BuildSizes {
	var primitives uint64
	for _, c := range counts {
		primitives += uint64(c)
	}
	return gfx.BuildSizes{
		AccelerationStructureSize: 1024 + 128*primitives,
		UpdateScratchSize:         512,
		BuildScratchSize:          512 + 64*primitives,
	}
}

// CreateAccelerationStructure implements gfx.AccelerationStructures.
func (d *Device) CreateAccelerationStructure(t gfx.AccelerationStructureType, b gfx.Handle, size uint64) (gfx.Handle, error) {
	if err := d.failure("CreateAccelerationStructure"); err != nil {
		return gfx.NullHandle, err
	}
	buf, ok := d.buffers[b]
	if !ok {
		return gfx.NullHandle, errors.Errorf("CreateAccelerationStructure: unknown buffer %d", b)
	}
	if buf.usage&gfx.BufferUsageAccelerationStructureStorage == 0 {
		return gfx.NullHandle, errors.New("CreateAccelerationStructure: buffer lacks storage usage")
	}
	if size > buf.size {
		return gfx.NullHandle, errors.New("CreateAccelerationStructure: buffer too small")
	}
	h := d.create(KindAccel)
	d.structures[h] = &structure{kind: t, buffer: b, size: size}
	return h, nil
}

// DestroyAccelerationStructure implements gfx.AccelerationStructures.
func (d *Device) DestroyAccelerationStructure(h gfx.Handle) {
	if _, ok := d.structures[h]; !ok {
		panic(fmt.Sprintf("gfxtest: unknown acceleration structure %d", h))
	}
	delete(d.structures, h)
	d.destroy(KindAccel)
}

// AccelerationStructureDeviceAddress implements gfx.AccelerationStructures.
func (d *Device) AccelerationStructureDeviceAddress(h gfx.Handle) gfx.DeviceAddress {
	as, ok := d.structures[h]
	if !ok {
		return 0
	}
	return d.BufferDeviceAddress(as.buffer)
}

// RayTracingProperties implements gfx.Pipelines.
func (d *Device) RayTracingProperties() gfx.RayTracingProperties {
	return d.Props
}

// CreateDescriptorSetLayout implements gfx.Pipelines.
func (d *Device) CreateDescriptorSetLayout(bindings []gfx.DescriptorBinding) (gfx.Handle, error) {
	if err := d.failure("CreateDescriptorSetLayout"); err != nil {
		return gfx.NullHandle, err
	}
	return d.create(KindSetLayout), nil
}

// DestroyDescriptorSetLayout implements gfx.Pipelines.
func (d *Device) DestroyDescriptorSetLayout(gfx.Handle) {
	d.destroy(KindSetLayout)
}

// CreatePipelineLayout implements gfx.Pipelines.
func (d *Device) CreatePipelineLayout(gfx.Handle) (gfx.Handle, error) {
	if err := d.failure("CreatePipelineLayout"); err != nil {
		return gfx.NullHandle, err
	}
	return d.create(KindPipelineLayout), nil
}

// DestroyPipelineLayout implements gfx.Pipelines.
func (d *Device) DestroyPipelineLayout(gfx.Handle) {
	d.destroy(KindPipelineLayout)
}

// CreateShaderModule implements gfx.Pipelines.
func (d *Device) CreateShaderModule(code []byte) (gfx.Handle, error) {
	if err := d.failure("CreateShaderModule"); err != nil {
		return gfx.NullHandle, err
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return gfx.NullHandle, errors.New("CreateShaderModule: code size must be a non-zero multiple of 4")
	}
	h := d.create(KindShader)
	d.shaders[h] = code
	return h, nil
}

// DestroyShaderModule implements gfx.Pipelines.
func (d *Device) DestroyShaderModule(h gfx.Handle) {
	delete(d.shaders, h)
	d.destroy(KindShader)
}

// CreateRayTracingPipeline implements gfx.Pipelines.
func (d *Device) CreateRayTracingPipeline(info gfx.RayTracingPipelineInfo) (gfx.Handle, error) {
	if err := d.failure("CreateRayTracingPipeline"); err != nil {
		return gfx.NullHandle, err
	}
	for _, s := range info.Stages {
		if _, ok := d.shaders[s.Module]; !ok {
			return gfx.NullHandle, errors.Errorf("CreateRayTracingPipeline: unknown shader module %d", s.Module)
		}
	}
	if info.MaxRecursionDepth > d.Props.MaxRayRecursionDepth {
		return gfx.NullHandle, errors.New("CreateRayTracingPipeline: recursion depth exceeds limit")
	}
	h := d.create(KindPipeline)
	d.pipelines[h] = &Pipeline{Info: info}
	return h, nil
}

// DestroyPipeline implements gfx.Pipelines.
func (d *Device) DestroyPipeline(h gfx.Handle) {
	delete(d.pipelines, h)
	d.destroy(KindPipeline)
}

// Pipeline returns what the pipeline was created with.
func (d *Device) Pipeline(h gfx.Handle) *Pipeline {
	return d.pipelines[h]
}

// ShaderGroupHandles implements gfx.Pipelines. The handle of group i is
// filled with the byte value i+1.
func (d *Device) ShaderGroupHandles(p gfx.Handle, groupCount uint32, dst []byte) error {
	if err := d.failure("ShaderGroupHandles"); err != nil {
		return err
	}
	size := int(d.Props.ShaderGroupHandleSize)
	if len(dst) < int(groupCount)*size {
		return errors.New("ShaderGroupHandles: destination too small")
	}
	for g := 0; g < int(groupCount); g++ {
		for i := 0; i < size; i++ {
			dst[g*size+i] = GroupHandleByte(g)
		}
	}
	return nil
}

// GroupHandleByte is the fill value of the fake handle of group g.
func GroupHandleByte(g int) byte {
	return byte(g + 1)
}

// CreateDescriptorPool implements gfx.Descriptors.
func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []gfx.DescriptorPoolSize) (gfx.Handle, error) {
	if err := d.failure("CreateDescriptorPool"); err != nil {
		return gfx.NullHandle, err
	}
	h := d.create(KindPool)
	d.pools[h] = &pool{maxSets: maxSets, sizes: sizes}
	d.PoolSizes[h] = sizes
	return h, nil
}

// DestroyDescriptorPool implements gfx.Descriptors. Sets still allocated
// from the pool are released with it.
func (d *Device) DestroyDescriptorPool(h gfx.Handle) {
	for sh, s := range d.sets {
		if s.Pool == h {
			delete(d.sets, sh)
			d.destroy(KindSet)
		}
	}
	delete(d.pools, h)
	d.destroy(KindPool)
}

// AllocateDescriptorSets implements gfx.Descriptors.
func (d *Device) AllocateDescriptorSets(p, layout gfx.Handle, count int) ([]gfx.Handle, error) {
	if err := d.failure("AllocateDescriptorSets"); err != nil {
		return nil, err
	}
	pl, ok := d.pools[p]
	if !ok {
		return nil, errors.Errorf("AllocateDescriptorSets: unknown pool %d", p)
	}
	if pl.allocated+uint32(count) > pl.maxSets {
		return nil, ErrOutOfPoolMemory
	}
	pl.allocated += uint32(count)
	sets := make([]gfx.Handle, count)
	for i := range sets {
		sets[i] = d.create(KindSet)
		d.sets[sets[i]] = &Set{Pool: p, Layout: layout, Bindings: make(map[uint32]gfx.DescriptorWrite)}
	}
	return sets, nil
}

// FreeDescriptorSets implements gfx.Descriptors.
func (d *Device) FreeDescriptorSets(p gfx.Handle, sets []gfx.Handle) error {
	if err := d.failure("FreeDescriptorSets"); err != nil {
		return err
	}
	pl, ok := d.pools[p]
	if !ok {
		return errors.Errorf("FreeDescriptorSets: unknown pool %d", p)
	}
	for _, h := range sets {
		if _, ok := d.sets[h]; !ok {
			return errors.Errorf("FreeDescriptorSets: unknown set %d", h)
		}
		delete(d.sets, h)
		d.destroy(KindSet)
		pl.allocated--
	}
	return nil
}

// UpdateDescriptorSets implements gfx.Descriptors.
func (d *Device) UpdateDescriptorSets(writes []gfx.DescriptorWrite) {
	for _, w := range writes {
		s, ok := d.sets[w.Set]
		if !ok {
			panic(fmt.Sprintf("gfxtest: write to unknown descriptor set %d", w.Set))
		}
		s.Bindings[w.Binding] = w
		d.writes++
	}
}

// DescriptorSet returns the recorded state of a set, nil once freed.
func (d *Device) DescriptorSet(h gfx.Handle) *Set {
	return d.sets[h]
}

// DescriptorWrites returns the number of binding writes seen so far.
func (d *Device) DescriptorWrites() int {
	return d.writes
}
