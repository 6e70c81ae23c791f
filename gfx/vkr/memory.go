// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	"github.com/devblok/korurt/gfx"
	vk "github.com/devblok/vulkan"
)

// MemoryTypes implements gfx.Memory.
func (d *Device) MemoryTypes() []gfx.MemoryType {
	return d.memoryTypes
}

// CreateBuffer implements gfx.Memory.
func (d *Device) CreateBuffer(usage gfx.BufferUsage, size uint64) (gfx.Handle, gfx.MemoryRequirements, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := check(vk.CreateBuffer(d.device, &createInfo, nil, &buffer), "vk.CreateBuffer()"); err != nil {
		return gfx.NullHandle, gfx.MemoryRequirements{}, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buffer, &req)
	req.Deref()

	return handle(unsafe.Pointer(buffer)), gfx.MemoryRequirements{
		Size:           uint64(req.Size),
		Alignment:      uint64(req.Alignment),
		MemoryTypeBits: req.MemoryTypeBits,
	}, nil
}

// DestroyBuffer implements gfx.Memory.
func (d *Device) DestroyBuffer(h gfx.Handle) {
	vk.DestroyBuffer(d.device, vk.Buffer(pointer(h)), nil)
}

// AllocateMemory implements gfx.Memory. All memory is allocated device
// addressable.
func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (gfx.Handle, error) {
	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		PNext:           d.flags,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}

	var memory vk.DeviceMemory
	if err := check(vk.AllocateMemory(d.device, &mai, nil, &memory), "vk.AllocateMemory()"); err != nil {
		return gfx.NullHandle, err
	}
	return handle(unsafe.Pointer(memory)), nil
}

// FreeMemory implements gfx.Memory.
func (d *Device) FreeMemory(h gfx.Handle) {
	vk.FreeMemory(d.device, vk.DeviceMemory(pointer(h)), nil)
}

// BindBufferMemory implements gfx.Memory.
func (d *Device) BindBufferMemory(buffer, memory gfx.Handle) error {
	return check(vk.BindBufferMemory(d.device, vk.Buffer(pointer(buffer)), vk.DeviceMemory(pointer(memory)), 0), "vk.BindBufferMemory()")
}

// WriteMemory implements gfx.Memory. The memory must be host visible and
// coherent.
func (d *Device) WriteMemory(memory gfx.Handle, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	mem := vk.DeviceMemory(pointer(memory))
	var mapped unsafe.Pointer
	if err := check(vk.MapMemory(d.device, mem, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &mapped), "vk.MapMemory()"); err != nil {
		return err
	}
	vk.Memcopy(mapped, data)
	vk.UnmapMemory(d.device, mem)
	return nil
}

// ReadMemory copies size bytes at offset of host visible memory.
func (d *Device) ReadMemory(memory gfx.Handle, offset, size uint64) ([]byte, error) {
	mem := vk.DeviceMemory(pointer(memory))
	var mapped unsafe.Pointer
	if err := check(vk.MapMemory(d.device, mem, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &mapped), "vk.MapMemory()"); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(mapped), size))
	vk.UnmapMemory(d.device, mem)
	return out, nil
}

// BufferDeviceAddress implements gfx.Memory.
func (d *Device) BufferDeviceAddress(h gfx.Handle) gfx.DeviceAddress {
	return d.khr.bufferAddress(d.device, vk.Buffer(pointer(h)))
}
