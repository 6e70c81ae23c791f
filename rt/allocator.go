// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rt

import (
	"github.com/devblok/korurt/gfx"
	"github.com/pkg/errors"
)

// Buffer is a device buffer bound to its own memory allocation.
type Buffer struct {
	Handle      gfx.Handle
	Memory      gfx.Handle
	Address     gfx.DeviceAddress
	Size        uint64
	HostVisible bool

	dev gfx.Memory
}

// Release destroys the buffer and frees its memory. Safe to call
// more than once.
func (b *Buffer) Release() {
	if b == nil || b.dev == nil {
		return
	}
	b.dev.DestroyBuffer(b.Handle)
	b.dev.FreeMemory(b.Memory)
	b.dev = nil
}

// NewAllocator creates an allocator for dev, memory types are read once.
func NewAllocator(dev gfx.Memory) *Allocator {
	return &Allocator{
		dev:   dev,
		types: dev.MemoryTypes(),
	}
}

// Allocator gives out buffers that each own a dedicated allocation.
type Allocator struct {
	dev   gfx.Memory
	types []gfx.MemoryType
}

// CreateBuffer creates, allocates and binds a buffer. Every buffer can have
// its device address queried, the address is stored in Buffer.Address.
func (a *Allocator) CreateBuffer(usage gfx.BufferUsage, size uint64, hostVisible bool) (*Buffer, error) {
	if size == 0 {
		return nil, errors.New("buffer of zero size requested")
	}
	usage |= gfx.BufferUsageShaderDeviceAddress

	handle, req, err := a.dev.CreateBuffer(usage, size)
	if err != nil {
		return nil, errors.Wrap(err, "CreateBuffer()")
	}

	typeIdx, err := FindMemoryType(a.types, req.MemoryTypeBits, hostVisible)
	if err != nil {
		a.dev.DestroyBuffer(handle)
		return nil, err
	}

	memory, err := a.dev.AllocateMemory(req.Size, typeIdx)
	if err != nil {
		a.dev.DestroyBuffer(handle)
		return nil, errors.Wrap(err, "AllocateMemory()")
	}

	if err := a.dev.BindBufferMemory(handle, memory); err != nil {
		a.dev.DestroyBuffer(handle)
		a.dev.FreeMemory(memory)
		return nil, errors.Wrap(err, "BindBufferMemory()")
	}

	buf := &Buffer{
		Handle:      handle,
		Memory:      memory,
		Size:        size,
		HostVisible: hostVisible,
		dev:         a.dev,
	}
	buf.Address = a.DeviceAddress(buf)
	return buf, nil
}

// Write maps the buffer, copies data to its start and unmaps it.
func (a *Allocator) Write(buf *Buffer, data []byte) error {
	if !buf.HostVisible {
		return ErrNotHostVisible
	}
	if uint64(len(data)) > buf.Size {
		return errors.Wrapf(ErrBufferOverflow, "%d bytes into %d", len(data), buf.Size)
	}
	if err := a.dev.WriteMemory(buf.Memory, 0, data); err != nil {
		return errors.Wrap(err, "WriteMemory()")
	}
	return nil
}

// Free releases the buffer.
func (a *Allocator) Free(buf *Buffer) {
	buf.Release()
}

// DeviceAddress queries the device address of buf.
func (a *Allocator) DeviceAddress(buf *Buffer) gfx.DeviceAddress {
	return a.dev.BufferDeviceAddress(buf.Handle)
}

// FindMemoryType picks the first memory type allowed by filter that is
// device local, or host visible and coherent when hostVisible is set.
func FindMemoryType(types []gfx.MemoryType, filter uint32, hostVisible bool) (uint32, error) {
	want := gfx.MemoryPropertyDeviceLocal
	if hostVisible {
		want = gfx.MemoryPropertyHostVisible | gfx.MemoryPropertyHostCoherent
	}
	return gfx.FindMemoryType(types, filter, want)
}
