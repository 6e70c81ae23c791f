// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rt

import (
	"github.com/devblok/korurt/gfx"
	"github.com/pkg/errors"
)

// Align rounds v up to a multiple of a. An alignment of zero is treated as one.
func Align(v, a uint64) uint64 {
	if a <= 1 {
		return v
	}
	return (v + a - 1) / a * a
}

// SBTLayout describes how group handles are laid out in the table.
type SBTLayout struct {
	HandleSize        uint64
	HandleSizeAligned uint64

	// Stride is the distance between records, aligned to the group base
	// alignment so every region starts on a valid address.
	Stride uint64

	Groups uint32
}

// NewSBTLayout computes the layout of groups records for the given limits.
func NewSBTLayout(props gfx.RayTracingProperties, groups uint32) SBTLayout {
	handleSize := uint64(props.ShaderGroupHandleSize)
	aligned := Align(handleSize, uint64(props.ShaderGroupHandleAlignment))
	return SBTLayout{
		HandleSize:        handleSize,
		HandleSizeAligned: aligned,
		Stride:            Align(aligned, uint64(props.ShaderGroupBaseAlignment)),
		Groups:            groups,
	}
}

// Size is the total table size in bytes.
func (l SBTLayout) Size() uint64 {
	return l.Stride * uint64(l.Groups)
}

// Pack copies tightly packed handles into their strided slots.
func (l SBTLayout) Pack(handles []byte) []byte {
	table := make([]byte, l.Size())
	for g := uint64(0); g < uint64(l.Groups); g++ {
		copy(table[g*l.Stride:g*l.Stride+l.HandleSize], handles[g*l.HandleSize:(g+1)*l.HandleSize])
	}
	return table
}

// Regions returns the raygen, miss, hit and callable regions of a table
// starting at base. The raygen region size equals its stride, the callable
// region is empty.
func (l SBTLayout) Regions(base gfx.DeviceAddress) (raygen, miss, hit, callable gfx.StridedRegion) {
	region := func(group int) gfx.StridedRegion {
		return gfx.StridedRegion{
			Address: base + gfx.DeviceAddress(uint64(group)*l.Stride),
			Stride:  l.HandleSizeAligned,
			Size:    l.HandleSize,
		}
	}
	raygen = region(GroupRaygen)
	raygen.Size = raygen.Stride
	return raygen, region(GroupMiss), region(GroupHit), gfx.StridedRegion{}
}

// ShaderBindingTable is the uploaded table of group handles.
type ShaderBindingTable struct {
	Buffer *Buffer
	Layout SBTLayout
}

// Regions of the uploaded table.
func (t *ShaderBindingTable) Regions() (raygen, miss, hit, callable gfx.StridedRegion) {
	return t.Layout.Regions(t.Buffer.Address)
}

// Release frees the table buffer.
func (t *ShaderBindingTable) Release() {
	if t == nil {
		return
	}
	t.Buffer.Release()
}

// BuildShaderBindingTable fetches all group handles of p in one call and
// uploads them into a single host visible buffer.
func BuildShaderBindingTable(dev gfx.Pipelines, alloc *Allocator, p *Pipeline) (*ShaderBindingTable, error) {
	props := dev.RayTracingProperties()
	if props.ShaderGroupHandleSize == 0 {
		return nil, errors.Wrap(ErrUnsupportedDevice, "zero shader group handle size")
	}
	layout := NewSBTLayout(props, p.Groups)
	if props.MaxShaderGroupStride != 0 && layout.Stride > uint64(props.MaxShaderGroupStride) {
		return nil, errors.Wrapf(ErrUnsupportedDevice, "record stride %d exceeds %d", layout.Stride, props.MaxShaderGroupStride)
	}

	handles := make([]byte, uint64(p.Groups)*layout.HandleSize)
	if err := dev.ShaderGroupHandles(p.Handle, p.Groups, handles); err != nil {
		return nil, errors.Wrap(err, "ShaderGroupHandles()")
	}

	buf, err := alloc.CreateBuffer(gfx.BufferUsageShaderBindingTable, layout.Size(), true)
	if err != nil {
		return nil, errors.Wrap(err, "shader binding table buffer")
	}
	if err := alloc.Write(buf, layout.Pack(handles)); err != nil {
		buf.Release()
		return nil, err
	}
	return &ShaderBindingTable{Buffer: buf, Layout: layout}, nil
}
