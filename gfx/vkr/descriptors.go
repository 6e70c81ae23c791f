// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	"github.com/devblok/korurt/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

// CreateDescriptorPool implements gfx.Descriptors. Sets can be freed
// individually.
func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []gfx.DescriptorPoolSize) (gfx.Handle, error) {
	poolSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		poolSizes[i] = vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var pool vk.DescriptorPool
	if err := check(vk.CreateDescriptorPool(d.device, &dpci, nil, &pool), "vk.CreateDescriptorPool()"); err != nil {
		return gfx.NullHandle, err
	}
	return handle(unsafe.Pointer(pool)), nil
}

// DestroyDescriptorPool implements gfx.Descriptors.
func (d *Device) DestroyDescriptorPool(h gfx.Handle) {
	vk.DestroyDescriptorPool(d.device, vk.DescriptorPool(pointer(h)), nil)
}

// AllocateDescriptorSets implements gfx.Descriptors.
func (d *Device) AllocateDescriptorSets(pool, layout gfx.Handle, count int) ([]gfx.Handle, error) {
	if count <= 0 {
		return nil, errors.Errorf("invalid descriptor set count %d", count)
	}
	layouts := make([]vk.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = vk.DescriptorSetLayout(pointer(layout))
	}
	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     vk.DescriptorPool(pointer(pool)),
		DescriptorSetCount: uint32(count),
		PSetLayouts:        layouts,
	}

	sets := make([]vk.DescriptorSet, count)
	if err := check(vk.AllocateDescriptorSets(d.device, &dsai, &sets[0]), "vk.AllocateDescriptorSets()"); err != nil {
		return nil, err
	}
	handles := make([]gfx.Handle, count)
	for i, s := range sets {
		handles[i] = handle(unsafe.Pointer(s))
	}
	return handles, nil
}

// FreeDescriptorSets implements gfx.Descriptors.
func (d *Device) FreeDescriptorSets(pool gfx.Handle, sets []gfx.Handle) error {
	if len(sets) == 0 {
		return nil
	}
	vkSets := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		vkSets[i] = vk.DescriptorSet(pointer(s))
	}
	return check(vk.FreeDescriptorSets(d.device, vk.DescriptorPool(pointer(pool)), uint32(len(vkSets)), vkSets), "vk.FreeDescriptorSets()")
}

// UpdateDescriptorSets implements gfx.Descriptors. Acceleration structure
// writes go through the extension entry points, everything else through
// the bindings.
func (d *Device) UpdateDescriptorSets(writes []gfx.DescriptorWrite) {
	var writeSets []vk.WriteDescriptorSet
	for _, w := range writes {
		wds := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          vk.DescriptorSet(pointer(w.Set)),
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorType(w.Type),
		}
		switch w.Type {
		case gfx.DescriptorTypeAccelerationStructure:
			d.khr.writeStructure(d.device, w.Set, w.Binding, w.AccelerationStructure)
			continue
		case gfx.DescriptorTypeStorageImage:
			wds.PImageInfo = []vk.DescriptorImageInfo{{
				ImageView:   vk.ImageView(pointer(w.ImageView)),
				ImageLayout: vk.ImageLayout(w.ImageLayout),
			}}
		default:
			wds.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: vk.Buffer(pointer(w.Buffer)),
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(w.Range),
			}}
		}
		writeSets = append(writeSets, wds)
	}
	if len(writeSets) > 0 {
		vk.UpdateDescriptorSets(d.device, uint32(len(writeSets)), writeSets, 0, nil)
	}
}
