// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	"github.com/devblok/korurt/core"
	"github.com/devblok/korurt/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

// NewDevice creates a logical device on the physical device at index with
// the ray tracing extensions and features enabled.
func NewDevice(instance *Instance, index int) (*Device, error) {
	if index < 0 || index >= len(instance.devices) {
		return nil, errors.Wrapf(ErrNoDevice, "index %d of %d", index, len(instance.devices))
	}
	pd := instance.devices[index]
	info := instance.describe(pd)
	if !info.RayTracing {
		return nil, errors.Wrap(ErrUnsupported, info.Name)
	}

	queueIndex, err := findQueueFamily(pd)
	if err != nil {
		return nil, err
	}

	features := enabledFeatures()
	defer free(features)

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: queueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1},
	}}
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   features,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: core.SafeStrings(deviceExtensions),
	}

	var device vk.Device
	if err := check(vk.CreateDevice(pd, &dci, nil, &device), "vk.CreateDevice()"); err != nil {
		return nil, err
	}

	d := &Device{
		instance:   instance,
		physical:   pd,
		device:     device,
		queueIndex: queueIndex,
		info:       info,
		props:      info.Properties,
		flags:      allocateFlags(),
	}
	if err := loadDevice(&instance.khr, device, &d.khr); err != nil {
		d.Destroy()
		return nil, err
	}
	vk.GetDeviceQueue(device, queueIndex, 0, &d.queue)

	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &memProperties)
	memProperties.Deref()
	for idx := uint32(0); idx < memProperties.MemoryTypeCount; idx++ {
		memProperties.MemoryTypes[idx].Deref()
		d.memoryTypes = append(d.memoryTypes, gfx.MemoryType{
			Properties: gfx.MemoryProperty(memProperties.MemoryTypes[idx].PropertyFlags),
			HeapIndex:  memProperties.MemoryTypes[idx].HeapIndex,
		})
	}
	return d, nil
}

// findQueueFamily picks the first family that can run ray tracing work,
// which needs compute or graphics capability.
func findQueueFamily(pd vk.PhysicalDevice) (uint32, error) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, nil)
	if queueFamilyCount == 0 {
		return 0, errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no queuefamilies on GPU")
	}
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, queueFamilies)

	required := vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit)
	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&required != 0 {
			return i, nil
		}
	}
	return 0, errors.New("could not find a queue family capable of ray tracing")
}

// Device is a logical Vulkan device. It implements gfx.Device.
type Device struct {
	instance   *Instance
	physical   vk.PhysicalDevice
	device     vk.Device
	queue      vk.Queue
	queueIndex uint32
	info       PhysicalDeviceInfo
	props      gfx.RayTracingProperties

	memoryTypes []gfx.MemoryType
	flags       unsafe.Pointer
	khr         deviceFuncs
}

// Info describes the physical device.
func (d *Device) Info() PhysicalDeviceInfo {
	return d.info
}

// WaitIdle blocks until the device finished all submitted work.
func (d *Device) WaitIdle() error {
	return check(vk.DeviceWaitIdle(d.device), "vk.DeviceWaitIdle()")
}

// Destroy destroys the logical device. Everything created from it must be
// released first.
func (d *Device) Destroy() {
	if d == nil || d.device == nil {
		return
	}
	vk.DestroyDevice(d.device, nil)
	d.device = nil
	free(d.flags)
	d.flags = nil
}

// RayTracingProperties implements gfx.Pipelines.
func (d *Device) RayTracingProperties() gfx.RayTracingProperties {
	return d.props
}

// AccelerationStructureBuildSizes implements gfx.AccelerationStructures.
func (d *Device) AccelerationStructureBuildSizes(t gfx.AccelerationStructureType, flags gfx.BuildFlags, geometries []gfx.Geometry, counts []uint32) gfx.BuildSizes {
	return d.khr.buildSizes(d.device, t, flags, geometries, counts)
}

// CreateAccelerationStructure implements gfx.AccelerationStructures.
func (d *Device) CreateAccelerationStructure(t gfx.AccelerationStructureType, buffer gfx.Handle, size uint64) (gfx.Handle, error) {
	return d.khr.createStructure(d.device, t, vk.Buffer(pointer(buffer)), size)
}

// DestroyAccelerationStructure implements gfx.AccelerationStructures.
func (d *Device) DestroyAccelerationStructure(h gfx.Handle) {
	d.khr.destroyStructure(d.device, h)
}

// AccelerationStructureDeviceAddress implements gfx.AccelerationStructures.
func (d *Device) AccelerationStructureDeviceAddress(h gfx.Handle) gfx.DeviceAddress {
	return d.khr.structureAddress(d.device, h)
}
