// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/korurt/core"
	"github.com/devblok/korurt/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// InstanceConfiguration configures instance creation.
type InstanceConfiguration struct {
	ApplicationName string
	DebugMode       bool
	Extensions      []string
	Layers          []string
}

// NewInstance creates a headless Vulkan 1.2 instance and enumerates the
// physical devices.
func NewInstance(cfg InstanceConfiguration) (*Instance, error) {
	if cfg.DebugMode {
		cfg.Layers = append(cfg.Layers, validationLayer)
	}

	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, errors.Wrap(err, "vk.SetDefaultGetInstanceProcAddr()")
	}
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "vk.Init()")
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         vk.MakeVersion(1, 2, 0),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PApplicationName:   core.SafeString(cfg.ApplicationName),
		PEngineName:        core.SafeString("korurt"),
	}
	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(cfg.Extensions)),
		PpEnabledExtensionNames: core.SafeStrings(cfg.Extensions),
		EnabledLayerCount:       uint32(len(cfg.Layers)),
		PpEnabledLayerNames:     core.SafeStrings(cfg.Layers),
	}

	var instance vk.Instance
	if err := check(vk.CreateInstance(&instanceInfo, nil, &instance), "vk.CreateInstance()"); err != nil {
		return nil, err
	}
	vk.InitInstance(instance)

	i := &Instance{instance: instance}
	if err := loadInstance(instance, &i.khr); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	devices, err := enumerateDevices(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}
	i.devices = devices
	return i, nil
}

// Instance is a Vulkan instance with its physical devices.
type Instance struct {
	instance vk.Instance
	devices  []vk.PhysicalDevice
	khr      instanceFuncs
}

// PhysicalDeviceInfo describes a physical device and its ray tracing
// capabilities.
type PhysicalDeviceInfo struct {
	ID            int                      `json:"id"`
	VendorID      int                      `json:"vendorId"`
	DriverVersion int                      `json:"driverVersion"`
	Name          string                   `json:"name"`
	Invalid       bool                     `json:"invalid,omitempty"`
	Extensions    []string                 `json:"extensions"`
	Layers        []string                 `json:"layers"`
	Memory        uint64                   `json:"memory"`
	RayTracing    bool                     `json:"rayTracing"`
	Properties    gfx.RayTracingProperties `json:"properties"`
}

// HasExtension reports whether the device supports ext.
func (p PhysicalDeviceInfo) HasExtension(ext string) bool {
	for _, e := range p.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := check(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil), "vk.EnumeratePhysicalDevices()"); err != nil {
		return nil, err
	}
	devices := make([]vk.PhysicalDevice, deviceCount)
	if err := check(vk.EnumeratePhysicalDevices(instance, &deviceCount, devices), "vk.EnumeratePhysicalDevices()"); err != nil {
		return nil, err
	}
	return devices, nil
}

// PhysicalDevicesInfo returns a description of every physical device. A
// device is marked ray tracing capable only if it supports every required
// extension and feature.
func (i *Instance) PhysicalDevicesInfo() []PhysicalDeviceInfo {
	pdi := make([]PhysicalDeviceInfo, len(i.devices))
	for idx, pd := range i.devices {
		pdi[idx] = i.describe(pd)
	}
	return pdi
}

func (i *Instance) describe(pd vk.PhysicalDevice) PhysicalDeviceInfo {
	var info PhysicalDeviceInfo

	// Get extension info
	var numDeviceExtensions uint32
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(pd, "", &numDeviceExtensions, nil)); err != nil {
		info.Invalid = true
	}
	deviceExt := make([]vk.ExtensionProperties, numDeviceExtensions)
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(pd, "", &numDeviceExtensions, deviceExt)); err != nil {
		info.Invalid = true
	}
	for _, ext := range deviceExt {
		ext.Deref()
		info.Extensions = append(info.Extensions, vk.ToString(ext.ExtensionName[:]))
	}

	// Get layers info
	var numDeviceLayers uint32
	if err := vk.Error(vk.EnumerateDeviceLayerProperties(pd, &numDeviceLayers, nil)); err != nil {
		info.Invalid = true
	}
	deviceLayers := make([]vk.LayerProperties, numDeviceLayers)
	if err := vk.Error(vk.EnumerateDeviceLayerProperties(pd, &numDeviceLayers, deviceLayers)); err != nil {
		info.Invalid = true
	}
	for _, layer := range deviceLayers {
		layer.Deref()
		info.Layers = append(info.Layers, vk.ToString(layer.LayerName[:]))
	}

	// Get memory info
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &memoryProperties)
	memoryProperties.Deref()
	for iMem := uint32(0); iMem < memoryProperties.MemoryHeapCount; iMem++ {
		memoryProperties.MemoryHeaps[iMem].Deref()
		info.Memory += uint64(memoryProperties.MemoryHeaps[iMem].Size)
	}

	// Get general device info
	var physicalDeviceProperties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &physicalDeviceProperties)
	physicalDeviceProperties.Deref()
	info.ID = int(physicalDeviceProperties.DeviceID)
	info.VendorID = int(physicalDeviceProperties.VendorID)
	info.Name = vk.ToString(physicalDeviceProperties.DeviceName[:])
	info.DriverVersion = int(physicalDeviceProperties.DriverVersion)

	info.RayTracing = !info.Invalid && rayTracingSupported(&i.khr, pd)
	for _, ext := range deviceExtensions {
		if !info.HasExtension(ext) {
			info.RayTracing = false
		}
	}
	if info.RayTracing {
		info.Properties = rayTracingProperties(&i.khr, pd)
	}
	return info
}

// Destroy destroys the instance. Devices created from it must be destroyed
// first.
func (i *Instance) Destroy() {
	if i == nil || i.instance == nil {
		return
	}
	i.devices = nil
	vk.DestroyInstance(i.instance, nil)
	i.instance = nil
}
