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

// CreateDescriptorSetLayout implements gfx.Pipelines.
func (d *Device) CreateDescriptorSetLayout(bindings []gfx.DescriptorBinding) (gfx.Handle, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}

	var layout vk.DescriptorSetLayout
	if err := check(vk.CreateDescriptorSetLayout(d.device, &dslci, nil, &layout), "vk.CreateDescriptorSetLayout()"); err != nil {
		return gfx.NullHandle, err
	}
	return handle(unsafe.Pointer(layout)), nil
}

// DestroyDescriptorSetLayout implements gfx.Pipelines.
func (d *Device) DestroyDescriptorSetLayout(h gfx.Handle) {
	vk.DestroyDescriptorSetLayout(d.device, vk.DescriptorSetLayout(pointer(h)), nil)
}

// CreatePipelineLayout implements gfx.Pipelines.
func (d *Device) CreatePipelineLayout(setLayout gfx.Handle) (gfx.Handle, error) {
	plci := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{vk.DescriptorSetLayout(pointer(setLayout))},
	}

	var layout vk.PipelineLayout
	if err := check(vk.CreatePipelineLayout(d.device, &plci, nil, &layout), "vk.CreatePipelineLayout()"); err != nil {
		return gfx.NullHandle, err
	}
	return handle(unsafe.Pointer(layout)), nil
}

// DestroyPipelineLayout implements gfx.Pipelines.
func (d *Device) DestroyPipelineLayout(h gfx.Handle) {
	vk.DestroyPipelineLayout(d.device, vk.PipelineLayout(pointer(h)), nil)
}

// CreateShaderModule implements gfx.Pipelines. code is SPIR-V.
func (d *Device) CreateShaderModule(code []byte) (gfx.Handle, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return gfx.NullHandle, errors.Errorf("invalid SPIR-V size %d", len(code))
	}
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    core.SliceUint32(code),
	}

	var shader vk.ShaderModule
	if err := check(vk.CreateShaderModule(d.device, &smci, nil, &shader), "vk.CreateShaderModule()"); err != nil {
		return gfx.NullHandle, err
	}
	return handle(unsafe.Pointer(shader)), nil
}

// DestroyShaderModule implements gfx.Pipelines.
func (d *Device) DestroyShaderModule(h gfx.Handle) {
	vk.DestroyShaderModule(d.device, vk.ShaderModule(pointer(h)), nil)
}

// CreateRayTracingPipeline implements gfx.Pipelines.
func (d *Device) CreateRayTracingPipeline(info gfx.RayTracingPipelineInfo) (gfx.Handle, error) {
	return d.khr.createPipeline(d.device, info)
}

// DestroyPipeline implements gfx.Pipelines.
func (d *Device) DestroyPipeline(h gfx.Handle) {
	vk.DestroyPipeline(d.device, vk.Pipeline(pointer(h)), nil)
}

// ShaderGroupHandles implements gfx.Pipelines.
func (d *Device) ShaderGroupHandles(pipeline gfx.Handle, groupCount uint32, dst []byte) error {
	return d.khr.groupHandles(d.device, pipeline, groupCount, dst)
}
