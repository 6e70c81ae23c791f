// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rt

import (
	"github.com/devblok/korurt/assets"
	"github.com/devblok/korurt/gfx"
	"github.com/pkg/errors"
)

// Shader group indices. The shader binding table holds one record per group
// in this order.
const (
	GroupRaygen = iota
	GroupMiss
	GroupHit

	GroupCount
)

// Descriptor bindings of the pass.
const (
	BindingAccelerationStructure = 0
	BindingOutputImage           = 1
	BindingUniforms              = 2
)

// MaxRecursionDepth of the pipeline, no secondary rays are traced.
const MaxRecursionDepth = 1

// Bindings returns the descriptor set layout of the pass. Only the ray
// generation stage reads descriptors.
func Bindings() []gfx.DescriptorBinding {
	return []gfx.DescriptorBinding{
		{Binding: BindingAccelerationStructure, Type: gfx.DescriptorTypeAccelerationStructure, Count: 1, Stages: gfx.ShaderStageRaygen},
		{Binding: BindingOutputImage, Type: gfx.DescriptorTypeStorageImage, Count: 1, Stages: gfx.ShaderStageRaygen},
		{Binding: BindingUniforms, Type: gfx.DescriptorTypeUniformBuffer, Count: 1, Stages: gfx.ShaderStageRaygen},
	}
}

// ShaderGroups returns the group declarations matching the stage order
// raygen, miss, closest hit.
func ShaderGroups() []gfx.ShaderGroup {
	general := func(stage uint32) gfx.ShaderGroup {
		return gfx.ShaderGroup{
			Type:         gfx.ShaderGroupGeneral,
			General:      stage,
			ClosestHit:   gfx.ShaderUnused,
			AnyHit:       gfx.ShaderUnused,
			Intersection: gfx.ShaderUnused,
		}
	}
	return []gfx.ShaderGroup{
		GroupRaygen: general(0),
		GroupMiss:   general(1),
		GroupHit: {
			Type:         gfx.ShaderGroupTrianglesHit,
			General:      gfx.ShaderUnused,
			ClosestHit:   2,
			AnyHit:       gfx.ShaderUnused,
			Intersection: gfx.ShaderUnused,
		},
	}
}

// Pipeline is the ray tracing pipeline with its layouts.
type Pipeline struct {
	SetLayout gfx.Handle
	Layout    gfx.Handle
	Handle    gfx.Handle
	Groups    uint32

	dev gfx.Pipelines
}

// Release destroys the pipeline and both layouts.
func (p *Pipeline) Release() {
	if p == nil || p.dev == nil {
		return
	}
	if p.Handle != gfx.NullHandle {
		p.dev.DestroyPipeline(p.Handle)
	}
	if p.Layout != gfx.NullHandle {
		p.dev.DestroyPipelineLayout(p.Layout)
	}
	if p.SetLayout != gfx.NullHandle {
		p.dev.DestroyDescriptorSetLayout(p.SetLayout)
	}
	p.dev = nil
}

// BuildPipeline loads the three shaders and creates the pipeline in a
// single call. Shader modules are destroyed before returning.
func BuildPipeline(dev gfx.Pipelines, shaders assets.Source, names ShaderNames, entry string) (*Pipeline, error) {
	if dev.RayTracingProperties().MaxRayRecursionDepth < MaxRecursionDepth {
		return nil, errors.Wrap(ErrUnsupportedDevice, "ray recursion not supported")
	}

	p := &Pipeline{dev: dev, Groups: GroupCount}
	var err error
	if p.SetLayout, err = dev.CreateDescriptorSetLayout(Bindings()); err != nil {
		return nil, errors.Wrap(err, "CreateDescriptorSetLayout()")
	}
	if p.Layout, err = dev.CreatePipelineLayout(p.SetLayout); err != nil {
		p.Release()
		return nil, errors.Wrap(err, "CreatePipelineLayout()")
	}

	stages := []struct {
		name  string
		stage gfx.ShaderStage
	}{
		{names.Raygen, gfx.ShaderStageRaygen},
		{names.Miss, gfx.ShaderStageMiss},
		{names.ClosestHit, gfx.ShaderStageClosestHit},
	}
	info := gfx.RayTracingPipelineInfo{
		Layout:            p.Layout,
		Groups:            ShaderGroups(),
		MaxRecursionDepth: MaxRecursionDepth,
	}
	defer func() {
		for _, s := range info.Stages {
			dev.DestroyShaderModule(s.Module)
		}
	}()

	for _, s := range stages {
		code, err := shaders.Bytes(s.name)
		if err != nil {
			p.Release()
			return nil, errors.Wrapf(ErrShaderNotFound, "%s: %v", s.name, err)
		}
		module, err := dev.CreateShaderModule(code)
		if err != nil {
			p.Release()
			return nil, errors.Wrapf(err, "CreateShaderModule(%s)", s.name)
		}
		info.Stages = append(info.Stages, gfx.PipelineShaderStage{Stage: s.stage, Module: module, Entry: entry})
	}

	if p.Handle, err = dev.CreateRayTracingPipeline(info); err != nil {
		p.Release()
		return nil, errors.Wrap(err, "CreateRayTracingPipeline()")
	}
	return p, nil
}
