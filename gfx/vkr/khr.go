// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

/*
#cgo CFLAGS: -DVK_NO_PROTOTYPES
#cgo linux LDFLAGS: -ldl
#include <stdlib.h>
#include <string.h>
#include <vulkan/vulkan.h>
#ifdef _WIN32
#include <windows.h>
#else
#include <dlfcn.h>
#endif

typedef struct rt_instance {
	PFN_vkGetDeviceProcAddr getDeviceProcAddr;
	PFN_vkGetPhysicalDeviceProperties2 getProperties2;
	PFN_vkGetPhysicalDeviceFeatures2 getFeatures2;
} rt_instance;

typedef struct rt_khr {
	PFN_vkGetAccelerationStructureBuildSizesKHR getBuildSizes;
	PFN_vkCreateAccelerationStructureKHR createAccelerationStructure;
	PFN_vkDestroyAccelerationStructureKHR destroyAccelerationStructure;
	PFN_vkCmdBuildAccelerationStructuresKHR cmdBuildAccelerationStructures;
	PFN_vkGetAccelerationStructureDeviceAddressKHR getAccelerationStructureAddress;
	PFN_vkGetBufferDeviceAddressKHR getBufferAddress;
	PFN_vkCreateRayTracingPipelinesKHR createRayTracingPipelines;
	PFN_vkGetRayTracingShaderGroupHandlesKHR getShaderGroupHandles;
	PFN_vkCmdTraceRaysKHR cmdTraceRays;
	PFN_vkUpdateDescriptorSets updateDescriptorSets;
} rt_khr;

typedef struct rt_features {
	VkPhysicalDeviceBufferDeviceAddressFeatures address;
	VkPhysicalDeviceAccelerationStructureFeaturesKHR structure;
	VkPhysicalDeviceRayTracingPipelineFeaturesKHR pipeline;
} rt_features;

typedef struct rt_geometry {
	VkGeometryTypeKHR geometryType;
	VkGeometryFlagsKHR flags;
	VkFormat vertexFormat;
	VkDeviceAddress vertexData;
	VkDeviceSize vertexStride;
	uint32_t maxVertex;
	VkIndexType indexType;
	VkDeviceAddress indexData;
	VkDeviceAddress instanceData;
} rt_geometry;

typedef struct rt_stage {
	VkShaderStageFlagBits stage;
	VkShaderModule module;
	const char *entry;
} rt_stage;

typedef struct rt_group {
	VkRayTracingShaderGroupTypeKHR groupType;
	uint32_t general;
	uint32_t closestHit;
	uint32_t anyHit;
	uint32_t intersection;
} rt_group;

// The library stays loaded for the life of the process.
static PFN_vkGetInstanceProcAddr rt_loader(void) {
#ifdef _WIN32
	HMODULE lib = LoadLibraryA("vulkan-1.dll");
	if (!lib) return NULL;
	return (PFN_vkGetInstanceProcAddr)GetProcAddress(lib, "vkGetInstanceProcAddr");
#else
	void *lib = dlopen("libvulkan.so.1", RTLD_NOW | RTLD_LOCAL);
	if (!lib) lib = dlopen("libvulkan.so", RTLD_NOW | RTLD_LOCAL);
	if (!lib) return NULL;
	return (PFN_vkGetInstanceProcAddr)dlsym(lib, "vkGetInstanceProcAddr");
#endif
}

static const char *rt_instance_load(VkInstance instance, rt_instance *t) {
	PFN_vkGetInstanceProcAddr gipa = rt_loader();
	if (!gipa) return "vkGetInstanceProcAddr";
#define RT_INSTANCE(field, name) \
	t->field = (PFN_##name)gipa(instance, #name); \
	if (!t->field) return #name;
	RT_INSTANCE(getDeviceProcAddr, vkGetDeviceProcAddr)
	RT_INSTANCE(getProperties2, vkGetPhysicalDeviceProperties2)
	RT_INSTANCE(getFeatures2, vkGetPhysicalDeviceFeatures2)
#undef RT_INSTANCE
	return NULL;
}

static const char *rt_device_load(const rt_instance *in, VkDevice device, rt_khr *t) {
#define RT_DEVICE(field, name) \
	t->field = (PFN_##name)in->getDeviceProcAddr(device, #name); \
	if (!t->field) return #name;
	RT_DEVICE(getBuildSizes, vkGetAccelerationStructureBuildSizesKHR)
	RT_DEVICE(createAccelerationStructure, vkCreateAccelerationStructureKHR)
	RT_DEVICE(destroyAccelerationStructure, vkDestroyAccelerationStructureKHR)
	RT_DEVICE(cmdBuildAccelerationStructures, vkCmdBuildAccelerationStructuresKHR)
	RT_DEVICE(getAccelerationStructureAddress, vkGetAccelerationStructureDeviceAddressKHR)
	RT_DEVICE(getBufferAddress, vkGetBufferDeviceAddressKHR)
	RT_DEVICE(createRayTracingPipelines, vkCreateRayTracingPipelinesKHR)
	RT_DEVICE(getShaderGroupHandles, vkGetRayTracingShaderGroupHandlesKHR)
	RT_DEVICE(cmdTraceRays, vkCmdTraceRaysKHR)
	RT_DEVICE(updateDescriptorSets, vkUpdateDescriptorSets)
#undef RT_DEVICE
	return NULL;
}

static void rt_chain_features(rt_features *f) {
	memset(f, 0, sizeof(*f));
	f->address.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_BUFFER_DEVICE_ADDRESS_FEATURES;
	f->address.pNext = &f->structure;
	f->structure.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_ACCELERATION_STRUCTURE_FEATURES_KHR;
	f->structure.pNext = &f->pipeline;
	f->pipeline.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_RAY_TRACING_PIPELINE_FEATURES_KHR;
}

static int rt_supported(const rt_instance *in, VkPhysicalDevice pd) {
	rt_features f;
	rt_chain_features(&f);
	VkPhysicalDeviceFeatures2 features;
	memset(&features, 0, sizeof(features));
	features.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_FEATURES_2;
	features.pNext = &f.address;
	in->getFeatures2(pd, &features);
	return f.address.bufferDeviceAddress && f.structure.accelerationStructure && f.pipeline.rayTracingPipeline;
}

static void rt_properties(const rt_instance *in, VkPhysicalDevice pd, VkPhysicalDeviceRayTracingPipelinePropertiesKHR *out) {
	memset(out, 0, sizeof(*out));
	out->sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_RAY_TRACING_PIPELINE_PROPERTIES_KHR;
	VkPhysicalDeviceProperties2 props;
	memset(&props, 0, sizeof(props));
	props.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_PROPERTIES_2;
	props.pNext = out;
	in->getProperties2(pd, &props);
}

// Both chains are handed to the vulkan bindings as pNext and must be freed
// by the caller.
static void *rt_enabled_features(void) {
	rt_features *f = malloc(sizeof(rt_features));
	rt_chain_features(f);
	f->address.bufferDeviceAddress = VK_TRUE;
	f->structure.accelerationStructure = VK_TRUE;
	f->pipeline.rayTracingPipeline = VK_TRUE;
	return f;
}

static void *rt_allocate_flags(void) {
	VkMemoryAllocateFlagsInfo *info = calloc(1, sizeof(VkMemoryAllocateFlagsInfo));
	info->sType = VK_STRUCTURE_TYPE_MEMORY_ALLOCATE_FLAGS_INFO;
	info->flags = VK_MEMORY_ALLOCATE_DEVICE_ADDRESS_BIT;
	return info;
}

static VkAccelerationStructureGeometryKHR *rt_geometries(const rt_geometry *in, uint32_t n) {
	VkAccelerationStructureGeometryKHR *out = calloc(n, sizeof(VkAccelerationStructureGeometryKHR));
	for (uint32_t i = 0; i < n; i++) {
		out[i].sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_KHR;
		out[i].geometryType = in[i].geometryType;
		out[i].flags = in[i].flags;
		if (in[i].geometryType == VK_GEOMETRY_TYPE_TRIANGLES_KHR) {
			VkAccelerationStructureGeometryTrianglesDataKHR *t = &out[i].geometry.triangles;
			t->sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_TRIANGLES_DATA_KHR;
			t->vertexFormat = in[i].vertexFormat;
			t->vertexData.deviceAddress = in[i].vertexData;
			t->vertexStride = in[i].vertexStride;
			t->maxVertex = in[i].maxVertex;
			t->indexType = in[i].indexType;
			t->indexData.deviceAddress = in[i].indexData;
		} else {
			VkAccelerationStructureGeometryInstancesDataKHR *d = &out[i].geometry.instances;
			d->sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_INSTANCES_DATA_KHR;
			d->arrayOfPointers = VK_FALSE;
			d->data.deviceAddress = in[i].instanceData;
		}
	}
	return out;
}

static void rt_build_sizes(const rt_khr *t, VkDevice dev, VkAccelerationStructureTypeKHR type, VkBuildAccelerationStructureFlagsKHR flags,
		const rt_geometry *geometries, const uint32_t *counts, uint32_t n, VkAccelerationStructureBuildSizesInfoKHR *out) {
	VkAccelerationStructureGeometryKHR *g = rt_geometries(geometries, n);
	VkAccelerationStructureBuildGeometryInfoKHR info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_BUILD_GEOMETRY_INFO_KHR;
	info.type = type;
	info.flags = flags;
	info.mode = VK_BUILD_ACCELERATION_STRUCTURE_MODE_BUILD_KHR;
	info.geometryCount = n;
	info.pGeometries = g;
	memset(out, 0, sizeof(*out));
	out->sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_BUILD_SIZES_INFO_KHR;
	t->getBuildSizes(dev, VK_ACCELERATION_STRUCTURE_BUILD_TYPE_DEVICE_KHR, &info, counts, out);
	free(g);
}

static void rt_cmd_build(const rt_khr *t, VkCommandBuffer cmd, VkAccelerationStructureTypeKHR type, VkBuildAccelerationStructureFlagsKHR flags,
		VkAccelerationStructureKHR dst, VkDeviceAddress scratch, const rt_geometry *geometries, const uint32_t *counts, uint32_t n) {
	VkAccelerationStructureGeometryKHR *g = rt_geometries(geometries, n);
	VkAccelerationStructureBuildRangeInfoKHR *ranges = calloc(n, sizeof(VkAccelerationStructureBuildRangeInfoKHR));
	for (uint32_t i = 0; i < n; i++) {
		ranges[i].primitiveCount = counts[i];
	}
	VkAccelerationStructureBuildGeometryInfoKHR info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_BUILD_GEOMETRY_INFO_KHR;
	info.type = type;
	info.flags = flags;
	info.mode = VK_BUILD_ACCELERATION_STRUCTURE_MODE_BUILD_KHR;
	info.dstAccelerationStructure = dst;
	info.geometryCount = n;
	info.pGeometries = g;
	info.scratchData.deviceAddress = scratch;
	const VkAccelerationStructureBuildRangeInfoKHR *pranges = ranges;
	t->cmdBuildAccelerationStructures(cmd, 1, &info, &pranges);
	free(ranges);
	free(g);
}

static VkResult rt_create_structure(const rt_khr *t, VkDevice dev, VkAccelerationStructureTypeKHR type, VkBuffer buffer, VkDeviceSize size, VkAccelerationStructureKHR *out) {
	VkAccelerationStructureCreateInfoKHR info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_CREATE_INFO_KHR;
	info.buffer = buffer;
	info.size = size;
	info.type = type;
	return t->createAccelerationStructure(dev, &info, NULL, out);
}

static void rt_destroy_structure(const rt_khr *t, VkDevice dev, VkAccelerationStructureKHR as) {
	t->destroyAccelerationStructure(dev, as, NULL);
}

static VkDeviceAddress rt_structure_address(const rt_khr *t, VkDevice dev, VkAccelerationStructureKHR as) {
	VkAccelerationStructureDeviceAddressInfoKHR info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_DEVICE_ADDRESS_INFO_KHR;
	info.accelerationStructure = as;
	return t->getAccelerationStructureAddress(dev, &info);
}

static VkDeviceAddress rt_buffer_address(const rt_khr *t, VkDevice dev, VkBuffer buffer) {
	VkBufferDeviceAddressInfo info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_BUFFER_DEVICE_ADDRESS_INFO;
	info.buffer = buffer;
	return t->getBufferAddress(dev, &info);
}

static VkResult rt_create_pipeline(const rt_khr *t, VkDevice dev, VkPipelineLayout layout, const rt_stage *stages, uint32_t nStages,
		const rt_group *groups, uint32_t nGroups, uint32_t depth, VkPipeline *out) {
	VkPipelineShaderStageCreateInfo *s = calloc(nStages, sizeof(VkPipelineShaderStageCreateInfo));
	for (uint32_t i = 0; i < nStages; i++) {
		s[i].sType = VK_STRUCTURE_TYPE_PIPELINE_SHADER_STAGE_CREATE_INFO;
		s[i].stage = stages[i].stage;
		s[i].module = stages[i].module;
		s[i].pName = stages[i].entry;
	}
	VkRayTracingShaderGroupCreateInfoKHR *g = calloc(nGroups, sizeof(VkRayTracingShaderGroupCreateInfoKHR));
	for (uint32_t i = 0; i < nGroups; i++) {
		g[i].sType = VK_STRUCTURE_TYPE_RAY_TRACING_SHADER_GROUP_CREATE_INFO_KHR;
		g[i].type = groups[i].groupType;
		g[i].generalShader = groups[i].general;
		g[i].closestHitShader = groups[i].closestHit;
		g[i].anyHitShader = groups[i].anyHit;
		g[i].intersectionShader = groups[i].intersection;
	}
	VkRayTracingPipelineCreateInfoKHR info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_RAY_TRACING_PIPELINE_CREATE_INFO_KHR;
	info.stageCount = nStages;
	info.pStages = s;
	info.groupCount = nGroups;
	info.pGroups = g;
	info.maxPipelineRayRecursionDepth = depth;
	info.layout = layout;
	VkResult res = t->createRayTracingPipelines(dev, VK_NULL_HANDLE, VK_NULL_HANDLE, 1, &info, NULL, out);
	free(g);
	free(s);
	return res;
}

static VkResult rt_group_handles(const rt_khr *t, VkDevice dev, VkPipeline pipeline, uint32_t count, size_t size, void *dst) {
	return t->getShaderGroupHandles(dev, pipeline, 0, count, size, dst);
}

static void rt_cmd_trace_rays(const rt_khr *t, VkCommandBuffer cmd, const VkStridedDeviceAddressRegionKHR *regions, uint32_t w, uint32_t h, uint32_t d) {
	t->cmdTraceRays(cmd, &regions[0], &regions[1], &regions[2], &regions[3], w, h, d);
}

static void rt_write_structure(const rt_khr *t, VkDevice dev, VkDescriptorSet set, uint32_t binding, VkAccelerationStructureKHR as) {
	VkWriteDescriptorSetAccelerationStructureKHR info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_WRITE_DESCRIPTOR_SET_ACCELERATION_STRUCTURE_KHR;
	info.accelerationStructureCount = 1;
	info.pAccelerationStructures = &as;
	VkWriteDescriptorSet w;
	memset(&w, 0, sizeof(w));
	w.sType = VK_STRUCTURE_TYPE_WRITE_DESCRIPTOR_SET;
	w.pNext = &info;
	w.dstSet = set;
	w.dstBinding = binding;
	w.descriptorCount = 1;
	w.descriptorType = VK_DESCRIPTOR_TYPE_ACCELERATION_STRUCTURE_KHR;
	t->updateDescriptorSets(dev, 1, &w, 0, NULL);
}
*/
import "C"

import (
	"unsafe"

	"github.com/devblok/korurt/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

// Extensions every ray tracing device must support.
var deviceExtensions = []string{
	"VK_KHR_acceleration_structure",
	"VK_KHR_ray_tracing_pipeline",
	"VK_KHR_buffer_device_address",
	"VK_KHR_deferred_host_operations",
	"VK_KHR_spirv_1_4",
	"VK_KHR_shader_float_controls",
}

// bindPointRayTracing predates the bindings.
const bindPointRayTracing = vk.PipelineBindPoint(1000165000)

// instanceFuncs and deviceFuncs hold the entry points loaded at runtime.
type (
	instanceFuncs C.rt_instance
	deviceFuncs   C.rt_khr
)

func (t *instanceFuncs) c() *C.rt_instance { return (*C.rt_instance)(t) }

func (t *deviceFuncs) c() *C.rt_khr { return (*C.rt_khr)(t) }

func loadInstance(instance vk.Instance, t *instanceFuncs) error {
	if missing := C.rt_instance_load(C.VkInstance(unsafe.Pointer(instance)), t.c()); missing != nil {
		return errors.Errorf("instance function %s not found", C.GoString(missing))
	}
	return nil
}

func loadDevice(in *instanceFuncs, device vk.Device, t *deviceFuncs) error {
	if missing := C.rt_device_load(in.c(), C.VkDevice(unsafe.Pointer(device)), t.c()); missing != nil {
		return errors.Errorf("device function %s not found", C.GoString(missing))
	}
	return nil
}

func rayTracingSupported(in *instanceFuncs, pd vk.PhysicalDevice) bool {
	return C.rt_supported(in.c(), C.VkPhysicalDevice(unsafe.Pointer(pd))) != 0
}

func rayTracingProperties(in *instanceFuncs, pd vk.PhysicalDevice) gfx.RayTracingProperties {
	var p C.VkPhysicalDeviceRayTracingPipelinePropertiesKHR
	C.rt_properties(in.c(), C.VkPhysicalDevice(unsafe.Pointer(pd)), &p)
	return gfx.RayTracingProperties{
		ShaderGroupHandleSize:         uint32(p.shaderGroupHandleSize),
		ShaderGroupHandleAlignment:    uint32(p.shaderGroupHandleAlignment),
		ShaderGroupBaseAlignment:      uint32(p.shaderGroupBaseAlignment),
		MaxRayRecursionDepth:          uint32(p.maxRayRecursionDepth),
		MaxShaderGroupStride:          uint32(p.maxShaderGroupStride),
		MaxRayDispatchInvocationCount: uint32(p.maxRayDispatchInvocationCount),
	}
}

// enabledFeatures returns the pNext chain enabling buffer device addresses,
// acceleration structures and ray tracing pipelines. It must be freed.
func enabledFeatures() unsafe.Pointer {
	return C.rt_enabled_features()
}

// allocateFlags returns the pNext struct requesting device addressable
// memory. It must be freed.
func allocateFlags() unsafe.Pointer {
	return C.rt_allocate_flags()
}

func free(p unsafe.Pointer) {
	C.free(p)
}

func cGeometries(in []gfx.Geometry) []C.rt_geometry {
	out := make([]C.rt_geometry, len(in))
	for i, g := range in {
		out[i] = C.rt_geometry{
			geometryType: C.VkGeometryTypeKHR(g.Type),
			flags:        C.VkGeometryFlagsKHR(g.Flags),
			vertexFormat: C.VkFormat(g.Triangles.VertexFormat),
			vertexData:   C.VkDeviceAddress(g.Triangles.VertexData),
			vertexStride: C.VkDeviceSize(g.Triangles.VertexStride),
			maxVertex:    C.uint32_t(g.Triangles.MaxVertex),
			indexType:    C.VkIndexType(g.Triangles.IndexType),
			indexData:    C.VkDeviceAddress(g.Triangles.IndexData),
			instanceData: C.VkDeviceAddress(g.Instances.Data),
		}
	}
	return out
}

func cCounts(in []uint32) []C.uint32_t {
	out := make([]C.uint32_t, len(in))
	for i, c := range in {
		out[i] = C.uint32_t(c)
	}
	return out
}

func cRegion(r gfx.StridedRegion) C.VkStridedDeviceAddressRegionKHR {
	return C.VkStridedDeviceAddressRegionKHR{
		deviceAddress: C.VkDeviceAddress(r.Address),
		stride:        C.VkDeviceSize(r.Stride),
		size:          C.VkDeviceSize(r.Size),
	}
}

func cDevice(dev vk.Device) C.VkDevice {
	return C.VkDevice(unsafe.Pointer(dev))
}

func (t *deviceFuncs) buildSizes(dev vk.Device, typ gfx.AccelerationStructureType, flags gfx.BuildFlags, geometries []gfx.Geometry, primitives []uint32) gfx.BuildSizes {
	if len(geometries) == 0 || len(geometries) != len(primitives) {
		return gfx.BuildSizes{}
	}
	g, n := cGeometries(geometries), cCounts(primitives)
	var sizes C.VkAccelerationStructureBuildSizesInfoKHR
	C.rt_build_sizes(t.c(), cDevice(dev), C.VkAccelerationStructureTypeKHR(typ), C.VkBuildAccelerationStructureFlagsKHR(flags),
		&g[0], &n[0], C.uint32_t(len(g)), &sizes)
	return gfx.BuildSizes{
		AccelerationStructureSize: uint64(sizes.accelerationStructureSize),
		UpdateScratchSize:         uint64(sizes.updateScratchSize),
		BuildScratchSize:          uint64(sizes.buildScratchSize),
	}
}

func (t *deviceFuncs) cmdBuild(cmd vk.CommandBuffer, info gfx.BuildInfo) {
	if len(info.Geometries) == 0 || len(info.Geometries) != len(info.PrimitiveCounts) {
		return
	}
	g, n := cGeometries(info.Geometries), cCounts(info.PrimitiveCounts)
	C.rt_cmd_build(t.c(), C.VkCommandBuffer(unsafe.Pointer(cmd)),
		C.VkAccelerationStructureTypeKHR(info.Type), C.VkBuildAccelerationStructureFlagsKHR(info.Flags),
		C.VkAccelerationStructureKHR(pointer(info.Destination)), C.VkDeviceAddress(info.ScratchData),
		&g[0], &n[0], C.uint32_t(len(g)))
}

func (t *deviceFuncs) createStructure(dev vk.Device, typ gfx.AccelerationStructureType, buffer vk.Buffer, size uint64) (gfx.Handle, error) {
	var as C.VkAccelerationStructureKHR
	res := C.rt_create_structure(t.c(), cDevice(dev), C.VkAccelerationStructureTypeKHR(typ),
		C.VkBuffer(unsafe.Pointer(buffer)), C.VkDeviceSize(size), &as)
	if err := check(vk.Result(res), "vkCreateAccelerationStructureKHR()"); err != nil {
		return gfx.NullHandle, err
	}
	return handle(unsafe.Pointer(as)), nil
}

func (t *deviceFuncs) destroyStructure(dev vk.Device, h gfx.Handle) {
	C.rt_destroy_structure(t.c(), cDevice(dev), C.VkAccelerationStructureKHR(pointer(h)))
}

func (t *deviceFuncs) structureAddress(dev vk.Device, h gfx.Handle) gfx.DeviceAddress {
	return gfx.DeviceAddress(C.rt_structure_address(t.c(), cDevice(dev), C.VkAccelerationStructureKHR(pointer(h))))
}

func (t *deviceFuncs) bufferAddress(dev vk.Device, buffer vk.Buffer) gfx.DeviceAddress {
	return gfx.DeviceAddress(C.rt_buffer_address(t.c(), cDevice(dev), C.VkBuffer(unsafe.Pointer(buffer))))
}

func (t *deviceFuncs) createPipeline(dev vk.Device, info gfx.RayTracingPipelineInfo) (gfx.Handle, error) {
	if len(info.Stages) == 0 || len(info.Groups) == 0 {
		return gfx.NullHandle, errors.New("ray tracing pipeline needs stages and groups")
	}
	stages := make([]C.rt_stage, len(info.Stages))
	for i, s := range info.Stages {
		entry := C.CString(s.Entry)
		defer C.free(unsafe.Pointer(entry))
		stages[i] = C.rt_stage{
			stage:  C.VkShaderStageFlagBits(s.Stage),
			module: C.VkShaderModule(pointer(s.Module)),
			entry:  entry,
		}
	}
	groups := make([]C.rt_group, len(info.Groups))
	for i, g := range info.Groups {
		groups[i] = C.rt_group{
			groupType:    C.VkRayTracingShaderGroupTypeKHR(g.Type),
			general:      C.uint32_t(g.General),
			closestHit:   C.uint32_t(g.ClosestHit),
			anyHit:       C.uint32_t(g.AnyHit),
			intersection: C.uint32_t(g.Intersection),
		}
	}

	var pipeline C.VkPipeline
	res := C.rt_create_pipeline(t.c(), cDevice(dev), C.VkPipelineLayout(pointer(info.Layout)),
		&stages[0], C.uint32_t(len(stages)), &groups[0], C.uint32_t(len(groups)),
		C.uint32_t(info.MaxRecursionDepth), &pipeline)
	if err := check(vk.Result(res), "vkCreateRayTracingPipelinesKHR()"); err != nil {
		return gfx.NullHandle, err
	}
	return handle(unsafe.Pointer(pipeline)), nil
}

func (t *deviceFuncs) groupHandles(dev vk.Device, pipeline gfx.Handle, count uint32, dst []byte) error {
	if len(dst) == 0 {
		return errors.New("no room for shader group handles")
	}
	res := C.rt_group_handles(t.c(), cDevice(dev), C.VkPipeline(pointer(pipeline)), C.uint32_t(count),
		C.size_t(len(dst)), unsafe.Pointer(&dst[0]))
	return check(vk.Result(res), "vkGetRayTracingShaderGroupHandlesKHR()")
}

func (t *deviceFuncs) cmdTraceRays(cmd vk.CommandBuffer, raygen, miss, hit, callable gfx.StridedRegion, width, height, depth uint32) {
	regions := [4]C.VkStridedDeviceAddressRegionKHR{cRegion(raygen), cRegion(miss), cRegion(hit), cRegion(callable)}
	C.rt_cmd_trace_rays(t.c(), C.VkCommandBuffer(unsafe.Pointer(cmd)), &regions[0],
		C.uint32_t(width), C.uint32_t(height), C.uint32_t(depth))
}

func (t *deviceFuncs) writeStructure(dev vk.Device, set gfx.Handle, binding uint32, as gfx.Handle) {
	C.rt_write_structure(t.c(), cDevice(dev), C.VkDescriptorSet(pointer(set)), C.uint32_t(binding),
		C.VkAccelerationStructureKHR(pointer(as)))
}

func handle(p unsafe.Pointer) gfx.Handle {
	return gfx.Handle(uintptr(p))
}

func pointer(h gfx.Handle) unsafe.Pointer {
	return unsafe.Pointer(uintptr(h))
}
