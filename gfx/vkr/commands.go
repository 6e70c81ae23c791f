// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"math"

	"github.com/devblok/korurt/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

// NewFrames creates a command pool with one command buffer and fence per
// frame slot.
func NewFrames(d *Device, slots int) (*Frames, error) {
	if slots < 1 {
		return nil, errors.Errorf("invalid frame slot count %d", slots)
	}
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.queueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}

	f := &Frames{dev: d}
	if err := check(vk.CreateCommandPool(d.device, &cpci, nil, &f.pool), "vk.CreateCommandPool()"); err != nil {
		return nil, err
	}

	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        f.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(slots),
	}
	f.buffers = make([]vk.CommandBuffer, slots)
	if err := check(vk.AllocateCommandBuffers(d.device, &cbai, f.buffers), "vk.AllocateCommandBuffers()"); err != nil {
		f.buffers = nil
		f.Destroy()
		return nil, err
	}

	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}
	for i := 0; i < slots; i++ {
		var fence vk.Fence
		if err := check(vk.CreateFence(d.device, &fci, nil, &fence), "vk.CreateFence()"); err != nil {
			f.Destroy()
			return nil, err
		}
		f.fences = append(f.fences, fence)
	}
	return f, nil
}

// Frames owns the per slot command buffers. A slot is reused only after
// the fence of its previous submission signalled.
type Frames struct {
	dev     *Device
	pool    vk.CommandPool
	buffers []vk.CommandBuffer
	fences  []vk.Fence
}

// Slots is the number of frame slots.
func (f *Frames) Slots() int {
	return len(f.buffers)
}

// Begin waits for the previous submission of slot and starts recording.
func (f *Frames) Begin(slot int) (*CommandBuffer, error) {
	if slot < 0 || slot >= len(f.buffers) {
		return nil, errors.Errorf("frame slot %d of %d", slot, len(f.buffers))
	}
	fences := []vk.Fence{f.fences[slot]}
	if err := check(vk.WaitForFences(f.dev.device, 1, fences, vk.True, math.MaxUint64), "vk.WaitForFences()"); err != nil {
		return nil, err
	}
	if err := check(vk.ResetFences(f.dev.device, 1, fences), "vk.ResetFences()"); err != nil {
		return nil, err
	}

	cmd := f.buffers[slot]
	if err := check(vk.ResetCommandBuffer(cmd, 0), "vk.ResetCommandBuffer()"); err != nil {
		return nil, err
	}
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check(vk.BeginCommandBuffer(cmd, &cbbi), "vk.BeginCommandBuffer()"); err != nil {
		return nil, err
	}
	return &CommandBuffer{dev: f.dev, cmd: cmd}, nil
}

// Submit ends recording of slot and submits it, signalling the slot fence.
func (f *Frames) Submit(slot int) error {
	cmd := f.buffers[slot]
	if err := check(vk.EndCommandBuffer(cmd), "vk.EndCommandBuffer()"); err != nil {
		return err
	}
	si := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd},
	}
	return check(vk.QueueSubmit(f.dev.queue, 1, []vk.SubmitInfo{si}, f.fences[slot]), "vk.QueueSubmit()")
}

// Once records commands into a temporary buffer, submits it and waits for
// the queue to become idle.
func (f *Frames) Once(record func(*CommandBuffer) error) error {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        f.pool,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := check(vk.AllocateCommandBuffers(f.dev.device, &cbai, commandBuffers), "vk.AllocateCommandBuffers()"); err != nil {
		return err
	}
	defer vk.FreeCommandBuffers(f.dev.device, f.pool, 1, commandBuffers)

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check(vk.BeginCommandBuffer(commandBuffers[0], &cbbi), "vk.BeginCommandBuffer()"); err != nil {
		return err
	}
	if err := record(&CommandBuffer{dev: f.dev, cmd: commandBuffers[0]}); err != nil {
		vk.EndCommandBuffer(commandBuffers[0])
		return err
	}
	if err := check(vk.EndCommandBuffer(commandBuffers[0]), "vk.EndCommandBuffer()"); err != nil {
		return err
	}

	si := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    commandBuffers,
	}
	if err := check(vk.QueueSubmit(f.dev.queue, 1, []vk.SubmitInfo{si}, nil), "vk.QueueSubmit()"); err != nil {
		return err
	}
	return check(vk.QueueWaitIdle(f.dev.queue), "vk.QueueWaitIdle()")
}

// Destroy waits for the device and destroys the fences and the pool.
func (f *Frames) Destroy() {
	if f == nil || f.pool == nil {
		return
	}
	vk.DeviceWaitIdle(f.dev.device)
	for _, fence := range f.fences {
		vk.DestroyFence(f.dev.device, fence, nil)
	}
	f.fences = nil
	if len(f.buffers) > 0 {
		vk.FreeCommandBuffers(f.dev.device, f.pool, uint32(len(f.buffers)), f.buffers)
	}
	f.buffers = nil
	vk.DestroyCommandPool(f.dev.device, f.pool, nil)
	f.pool = nil
}

// CommandBuffer records into a Vulkan command buffer. It implements
// gfx.CommandBuffer.
type CommandBuffer struct {
	dev *Device
	cmd vk.CommandBuffer
}

// PipelineBarrier implements gfx.CommandBuffer.
func (c *CommandBuffer) PipelineBarrier(src, dst gfx.PipelineStage, memory []gfx.MemoryBarrier, images []gfx.ImageBarrier) {
	var memoryBarriers []vk.MemoryBarrier
	for _, m := range memory {
		memoryBarriers = append(memoryBarriers, vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(m.SrcAccess),
			DstAccessMask: vk.AccessFlags(m.DstAccess),
		})
	}
	var imageBarriers []vk.ImageMemoryBarrier
	for _, i := range images {
		imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(i.SrcAccess),
			DstAccessMask:       vk.AccessFlags(i.DstAccess),
			OldLayout:           vk.ImageLayout(i.OldLayout),
			NewLayout:           vk.ImageLayout(i.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               vk.Image(pointer(i.Image)),
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
	}
	vk.CmdPipelineBarrier(c.cmd, vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0,
		uint32(len(memoryBarriers)), memoryBarriers, 0, nil, uint32(len(imageBarriers)), imageBarriers)
}

// BuildAccelerationStructure implements gfx.CommandBuffer.
func (c *CommandBuffer) BuildAccelerationStructure(info gfx.BuildInfo) {
	c.dev.khr.cmdBuild(c.cmd, info)
}

// BindRayTracingPipeline implements gfx.CommandBuffer.
func (c *CommandBuffer) BindRayTracingPipeline(pipeline gfx.Handle) {
	vk.CmdBindPipeline(c.cmd, bindPointRayTracing, vk.Pipeline(pointer(pipeline)))
}

// BindRayTracingDescriptorSet implements gfx.CommandBuffer.
func (c *CommandBuffer) BindRayTracingDescriptorSet(layout, set gfx.Handle) {
	vk.CmdBindDescriptorSets(c.cmd, bindPointRayTracing, vk.PipelineLayout(pointer(layout)), 0,
		1, []vk.DescriptorSet{vk.DescriptorSet(pointer(set))}, 0, nil)
}

// TraceRays implements gfx.CommandBuffer.
func (c *CommandBuffer) TraceRays(raygen, miss, hit, callable gfx.StridedRegion, width, height, depth uint32) {
	c.dev.khr.cmdTraceRays(c.cmd, raygen, miss, hit, callable, width, height, depth)
}

// CopyImageToBuffer copies a color image in transfer source layout into a
// tightly packed buffer.
func (c *CommandBuffer) CopyImageToBuffer(image, buffer gfx.Handle, width, height uint32) {
	bic := vk.BufferImageCopy{
		ImageExtent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	vk.CmdCopyImageToBuffer(c.cmd, vk.Image(pointer(image)), vk.ImageLayoutTransferSrcOptimal,
		vk.Buffer(pointer(buffer)), 1, []vk.BufferImageCopy{bic})
}
