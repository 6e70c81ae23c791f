// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"image"
	"unsafe"

	"github.com/devblok/korurt/core"
	"github.com/devblok/korurt/gfx"
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

const targetFormat = vk.FormatR8g8b8a8Unorm

// NewTarget creates a device local RGBA8 storage image with a view, usable
// as ray tracing output and as a transfer source.
func NewTarget(d *Device, width, height uint32) (*Target, error) {
	if width == 0 || height == 0 {
		return nil, errors.Errorf("invalid target extent %dx%d", width, height)
	}
	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        targetFormat,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageStorageBit | vk.ImageUsageTransferSrcBit | vk.ImageUsageSampledBit),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}

	t := &Target{dev: d, width: width, height: height, layout: gfx.ImageLayoutUndefined}
	if err := check(vk.CreateImage(d.device, &ici, nil, &t.image), "vk.CreateImage()"); err != nil {
		return nil, err
	}

	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, t.image, &memRequirements)
	memRequirements.Deref()

	memIdx, err := gfx.FindMemoryType(d.memoryTypes, memRequirements.MemoryTypeBits, gfx.MemoryPropertyDeviceLocal)
	if err != nil {
		t.Destroy()
		return nil, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memIdx,
	}
	if err := check(vk.AllocateMemory(d.device, &allocInfo, nil, &t.memory), "vk.AllocateMemory()"); err != nil {
		t.Destroy()
		return nil, err
	}
	if err := check(vk.BindImageMemory(d.device, t.image, t.memory, 0), "vk.BindImageMemory()"); err != nil {
		t.Destroy()
		return nil, err
	}

	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    t.image,
		ViewType: vk.ImageViewType2d,
		Format:   targetFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	if err := check(vk.CreateImageView(d.device, &ivci, nil, &t.view), "vk.CreateImageView()"); err != nil {
		t.Destroy()
		return nil, err
	}
	return t, nil
}

// Target is an off-screen color image the host owns.
type Target struct {
	dev    *Device
	image  vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	width  uint32
	height uint32
	layout gfx.ImageLayout
}

// Image returns the image handle.
func (t *Target) Image() gfx.Handle {
	return handle(unsafe.Pointer(t.image))
}

// View returns the image view handle. A new target always has a new view.
func (t *Target) View() gfx.Handle {
	return handle(unsafe.Pointer(t.view))
}

// Extent returns the width and height.
func (t *Target) Extent() (uint32, uint32) {
	return t.width, t.height
}

// Layout is the layout the image was last left in.
func (t *Target) Layout() gfx.ImageLayout {
	return t.layout
}

// SetLayout records the layout a submitted command buffer leaves the image in.
func (t *Target) SetLayout(layout gfx.ImageLayout) {
	t.layout = layout
}

// Readback copies the image into host memory and returns it. The image is
// returned to its current layout afterwards.
func (t *Target) Readback(frames *Frames) (*image.RGBA, error) {
	size := uint64(t.width) * uint64(t.height) * 4
	buffer, req, err := t.dev.CreateBuffer(gfx.BufferUsageTransferDst, size)
	if err != nil {
		return nil, err
	}
	defer t.dev.DestroyBuffer(buffer)

	typeIdx, err := gfx.FindMemoryType(t.dev.memoryTypes, req.MemoryTypeBits, gfx.MemoryPropertyHostVisible|gfx.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}
	memory, err := t.dev.AllocateMemory(req.Size, typeIdx)
	if err != nil {
		return nil, err
	}
	defer t.dev.FreeMemory(memory)
	if err := t.dev.BindBufferMemory(buffer, memory); err != nil {
		return nil, err
	}

	restore := t.layout
	if restore == gfx.ImageLayoutUndefined {
		restore = gfx.ImageLayoutGeneral
	}
	if err := frames.Once(func(cmd *CommandBuffer) error {
		cmd.PipelineBarrier(gfx.PipelineStageRayTracingShader|gfx.PipelineStageFragmentShader, gfx.PipelineStageTransfer, nil, []gfx.ImageBarrier{{
			Image:     t.Image(),
			OldLayout: t.layout,
			NewLayout: gfx.ImageLayoutTransferSrcOptimal,
			SrcAccess: gfx.AccessShaderWrite,
			DstAccess: gfx.AccessTransferRead,
		}})
		cmd.CopyImageToBuffer(t.Image(), buffer, t.width, t.height)
		cmd.PipelineBarrier(gfx.PipelineStageTransfer, gfx.PipelineStageHost|gfx.PipelineStageFragmentShader, []gfx.MemoryBarrier{{
			SrcAccess: gfx.AccessTransferWrite,
			DstAccess: gfx.AccessHostRead,
		}}, []gfx.ImageBarrier{{
			Image:     t.Image(),
			OldLayout: gfx.ImageLayoutTransferSrcOptimal,
			NewLayout: restore,
			SrcAccess: gfx.AccessTransferRead,
			DstAccess: gfx.AccessShaderRead,
		}})
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "readback")
	}
	t.layout = restore

	pixels, err := t.dev.ReadMemory(memory, 0, size)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, int(t.width), int(t.height)))
	core.CopyPixels(img, pixels, int(t.width)*4)
	return img, nil
}

// Destroy destroys the view, the image and its memory.
func (t *Target) Destroy() {
	if t == nil {
		return
	}
	if t.view != nil {
		vk.DestroyImageView(t.dev.device, t.view, nil)
		t.view = nil
	}
	if t.image != nil {
		vk.DestroyImage(t.dev.device, t.image, nil)
		t.image = nil
	}
	if t.memory != nil {
		vk.FreeMemory(t.dev.device, t.memory, nil)
		t.memory = nil
	}
}
