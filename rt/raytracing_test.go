// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rt_test

import (
	"testing"

	"github.com/devblok/korurt/gfx"
	"github.com/devblok/korurt/gfx/gfxtest"
	"github.com/devblok/korurt/model"
	"github.com/devblok/korurt/rt"
	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
)

func target(view gfx.Handle, w, h uint32) rt.Target {
	return rt.Target{
		Image:  view + 1000,
		View:   view,
		Layout: gfx.ImageLayoutShaderReadOnlyOptimal,
		Width:  w,
		Height: h,
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	c := qt.New(t)
	cfg := rt.DefaultConfig()
	cfg.FramesInFlight = 0
	_, err := rt.New(gfxtest.NewDevice(), testShaders(), model.Triangle(), cfg)
	c.Assert(err, qt.ErrorMatches, "invalid configuration: frames in flight .*")
}

func TestInit(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	pass := newPass(c, dev, rt.DefaultConfig())
	defer pass.Release()

	c.Assert(pass.State(), qt.Equals, rt.Uninitialized)
	c.Assert(pass.NeedsRebuild(1), qt.IsTrue)
	c.Assert(dev.Live(gfxtest.KindPool), qt.Equals, 1)
	c.Assert(dev.Live(gfxtest.KindBuffer), qt.Equals, 2)
	for slot := 0; slot < 2; slot++ {
		u := pass.FrameUniform(slot)
		c.Assert(u.Size, qt.Equals, uint64(rt.UniformSize))
		c.Assert(u.HostVisible, qt.IsTrue)
		c.Assert(pass.FrameSet(slot), qt.Equals, gfx.NullHandle)
	}

	c.Assert(pass.Init(), qt.Equals, rt.ErrAlreadyInitialised)
}

func TestExecuteErrors(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	cmd := &gfxtest.CommandBuffer{}

	pass, err := rt.New(dev, testShaders(), model.Triangle(), rt.DefaultConfig(), rt.WithLogger(quietLogger()))
	c.Assert(err, qt.IsNil)
	_, err = pass.Execute(cmd, target(1, 64, 64), 0)
	c.Assert(err, qt.Equals, rt.ErrNotInitialised)

	c.Assert(pass.Init(), qt.IsNil)
	defer pass.Release()

	for _, slot := range []int{-1, 2, 7} {
		layout, err := pass.Execute(cmd, target(1, 64, 64), slot)
		c.Assert(errors.Cause(err), qt.Equals, rt.ErrInvalidFrameSlot, qt.Commentf("slot %d", slot))
		c.Assert(layout, qt.Equals, gfx.ImageLayoutShaderReadOnlyOptimal)
	}
	for _, extent := range [][2]uint32{{0, 64}, {64, 0}, {0, 0}} {
		_, err := pass.Execute(cmd, target(1, extent[0], extent[1]), 0)
		c.Assert(errors.Cause(err), qt.Equals, rt.ErrInvalidExtent)
	}
	c.Assert(cmd.Commands, qt.HasLen, 0)
	c.Assert(pass.Builds(), qt.Equals, 0)
}

func TestExecuteTriangle(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	cmd := &gfxtest.CommandBuffer{}
	pass := newPass(c, dev, rt.DefaultConfig())

	tgt := target(42, 1280, 720)
	tgt.Layout = gfx.ImageLayoutUndefined
	layout, err := pass.Execute(cmd, tgt, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(layout, qt.Equals, gfx.ImageLayoutShaderReadOnlyOptimal)
	c.Assert(pass.State(), qt.Equals, rt.SteadyState)
	c.Assert(pass.Builds(), qt.Equals, 1)
	c.Assert(pass.Instances(), qt.Equals, uint32(1))

	c.Assert(cmd.Kinds(), qt.DeepEquals, []gfxtest.Kind{
		gfxtest.CmdBuild,
		gfxtest.CmdBarrier,
		gfxtest.CmdBuild,
		gfxtest.CmdBarrier,
		gfxtest.CmdBindPipeline,
		gfxtest.CmdBindSet,
		gfxtest.CmdTraceRays,
		gfxtest.CmdBarrier,
	})

	toGeneral := cmd.Commands[3]
	c.Assert(toGeneral.SrcStage, qt.Equals, gfx.PipelineStageFragmentShader)
	c.Assert(toGeneral.DstStage, qt.Equals, gfx.PipelineStageRayTracingShader)
	c.Assert(toGeneral.Images, qt.DeepEquals, []gfx.ImageBarrier{{
		Image:     tgt.Image,
		OldLayout: gfx.ImageLayoutUndefined,
		NewLayout: gfx.ImageLayoutGeneral,
		SrcAccess: gfx.AccessShaderRead,
		DstAccess: gfx.AccessShaderWrite,
	}})

	trace := cmd.Commands[6]
	c.Assert([3]uint32{trace.Width, trace.Height, trace.Depth}, qt.Equals, [3]uint32{1280, 720, 1})
	raygen, miss, hit, callable := pass.ShaderBindingTable().Regions()
	c.Assert(trace.Raygen, qt.Equals, raygen)
	c.Assert(trace.Miss, qt.Equals, miss)
	c.Assert(trace.Hit, qt.Equals, hit)
	c.Assert(trace.Callable, qt.Equals, callable)
	c.Assert(raygen.Size, qt.Equals, raygen.Stride)
	c.Assert(callable, qt.Equals, gfx.StridedRegion{})

	bindPipeline := cmd.Commands[4]
	c.Assert(dev.Pipeline(bindPipeline.Pipeline), qt.Not(qt.IsNil))
	c.Assert(dev.Pipeline(bindPipeline.Pipeline).Info.MaxRecursionDepth, qt.Equals, uint32(1))
	c.Assert(dev.Pipeline(bindPipeline.Pipeline).Info.Groups, qt.HasLen, rt.GroupCount)
	c.Assert(cmd.Commands[5].Set, qt.Equals, pass.FrameSet(0))

	back := cmd.Commands[7]
	c.Assert(back.SrcStage, qt.Equals, gfx.PipelineStageRayTracingShader)
	c.Assert(back.DstStage, qt.Equals, gfx.PipelineStageFragmentShader)
	c.Assert(back.Images[0].OldLayout, qt.Equals, gfx.ImageLayoutGeneral)
	c.Assert(back.Images[0].NewLayout, qt.Equals, gfx.ImageLayoutShaderReadOnlyOptimal)

	set := dev.DescriptorSet(pass.FrameSet(0))
	c.Assert(set, qt.Not(qt.IsNil))
	c.Assert(set.Bindings, qt.HasLen, 3)
	c.Assert(set.Bindings[rt.BindingAccelerationStructure].Type, qt.Equals, gfx.DescriptorTypeAccelerationStructure)
	c.Assert(set.Bindings[rt.BindingAccelerationStructure].AccelerationStructure, qt.Not(qt.Equals), gfx.NullHandle)
	c.Assert(set.Bindings[rt.BindingOutputImage].ImageView, qt.Equals, tgt.View)
	c.Assert(set.Bindings[rt.BindingOutputImage].ImageLayout, qt.Equals, gfx.ImageLayoutGeneral)
	c.Assert(set.Bindings[rt.BindingUniforms].Buffer, qt.Equals, pass.FrameUniform(0).Handle)
	c.Assert(set.Bindings[rt.BindingUniforms].Range, qt.Equals, gfx.WholeSize)

	uniform := dev.BufferContents(pass.FrameUniform(0).Handle)
	c.Assert(uniform, qt.DeepEquals, pass.Camera().Uniform())

	pass.Release()
	c.Assert(dev.LiveTotal(), qt.Equals, 0)
}

func TestExecuteLayouts(t *testing.T) {
	layouts := []gfx.ImageLayout{
		gfx.ImageLayoutUndefined,
		gfx.ImageLayoutGeneral,
		gfx.ImageLayoutShaderReadOnlyOptimal,
		gfx.ImageLayoutTransferSrcOptimal,
		gfx.ImageLayoutTransferDstOptimal,
	}
	for _, layout := range layouts {
		t.Run(layout.String(), func(t *testing.T) {
			c := qt.New(t)
			dev := gfxtest.NewDevice()
			cmd := &gfxtest.CommandBuffer{}
			pass := newPass(c, dev, rt.DefaultConfig())
			defer pass.Release()

			tgt := target(3, 16, 16)
			tgt.Layout = layout
			got, err := pass.Execute(cmd, tgt, 1)
			c.Assert(err, qt.IsNil)
			c.Assert(got, qt.Equals, gfx.ImageLayoutShaderReadOnlyOptimal)

			barriers := cmd.Filter(gfxtest.CmdBarrier)
			first := barriers[len(barriers)-2].Images[0]
			c.Assert(first.OldLayout, qt.Equals, layout)
			c.Assert(first.NewLayout, qt.Equals, gfx.ImageLayoutGeneral)
		})
	}
}

func TestExecuteBuildsOnce(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	cmd := &gfxtest.CommandBuffer{}
	pass := newPass(c, dev, rt.DefaultConfig())
	defer pass.Release()

	tgt := target(7, 320, 240)
	for frame := 0; frame < 6; frame++ {
		cmd.Reset()
		layout, err := pass.Execute(cmd, tgt, frame%2)
		c.Assert(err, qt.IsNil)
		tgt.Layout = layout
		if frame > 0 {
			c.Assert(cmd.Filter(gfxtest.CmdBuild), qt.HasLen, 0, qt.Commentf("frame %d", frame))
		}
	}
	c.Assert(pass.Builds(), qt.Equals, 1)
	c.Assert(dev.Created(gfxtest.KindPipeline), qt.Equals, 1)
	c.Assert(pass.NeedsRebuild(tgt.View), qt.IsFalse)
	c.Assert(pass.NeedsRebuild(tgt.View+1), qt.IsTrue)

	resized := target(8, 640, 480)
	cmd.Reset()
	_, err := pass.Execute(cmd, resized, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(cmd.Filter(gfxtest.CmdBuild), qt.HasLen, 2)
	c.Assert(pass.Builds(), qt.Equals, 2)
	c.Assert(pass.Camera(), qt.Equals, rt.NewCamera(rt.DefaultConfig(), 640, 480))

	set := dev.DescriptorSet(pass.FrameSet(1))
	c.Assert(set.Bindings[rt.BindingOutputImage].ImageView, qt.Equals, resized.View)

	trace := cmd.Filter(gfxtest.CmdTraceRays)[0]
	c.Assert([2]uint32{trace.Width, trace.Height}, qt.Equals, [2]uint32{640, 480})
}

func TestFrameSlotsAreIsolated(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	cmd := &gfxtest.CommandBuffer{}
	cfg := rt.DefaultConfig()
	cfg.FramesInFlight = 3
	pass := newPass(c, dev, cfg)
	defer pass.Release()

	_, err := pass.Execute(cmd, target(1, 32, 32), 2)
	c.Assert(err, qt.IsNil)

	sets := map[gfx.Handle]bool{}
	uniforms := map[gfx.Handle]bool{}
	for slot := 0; slot < 3; slot++ {
		set := pass.FrameSet(slot)
		c.Assert(set, qt.Not(qt.Equals), gfx.NullHandle)
		sets[set] = true
		uniforms[pass.FrameUniform(slot).Handle] = true
		c.Assert(dev.DescriptorSet(set).Bindings[rt.BindingUniforms].Buffer, qt.Equals, pass.FrameUniform(slot).Handle)
	}
	c.Assert(sets, qt.HasLen, 3)
	c.Assert(uniforms, qt.HasLen, 3)

	// only the executed slot has its uniforms written
	c.Assert(dev.BufferContents(pass.FrameUniform(2).Handle), qt.DeepEquals, pass.Camera().Uniform())
	c.Assert(dev.BufferContents(pass.FrameUniform(0).Handle), qt.DeepEquals, make([]byte, rt.UniformSize))
}

func TestDescriptorPoolExhausted(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	cmd := &gfxtest.CommandBuffer{}
	cfg := rt.DefaultConfig()
	cfg.PoolMultiplier = 1
	pass := newPass(c, dev, cfg)
	defer pass.Release()

	_, err := pass.Execute(cmd, target(1, 32, 32), 0)
	c.Assert(err, qt.IsNil)

	_, err = pass.Execute(cmd, target(2, 32, 32), 1)
	c.Assert(errors.Cause(err), qt.Equals, rt.ErrDescriptorPoolExhausted)
	c.Assert(pass.State(), qt.Equals, rt.Uninitialized)
}

func TestRebuildEveryFrameFitsDefaultPool(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	cmd := &gfxtest.CommandBuffer{}
	pass := newPass(c, dev, rt.DefaultConfig())

	for frame := 0; frame < 10; frame++ {
		_, err := pass.Execute(cmd, target(gfx.Handle(frame+1), 32, 32), frame%2)
		c.Assert(err, qt.IsNil, qt.Commentf("frame %d", frame))
		c.Assert(dev.Live(gfxtest.KindSet) <= 6, qt.IsTrue)
	}
	c.Assert(pass.Builds(), qt.Equals, 10)
	pass.Release()
	c.Assert(dev.LiveTotal(), qt.Equals, 0)
}

func TestDeferredRelease(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	cmd := &gfxtest.CommandBuffer{}
	pass := newPass(c, dev, rt.DefaultConfig())
	defer pass.Release()

	tgt := target(1, 32, 32)
	_, err := pass.Execute(cmd, tgt, 0)
	c.Assert(err, qt.IsNil)
	// uniforms, two staging, two scratch, two storage, instances, table
	c.Assert(dev.Live(gfxtest.KindBuffer), qt.Equals, 10)
	c.Assert(pass.Pending(), qt.Equals, 5)

	_, err = pass.Execute(cmd, tgt, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(dev.Live(gfxtest.KindBuffer), qt.Equals, 10)

	_, err = pass.Execute(cmd, tgt, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(dev.Live(gfxtest.KindBuffer), qt.Equals, 5)
	c.Assert(pass.Pending(), qt.Equals, 0)

	// a rebuild keeps the old scene alive while it may be in flight
	_, err = pass.Execute(cmd, target(2, 32, 32), 1)
	c.Assert(err, qt.IsNil)
	c.Assert(pass.Pending(), qt.Equals, 10)
	c.Assert(dev.Live(gfxtest.KindAccel), qt.Equals, 4)
	c.Assert(dev.Live(gfxtest.KindPipeline), qt.Equals, 2)
}

func TestMissingShader(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	cmd := &gfxtest.CommandBuffer{}
	shaders := testShaders()
	delete(shaders, rt.DefaultConfig().Shaders.Miss)

	pass, err := rt.New(dev, shaders, model.Triangle(), rt.DefaultConfig(), rt.WithLogger(quietLogger()))
	c.Assert(err, qt.IsNil)
	c.Assert(pass.Init(), qt.IsNil)

	_, err = pass.Execute(cmd, target(1, 32, 32), 0)
	c.Assert(errors.Cause(err), qt.Equals, rt.ErrShaderNotFound)
	c.Assert(err, qt.ErrorMatches, ".*miss.rmiss.spv.*")
	c.Assert(pass.State(), qt.Equals, rt.Uninitialized)
	c.Assert(dev.Live(gfxtest.KindShader), qt.Equals, 0)

	pass.Release()
	c.Assert(dev.LiveTotal(), qt.Equals, 0)
}

func TestUnsupportedDevice(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	dev.Props.MaxRayRecursionDepth = 0
	cmd := &gfxtest.CommandBuffer{}
	pass := newPass(c, dev, rt.DefaultConfig())
	defer pass.Release()

	_, err := pass.Execute(cmd, target(1, 32, 32), 0)
	c.Assert(errors.Cause(err), qt.Equals, rt.ErrUnsupportedDevice)
}

func TestReleaseAndInitAgain(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	cmd := &gfxtest.CommandBuffer{}
	pass := newPass(c, dev, rt.DefaultConfig())

	_, err := pass.Execute(cmd, target(1, 32, 32), 0)
	c.Assert(err, qt.IsNil)
	pass.Release()
	pass.Release()
	c.Assert(dev.LiveTotal(), qt.Equals, 0)

	c.Assert(pass.Init(), qt.IsNil)
	c.Assert(pass.NeedsRebuild(1), qt.IsTrue)
	_, err = pass.Execute(cmd, target(1, 32, 32), 0)
	c.Assert(err, qt.IsNil)
	c.Assert(pass.Builds(), qt.Equals, 2)
	pass.Release()
	c.Assert(dev.LiveTotal(), qt.Equals, 0)
}

func TestExecuteMixedScene(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	cmd := &gfxtest.CommandBuffer{}
	pass, err := rt.New(dev, testShaders(), mixedScene(), rt.DefaultConfig(), rt.WithLogger(quietLogger()))
	c.Assert(err, qt.IsNil)
	c.Assert(pass.Init(), qt.IsNil)

	_, err = pass.Execute(cmd, target(1, 64, 64), 0)
	c.Assert(err, qt.IsNil)
	c.Assert(pass.Instances(), qt.Equals, uint32(3))

	builds := cmd.Filter(gfxtest.CmdBuild)
	c.Assert(builds, qt.HasLen, 2)
	c.Assert(builds[0].Build.PrimitiveCounts, qt.DeepEquals, []uint32{1, 2})
	c.Assert(builds[1].Build.PrimitiveCounts, qt.DeepEquals, []uint32{3})
	c.Assert(cmd.Filter(gfxtest.CmdTraceRays), qt.HasLen, 1)

	pass.Release()
	c.Assert(dev.LiveTotal(), qt.Equals, 0)
}
