// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package rt implements a hardware ray tracing pass. It builds the
// acceleration structures, pipeline and shader binding table for a scene
// and records a trace into an off-screen storage image once per frame.
package rt

import (
	"github.com/devblok/korurt/assets"
	"github.com/devblok/korurt/gfx"
	"github.com/devblok/korurt/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// State of the pass.
type State int

// Pass states.
const (
	Uninitialized State = iota
	SteadyState
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case SteadyState:
		return "steady"
	}
	return "unknown"
}

// Target is the host owned image the pass traces into.
type Target struct {
	Image  gfx.Handle
	View   gfx.Handle
	Layout gfx.ImageLayout
	Width  uint32
	Height uint32
}

// Option configures a Raytracing pass.
type Option func(*Raytracing)

// WithLogger sets the logger, logrus.StandardLogger() is used otherwise.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Raytracing) {
		r.log = log
	}
}

type frameSlot struct {
	uniform *Buffer
	set     gfx.Handle
}

// Raytracing is the ray tracing pass. It is not safe for concurrent use, the
// host drives it from its rendering thread.
type Raytracing struct {
	dev     gfx.Device
	shaders assets.Source
	scene   model.Scene
	cfg     Config
	log     logrus.FieldLogger

	alloc    *Allocator
	pool     *DescriptorPool
	releases *releaseQueue

	initialised bool
	state       State
	view        gfx.Handle
	serial      uint64
	builds      int

	slots    []frameSlot
	sets     *DescriptorSets
	blas     *BottomLevel
	tlas     *TopLevel
	pipeline *Pipeline
	sbt      *ShaderBindingTable
	camera   Camera
}

// New creates a pass tracing scene on dev. Init must be called before the
// first Execute.
func New(dev gfx.Device, shaders assets.Source, scene model.Scene, cfg Config, opts ...Option) (*Raytracing, error) {
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	r := &Raytracing{
		dev:      dev,
		shaders:  shaders,
		scene:    scene,
		cfg:      cfg,
		log:      logrus.StandardLogger(),
		alloc:    NewAllocator(dev),
		releases: newReleaseQueue(cfg.FramesInFlight),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Init creates the descriptor pool and the per slot uniform buffers.
func (r *Raytracing) Init() error {
	if r.initialised {
		return ErrAlreadyInitialised
	}

	props := r.dev.RayTracingProperties()
	r.log.WithFields(logrus.Fields{
		"handleSize":      props.ShaderGroupHandleSize,
		"handleAlignment": props.ShaderGroupHandleAlignment,
		"baseAlignment":   props.ShaderGroupBaseAlignment,
		"maxRecursion":    props.MaxRayRecursionDepth,
	}).Debug("ray tracing properties")

	pool, err := NewDescriptorPool(r.dev, r.cfg.FramesInFlight, r.cfg.PoolMultiplier, r.log)
	if err != nil {
		return err
	}

	slots := make([]frameSlot, r.cfg.FramesInFlight)
	for i := range slots {
		uniform, err := r.alloc.CreateBuffer(gfx.BufferUsageUniformBuffer, UniformSize, true)
		if err != nil {
			for _, s := range slots[:i] {
				s.uniform.Release()
			}
			pool.Release()
			return errors.Wrapf(err, "uniform buffer for slot %d", i)
		}
		slots[i].uniform = uniform
	}

	r.pool = pool
	r.slots = slots
	r.state = Uninitialized
	r.view = gfx.NullHandle
	r.initialised = true
	r.log.WithField("slots", len(slots)).Info("ray tracing pass initialised")
	return nil
}

// NeedsRebuild reports whether the next Execute with view rebuilds the scene.
func (r *Raytracing) NeedsRebuild(view gfx.Handle) bool {
	return r.state == Uninitialized || view != r.view
}

// Execute records the ray trace into cmd for the given frame slot and
// returns the layout the target image is left in.
func (r *Raytracing) Execute(cmd gfx.CommandBuffer, target Target, slot int) (gfx.ImageLayout, error) {
	if !r.initialised {
		return target.Layout, ErrNotInitialised
	}
	if slot < 0 || slot >= len(r.slots) {
		return target.Layout, errors.Wrapf(ErrInvalidFrameSlot, "slot %d of %d", slot, len(r.slots))
	}
	if target.Width == 0 || target.Height == 0 {
		return target.Layout, errors.Wrapf(ErrInvalidExtent, "%dx%d", target.Width, target.Height)
	}

	r.serial++
	if n := r.releases.collect(r.serial); n > 0 {
		r.log.WithField("count", n).Debug("released retired resources")
	}

	if r.NeedsRebuild(target.View) {
		if err := r.rebuild(cmd, target); err != nil {
			return target.Layout, err
		}
	}

	cmd.PipelineBarrier(gfx.PipelineStageFragmentShader, gfx.PipelineStageRayTracingShader, nil, []gfx.ImageBarrier{{
		Image:     target.Image,
		OldLayout: target.Layout,
		NewLayout: gfx.ImageLayoutGeneral,
		SrcAccess: gfx.AccessShaderRead,
		DstAccess: gfx.AccessShaderWrite,
	}})

	if err := r.alloc.Write(r.slots[slot].uniform, r.camera.Uniform()); err != nil {
		return gfx.ImageLayoutGeneral, errors.Wrapf(err, "uniforms of slot %d", slot)
	}

	raygen, miss, hit, callable := r.sbt.Regions()
	cmd.BindRayTracingPipeline(r.pipeline.Handle)
	cmd.BindRayTracingDescriptorSet(r.pipeline.Layout, r.slots[slot].set)
	cmd.TraceRays(raygen, miss, hit, callable, target.Width, target.Height, 1)

	cmd.PipelineBarrier(gfx.PipelineStageRayTracingShader, gfx.PipelineStageFragmentShader, nil, []gfx.ImageBarrier{{
		Image:     target.Image,
		OldLayout: gfx.ImageLayoutGeneral,
		NewLayout: gfx.ImageLayoutShaderReadOnlyOptimal,
		SrcAccess: gfx.AccessShaderWrite,
		DstAccess: gfx.AccessShaderRead,
	}})

	return gfx.ImageLayoutShaderReadOnlyOptimal, nil
}

func (r *Raytracing) rebuild(cmd gfx.CommandBuffer, target Target) error {
	r.state = Uninitialized
	r.retireScene()

	log := r.log.WithFields(logrus.Fields{
		"width":  target.Width,
		"height": target.Height,
		"view":   target.View,
	})
	log.Info("building ray tracing scene")

	builder := NewBuilder(r.dev, r.alloc, r.log)
	defer func() {
		r.releases.retire(r.serial, builder.Transient()...)
	}()

	blas, err := builder.BuildBottomLevel(cmd, r.scene.Geometries...)
	if err != nil {
		return err
	}
	r.blas = blas

	RecordBuildBarrier(cmd)

	tlas, err := builder.BuildTopLevel(cmd, blas, r.scene.Instances)
	if err != nil {
		return err
	}
	r.tlas = tlas

	pipeline, err := BuildPipeline(r.dev, r.shaders, r.cfg.Shaders, r.cfg.EntryPoint)
	if err != nil {
		return err
	}
	r.pipeline = pipeline

	sbt, err := BuildShaderBindingTable(r.dev, r.alloc, pipeline)
	if err != nil {
		return err
	}
	r.sbt = sbt

	sets, err := r.pool.Allocate(pipeline.SetLayout, len(r.slots))
	if err != nil {
		return err
	}
	r.sets = sets

	var writes []gfx.DescriptorWrite
	for i := range r.slots {
		r.slots[i].set = sets.Sets[i]
		writes = append(writes, FrameWrites(sets.Sets[i], tlas, target.View, r.slots[i].uniform)...)
	}
	r.dev.UpdateDescriptorSets(writes)

	r.camera = NewCamera(r.cfg, target.Width, target.Height)
	r.view = target.View
	r.builds++
	r.state = SteadyState

	log.WithFields(logrus.Fields{
		"builds":     r.builds,
		"primitives": blas.Primitives,
		"instances":  tlas.Instances,
		"sbtStride":  sbt.Layout.Stride,
	}).Debug("ray tracing scene ready")
	return nil
}

// retireScene hands everything a rebuild replaces to the release queue.
func (r *Raytracing) retireScene() {
	var items []gfx.Releasable
	if r.sets != nil {
		items = append(items, r.sets)
	}
	if r.sbt != nil {
		items = append(items, r.sbt)
	}
	if r.pipeline != nil {
		items = append(items, r.pipeline)
	}
	if r.tlas != nil {
		items = append(items, r.tlas)
	}
	if r.blas != nil {
		items = append(items, r.blas)
	}
	r.releases.retire(r.serial, items...)
	r.sets, r.sbt, r.pipeline, r.tlas, r.blas = nil, nil, nil, nil, nil
	for i := range r.slots {
		r.slots[i].set = gfx.NullHandle
	}
}

// Release destroys everything the pass created. The device must be idle.
// Init may be called again afterwards.
func (r *Raytracing) Release() {
	if !r.initialised {
		return
	}
	r.retireScene()
	r.releases.flush()
	for _, s := range r.slots {
		s.uniform.Release()
	}
	r.slots = nil
	r.pool.Release()
	r.pool = nil
	r.initialised = false
	r.state = Uninitialized
	r.view = gfx.NullHandle
	r.log.Info("ray tracing pass released")
}

// State returns the current state.
func (r *Raytracing) State() State {
	return r.state
}

// Builds counts completed scene builds.
func (r *Raytracing) Builds() int {
	return r.builds
}

// Pending counts retired resources waiting for release.
func (r *Raytracing) Pending() int {
	return r.releases.len()
}

// Instances is the instance count of the current top level structure.
func (r *Raytracing) Instances() uint32 {
	if r.tlas == nil {
		return 0
	}
	return r.tlas.Instances
}

// FrameSet returns the descriptor set bound for slot.
func (r *Raytracing) FrameSet(slot int) gfx.Handle {
	return r.slots[slot].set
}

// FrameUniform returns the uniform buffer of slot.
func (r *Raytracing) FrameUniform(slot int) *Buffer {
	return r.slots[slot].uniform
}

// ShaderBindingTable returns the current table, nil before the first build.
func (r *Raytracing) ShaderBindingTable() *ShaderBindingTable {
	return r.sbt
}

// Camera returns the camera of the last build.
func (r *Raytracing) Camera() Camera {
	return r.camera
}
