// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import "github.com/devblok/korurt/gfx"

// Kind names a recorded command.
type Kind string

// Recorded command kinds.
const (
	CmdBarrier      Kind = "barrier"
	CmdBuild        Kind = "build"
	CmdBindPipeline Kind = "bind-pipeline"
	CmdBindSet      Kind = "bind-set"
	CmdTraceRays    Kind = "trace-rays"
)

// Command is a single recorded command. Only the fields relevant
// to Kind are set.
type Command struct {
	Kind Kind

	SrcStage, DstStage gfx.PipelineStage
	Memory             []gfx.MemoryBarrier
	Images             []gfx.ImageBarrier

	Build gfx.BuildInfo

	Pipeline gfx.Handle
	Layout   gfx.Handle
	Set      gfx.Handle

	Raygen, Miss, Hit, Callable gfx.StridedRegion
	Width, Height, Depth        uint32
}

// CommandBuffer is a fake gfx.CommandBuffer that appends every command
// to Commands.
type CommandBuffer struct {
	Commands []Command
}

// PipelineBarrier implements gfx.CommandBuffer.
func (c *CommandBuffer) PipelineBarrier(src, dst gfx.PipelineStage, memory []gfx.MemoryBarrier, images []gfx.ImageBarrier) {
	c.Commands = append(c.Commands, Command{
		Kind:     CmdBarrier,
		SrcStage: src,
		DstStage: dst,
		Memory:   append([]gfx.MemoryBarrier(nil), memory...),
		Images:   append([]gfx.ImageBarrier(nil), images...),
	})
}

// BuildAccelerationStructure implements gfx.CommandBuffer.
func (c *CommandBuffer) BuildAccelerationStructure(info gfx.BuildInfo) {
	c.Commands = append(c.Commands, Command{Kind: CmdBuild, Build: info})
}

// BindRayTracingPipeline implements gfx.CommandBuffer.
func (c *CommandBuffer) BindRayTracingPipeline(p gfx.Handle) {
	c.Commands = append(c.Commands, Command{Kind: CmdBindPipeline, Pipeline: p})
}

// BindRayTracingDescriptorSet implements gfx.CommandBuffer.
func (c *CommandBuffer) BindRayTracingDescriptorSet(layout, set gfx.Handle) {
	c.Commands = append(c.Commands, Command{Kind: CmdBindSet, Layout: layout, Set: set})
}

// TraceRays implements gfx.CommandBuffer.
func (c *CommandBuffer) TraceRays(raygen, miss, hit, callable gfx.StridedRegion, width, height, depth uint32) {
	c.Commands = append(c.Commands, Command{
		Kind:     CmdTraceRays,
		Raygen:   raygen,
		Miss:     miss,
		Hit:      hit,
		Callable: callable,
		Width:    width,
		Height:   height,
		Depth:    depth,
	})
}

// Kinds lists the kinds of all recorded commands in order.
func (c *CommandBuffer) Kinds() []Kind {
	kinds := make([]Kind, len(c.Commands))
	for i, cmd := range c.Commands {
		kinds[i] = cmd.Kind
	}
	return kinds
}

// Filter returns recorded commands of one kind.
func (c *CommandBuffer) Filter(kind Kind) []Command {
	var out []Command
	for _, cmd := range c.Commands {
		if cmd.Kind == kind {
			out = append(out, cmd)
		}
	}
	return out
}

// Reset drops everything recorded so far.
func (c *CommandBuffer) Reset() {
	c.Commands = c.Commands[:0]
}
