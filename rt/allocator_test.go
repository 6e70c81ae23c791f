// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rt_test

import (
	"testing"

	"github.com/devblok/korurt/gfx"
	"github.com/devblok/korurt/gfx/gfxtest"
	"github.com/devblok/korurt/rt"
	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
)

func TestFindMemoryType(t *testing.T) {
	types := []gfx.MemoryType{
		{Properties: gfx.MemoryPropertyHostVisible},
		{Properties: gfx.MemoryPropertyDeviceLocal},
		{Properties: gfx.MemoryPropertyHostVisible | gfx.MemoryPropertyHostCoherent},
		{Properties: gfx.MemoryPropertyDeviceLocal | gfx.MemoryPropertyHostVisible | gfx.MemoryPropertyHostCoherent},
	}
	tests := []struct {
		name        string
		filter      uint32
		hostVisible bool
		want        uint32
		err         error
	}{
		{"first device local", 0xf, false, 1, nil},
		{"device local filtered", 0xd, false, 3, nil},
		{"host needs coherent", 0xf, true, 2, nil},
		{"host filtered to combined", 0x9, true, 3, nil},
		{"no device local allowed", 0x5, false, 0, rt.ErrNoMemoryType},
		{"no coherent allowed", 0x3, true, 0, rt.ErrNoMemoryType},
		{"empty filter", 0, false, 0, rt.ErrNoMemoryType},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := qt.New(t)
			idx, err := rt.FindMemoryType(types, test.filter, test.hostVisible)
			if test.err != nil {
				c.Assert(errors.Cause(err), qt.Equals, test.err)
				return
			}
			c.Assert(err, qt.IsNil)
			c.Assert(idx, qt.Equals, test.want)
		})
	}
}

func TestCreateBufferRequestsDeviceAddress(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := rt.NewAllocator(dev)

	buf, err := alloc.CreateBuffer(gfx.BufferUsageAccelerationStructureStorage, 100, false)
	c.Assert(err, qt.IsNil)
	c.Assert(dev.BufferUsage(buf.Handle)&gfx.BufferUsageShaderDeviceAddress, qt.Not(qt.Equals), gfx.BufferUsage(0))
	c.Assert(buf.Address, qt.Not(qt.Equals), gfx.DeviceAddress(0))
	c.Assert(alloc.DeviceAddress(buf), qt.Equals, buf.Address)

	alloc.Free(buf)
	alloc.Free(buf)
	c.Assert(dev.Live(gfxtest.KindBuffer), qt.Equals, 0)
	c.Assert(dev.Live(gfxtest.KindMemory), qt.Equals, 0)
}

func TestCreateBufferNoMemoryType(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	dev.Types = []gfx.MemoryType{{Properties: gfx.MemoryPropertyDeviceLocal}}
	alloc := rt.NewAllocator(dev)

	_, err := alloc.CreateBuffer(gfx.BufferUsageUniformBuffer, 128, true)
	c.Assert(errors.Cause(err), qt.Equals, rt.ErrNoMemoryType)
	c.Assert(errors.Cause(err), qt.Equals, gfx.ErrNoMemoryType)
	c.Assert(dev.LiveTotal(), qt.Equals, 0)
}

func TestCreateBufferZeroSize(t *testing.T) {
	_, err := rt.NewAllocator(gfxtest.NewDevice()).CreateBuffer(gfx.BufferUsageUniformBuffer, 0, true)
	qt.Assert(t, err, qt.Not(qt.IsNil))
}

func TestWrite(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := rt.NewAllocator(dev)

	host, err := alloc.CreateBuffer(gfx.BufferUsageUniformBuffer, 8, true)
	c.Assert(err, qt.IsNil)
	c.Assert(alloc.Write(host, []byte{1, 2, 3, 4, 5, 6, 7, 8}), qt.IsNil)
	c.Assert(dev.BufferContents(host.Handle), qt.DeepEquals, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	c.Assert(alloc.Write(host, []byte{9}), qt.IsNil)
	c.Assert(dev.BufferContents(host.Handle)[:2], qt.DeepEquals, []byte{9, 2})

	err = alloc.Write(host, make([]byte, 9))
	c.Assert(errors.Cause(err), qt.Equals, rt.ErrBufferOverflow)

	local, err := alloc.CreateBuffer(gfx.BufferUsageStorageBuffer, 8, false)
	c.Assert(err, qt.IsNil)
	c.Assert(alloc.Write(local, []byte{1}), qt.Equals, rt.ErrNotHostVisible)
}
