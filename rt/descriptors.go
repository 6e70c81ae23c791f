// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rt

import (
	"github.com/devblok/korurt/gfx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NewDescriptorPool creates a pool for slots*multiplier sets of the pass
// layout. Sets can be freed back to it individually. Failed frees are
// reported to log.
func NewDescriptorPool(dev gfx.Descriptors, slots, multiplier int, log logrus.FieldLogger) (*DescriptorPool, error) {
	capacity := slots * multiplier
	sizes := []gfx.DescriptorPoolSize{
		{Type: gfx.DescriptorTypeAccelerationStructure, Count: uint32(capacity)},
		{Type: gfx.DescriptorTypeStorageImage, Count: uint32(capacity)},
		{Type: gfx.DescriptorTypeUniformBuffer, Count: uint32(capacity)},
	}
	handle, err := dev.CreateDescriptorPool(uint32(capacity), sizes)
	if err != nil {
		return nil, errors.Wrap(err, "CreateDescriptorPool()")
	}
	return &DescriptorPool{
		dev:      dev,
		log:      log,
		handle:   handle,
		capacity: capacity,
	}, nil
}

// DescriptorPool tracks how many sets are allocated from it so running out
// is reported before the device is asked.
type DescriptorPool struct {
	dev      gfx.Descriptors
	log      logrus.FieldLogger
	handle   gfx.Handle
	capacity int
	live     int
}

// Capacity is the number of sets the pool can hold.
func (p *DescriptorPool) Capacity() int {
	return p.capacity
}

// Live is the number of sets currently allocated.
func (p *DescriptorPool) Live() int {
	return p.live
}

// Allocate allocates count sets of layout.
func (p *DescriptorPool) Allocate(layout gfx.Handle, count int) (*DescriptorSets, error) {
	if p.handle == gfx.NullHandle {
		return nil, errors.New("descriptor pool already released")
	}
	if p.live+count > p.capacity {
		return nil, errors.Wrapf(ErrDescriptorPoolExhausted, "%d live, %d requested, capacity %d", p.live, count, p.capacity)
	}
	sets, err := p.dev.AllocateDescriptorSets(p.handle, layout, count)
	if err != nil {
		return nil, errors.Wrap(err, "AllocateDescriptorSets()")
	}
	p.live += len(sets)
	return &DescriptorSets{pool: p, Sets: sets}, nil
}

func (p *DescriptorPool) free(sets []gfx.Handle) error {
	if p.handle == gfx.NullHandle {
		// destroying the pool freed them already
		return nil
	}
	if err := p.dev.FreeDescriptorSets(p.handle, sets); err != nil {
		return errors.Wrap(err, "FreeDescriptorSets()")
	}
	p.live -= len(sets)
	return nil
}

// Release destroys the pool and every set still allocated from it.
func (p *DescriptorPool) Release() {
	if p == nil || p.handle == gfx.NullHandle {
		return
	}
	p.dev.DestroyDescriptorPool(p.handle)
	p.handle = gfx.NullHandle
	p.live = 0
}

// DescriptorSets is a batch of sets allocated together.
type DescriptorSets struct {
	pool *DescriptorPool
	Sets []gfx.Handle
}

// Release frees the sets back to their pool. A failed free is logged and
// the sets are kept so a later Release can try again.
func (s *DescriptorSets) Release() {
	if s == nil || len(s.Sets) == 0 {
		return
	}
	if err := s.pool.free(s.Sets); err != nil {
		s.pool.log.WithError(err).WithFields(logrus.Fields{
			"sets": len(s.Sets),
			"live": s.pool.live,
		}).Error("descriptor sets not returned to pool")
		return
	}
	s.Sets = nil
}

// FrameWrites returns the writes binding the top level structure, the output
// view in general layout and the whole uniform buffer to set.
func FrameWrites(set gfx.Handle, tlas *TopLevel, view gfx.Handle, uniform *Buffer) []gfx.DescriptorWrite {
	return []gfx.DescriptorWrite{
		{
			Set:                   set,
			Binding:               BindingAccelerationStructure,
			Type:                  gfx.DescriptorTypeAccelerationStructure,
			AccelerationStructure: tlas.Structure,
		},
		{
			Set:         set,
			Binding:     BindingOutputImage,
			Type:        gfx.DescriptorTypeStorageImage,
			ImageView:   view,
			ImageLayout: gfx.ImageLayoutGeneral,
		},
		{
			Set:     set,
			Binding: BindingUniforms,
			Type:    gfx.DescriptorTypeUniformBuffer,
			Buffer:  uniform.Handle,
			Range:   gfx.WholeSize,
		},
	}
}
