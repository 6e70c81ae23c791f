// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rt

import (
	"testing"

	"github.com/devblok/korurt/gfx"
	qt "github.com/frankban/quicktest"
)

type counter struct {
	released int
}

func (c *counter) Release() {
	c.released++
}

func TestReleaseQueueLatency(t *testing.T) {
	c := qt.New(t)
	q := newReleaseQueue(2)
	a, b := &counter{}, &counter{}

	q.retire(1, a)
	q.retire(2, b)
	c.Assert(q.len(), qt.Equals, 2)

	c.Assert(q.collect(2), qt.Equals, 0)
	c.Assert(q.collect(3), qt.Equals, 1)
	c.Assert(a.released, qt.Equals, 1)
	c.Assert(b.released, qt.Equals, 0)

	c.Assert(q.collect(4), qt.Equals, 1)
	c.Assert(b.released, qt.Equals, 1)
	c.Assert(q.len(), qt.Equals, 0)

	c.Assert(q.collect(10), qt.Equals, 0)
	c.Assert(a.released, qt.Equals, 1)
}

func TestReleaseQueueSkipsNil(t *testing.T) {
	c := qt.New(t)
	q := newReleaseQueue(1)
	var none gfx.Releasable
	q.retire(0, none, &counter{})
	c.Assert(q.len(), qt.Equals, 1)
}

func TestReleaseQueueFlush(t *testing.T) {
	c := qt.New(t)
	q := newReleaseQueue(3)
	items := []*counter{{}, {}, {}}
	for i, item := range items {
		q.retire(uint64(i), item)
	}
	c.Assert(q.flush(), qt.Equals, 3)
	c.Assert(q.len(), qt.Equals, 0)
	for _, item := range items {
		c.Assert(item.released, qt.Equals, 1)
	}
}
