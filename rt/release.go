// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rt

import "github.com/devblok/korurt/gfx"

type retired struct {
	serial uint64
	item   gfx.Releasable
}

// releaseQueue holds objects the device may still read until the frame that
// retired them has left flight.
type releaseQueue struct {
	latency uint64
	pending []retired
}

func newReleaseQueue(framesInFlight int) *releaseQueue {
	return &releaseQueue{latency: uint64(framesInFlight)}
}

// retire schedules items for release once serial+latency is collected.
func (q *releaseQueue) retire(serial uint64, items ...gfx.Releasable) {
	for _, item := range items {
		if item == nil {
			continue
		}
		q.pending = append(q.pending, retired{serial: serial, item: item})
	}
}

// collect releases everything retired at least latency frames before serial.
func (q *releaseQueue) collect(serial uint64) int {
	var n int
	keep := q.pending[:0]
	for _, r := range q.pending {
		if r.serial+q.latency <= serial {
			r.item.Release()
			n++
			continue
		}
		keep = append(keep, r)
	}
	for i := len(keep); i < len(q.pending); i++ {
		q.pending[i] = retired{}
	}
	q.pending = keep
	return n
}

// flush releases everything regardless of age. The device must be idle.
func (q *releaseQueue) flush() int {
	n := len(q.pending)
	for _, r := range q.pending {
		r.item.Release()
	}
	q.pending = nil
	return n
}

func (q *releaseQueue) len() int {
	return len(q.pending)
}
