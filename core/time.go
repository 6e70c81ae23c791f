// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"context"
	"time"
)

// NewTime creates a new time service
func NewTime(cfg TimeConfiguration) *Time {
	t := &Time{fps: cfg.FramesPerSecond}
	if cfg.FramesPerSecond > 0 {
		t.fpsTicker = time.NewTicker(time.Second / time.Duration(cfg.FramesPerSecond))
	}
	return t
}

// Time paces the frame loop.
type Time struct {
	fps       int
	fpsTicker *time.Ticker
	frames    uint64
}

// Fps gets the set frames per second
func (t *Time) Fps() int {
	return t.fps
}

// Frames counts the frames handed out by Next.
func (t *Time) Frames() uint64 {
	return t.frames
}

// Next blocks until the next frame may start. An unlimited rate never
// blocks.
func (t *Time) Next(ctx context.Context) error {
	if t.fpsTicker != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.fpsTicker.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	t.frames++
	return nil
}

// Stop releases the ticker.
func (t *Time) Stop() {
	if t.fpsTicker != nil {
		t.fpsTicker.Stop()
	}
}
