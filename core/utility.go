// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"image"
	"unsafe"
)

// SliceUint32 reslices bytes into a uint32, that is used
// to sumbit vulkan shaders for processing. Trailing bytes that do not
// fill a whole word are dropped.
func SliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// SafeString null terminates s for the vulkan bindings.
func SafeString(s string) string {
	return s + "\x00"
}

// SafeStrings null terminates every string of sgs.
func SafeStrings(sgs []string) []string {
	safe := make([]string, 0, len(sgs))
	for _, s := range sgs {
		safe = append(safe, SafeString(s))
	}
	return safe
}

// CopyPixels copies rows of RGBA8 pixels laid out rowPitch bytes apart into
// dst. A rowPitch smaller than a tightly packed row is treated as tightly
// packed.
func CopyPixels(dst *image.RGBA, src []byte, rowPitch int) {
	bounds := dst.Bounds()
	row := bounds.Dx() * 4
	if rowPitch < row {
		rowPitch = row
	}
	for y := 0; y < bounds.Dy(); y++ {
		start := y * rowPitch
		if start+row > len(src) {
			return
		}
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+row], src[start:start+row])
	}
}
