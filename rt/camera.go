// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rt

import (
	"encoding/binary"
	"math"

	glm "github.com/go-gl/mathgl/mgl32"
)

// UniformSize is the size of the camera uniform block.
const UniformSize = 2 * 16 * 4

// Camera holds the projection and view of the pass.
type Camera struct {
	Projection glm.Mat4
	View       glm.Mat4
}

// NewCamera builds a perspective camera for a width by height target.
func NewCamera(cfg Config, width, height uint32) Camera {
	return Camera{
		Projection: glm.Perspective(glm.DegToRad(cfg.FieldOfView), float32(width)/float32(height), cfg.Near, cfg.Far),
		View:       glm.Translate3D(cfg.ViewTranslation.X(), cfg.ViewTranslation.Y(), cfg.ViewTranslation.Z()),
	}
}

// Uniform returns the inverse projection followed by the inverse view.
// The bytes are the std140 column major form a GLSL mat4 reads, 16 little
// endian floats per matrix, not row major.
func (c Camera) Uniform() []byte {
	out := make([]byte, UniformSize)
	putMat4(out[:64], c.Projection.Inv())
	putMat4(out[64:], c.View.Inv())
	return out
}

func putMat4(dst []byte, m glm.Mat4) {
	for i, v := range m {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}
