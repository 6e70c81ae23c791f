// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rt_test

import (
	"io"

	"github.com/devblok/korurt/assets"
	"github.com/devblok/korurt/gfx/gfxtest"
	"github.com/devblok/korurt/model"
	"github.com/devblok/korurt/rt"
	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/sirupsen/logrus"
)

type shaderMap map[string][]byte

func (m shaderMap) Bytes(name string) ([]byte, error) {
	if code, ok := m[name]; ok {
		return code, nil
	}
	return nil, assets.ErrNotFound
}

func testShaders() shaderMap {
	names := rt.DefaultConfig().Shaders
	return shaderMap{
		names.Raygen:     {0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0},
		names.Miss:       {0x03, 0x02, 0x23, 0x07, 2, 0, 0, 0},
		names.ClosestHit: {0x03, 0x02, 0x23, 0x07, 3, 0, 0, 0},
	}
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newPass(c *qt.C, dev *gfxtest.Device, cfg rt.Config) *rt.Raytracing {
	pass, err := rt.New(dev, testShaders(), model.Triangle(), cfg, rt.WithLogger(quietLogger()))
	c.Assert(err, qt.IsNil)
	c.Assert(pass.Init(), qt.IsNil)
	return pass
}

// mixedScene is a triangle and a quad under three instances.
func mixedScene() model.Scene {
	scene := model.Triangle()
	scene.Geometries = append(scene.Geometries, model.Geometry{
		Positions: []glm.Vec3{
			{-1, -1, 0},
			{1, -1, 0},
			{1, 1, 0},
			{-1, 1, 0},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	})
	for i := 1; i <= 2; i++ {
		scene.Instances = append(scene.Instances, model.Instance{
			Transform:   model.TransformFrom(glm.Translate3D(float32(i)*3, 0, 0)),
			CustomIndex: uint32(i),
			Mask:        model.MaskAll,
			Flags:       model.InstanceCullDisable,
		})
	}
	return scene
}
