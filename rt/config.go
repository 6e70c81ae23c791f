// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rt

import (
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// ShaderNames are the asset names of the three pipeline shaders.
type ShaderNames struct {
	Raygen     string
	Miss       string
	ClosestHit string
}

// Config configures the ray tracing pass.
type Config struct {
	// FramesInFlight is the number of frame slots the host cycles through.
	FramesInFlight int

	// PoolMultiplier scales the descriptor pool, which holds
	// FramesInFlight*PoolMultiplier sets.
	PoolMultiplier int

	Shaders    ShaderNames
	EntryPoint string

	// FieldOfView is the vertical field of view in degrees.
	FieldOfView float32
	Near, Far   float32

	// ViewTranslation is the translation of the view matrix, which moves
	// the world. The camera sits at its negation.
	ViewTranslation glm.Vec3
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		FramesInFlight: 2,
		PoolMultiplier: 4,
		Shaders: ShaderNames{
			Raygen:     "raygen.rgen.spv",
			Miss:       "miss.rmiss.spv",
			ClosestHit: "closesthit.rchit.spv",
		},
		EntryPoint:      "main",
		FieldOfView:     60,
		Near:            0.1,
		Far:             512,
		ViewTranslation: glm.Vec3{0, 0, -5},
	}
}

func (c Config) validate() error {
	switch {
	case c.FramesInFlight < 1:
		return errors.Errorf("frames in flight must be at least 1, got %d", c.FramesInFlight)
	case c.PoolMultiplier < 1:
		return errors.Errorf("pool multiplier must be at least 1, got %d", c.PoolMultiplier)
	case c.Shaders.Raygen == "" || c.Shaders.Miss == "" || c.Shaders.ClosestHit == "":
		return errors.New("all three shader names must be set")
	case c.EntryPoint == "":
		return errors.New("shader entry point must be set")
	case c.FieldOfView <= 0 || c.FieldOfView >= 180:
		return errors.Errorf("field of view %v out of range", c.FieldOfView)
	case c.Near <= 0 || c.Far <= c.Near:
		return errors.Errorf("invalid clip planes %v, %v", c.Near, c.Far)
	}
	return nil
}
