// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/devblok/korurt/core"
	qt "github.com/frankban/quicktest"
	"github.com/gobuffalo/envy"
)

func clearEnv() {
	for _, k := range []string{
		core.EnvWidth, core.EnvHeight, core.EnvFrames, core.EnvFPS, core.EnvFramesInFlight,
		core.EnvShaderDir, core.EnvShaderArchive, core.EnvDebug, core.EnvLogLevel,
	} {
		envy.Set(k, "")
	}
}

func TestLoadConfigurationDefaults(t *testing.T) {
	c := qt.New(t)
	envy.Temp(func() {
		clearEnv()
		cfg, err := core.LoadConfiguration("")
		c.Assert(err, qt.IsNil)
		c.Assert(cfg, qt.DeepEquals, core.DefaultConfiguration())
		c.Assert(cfg.Renderer.FramesInFlight, qt.Equals, 2)
	})
}

func TestLoadConfigurationEnvironment(t *testing.T) {
	c := qt.New(t)
	envy.Temp(func() {
		clearEnv()
		envy.Set(core.EnvWidth, "640")
		envy.Set(core.EnvHeight, "480")
		envy.Set(core.EnvFramesInFlight, "3")
		envy.Set(core.EnvFPS, "0")
		envy.Set(core.EnvDebug, "true")
		envy.Set(core.EnvShaderDir, "shaders")

		cfg, err := core.LoadConfiguration("")
		c.Assert(err, qt.IsNil)
		c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(640))
		c.Assert(cfg.Renderer.ScreenHeight, qt.Equals, uint32(480))
		c.Assert(cfg.Renderer.FramesInFlight, qt.Equals, 3)
		c.Assert(cfg.Renderer.DebugMode, qt.IsTrue)
		c.Assert(cfg.Renderer.ShaderDir, qt.Equals, "shaders")
		c.Assert(cfg.Time.FramesPerSecond, qt.Equals, 0)
	})
}

func TestLoadConfigurationEnvFile(t *testing.T) {
	c := qt.New(t)
	file := filepath.Join(t.TempDir(), ".env")
	c.Assert(os.WriteFile(file, []byte("KORURT_FRAMES=12\nKORURT_LOG_LEVEL=debug\nKORURT_SHADER_ARCHIVE=shaders.kar\n"), 0644), qt.IsNil)

	envy.Temp(func() {
		clearEnv()
		envy.Set(core.EnvFrames, "4")
		cfg, err := core.LoadConfiguration(file)
		c.Assert(err, qt.IsNil)
		c.Assert(cfg.Time.Frames, qt.Equals, 12)
		c.Assert(cfg.LogLevel, qt.Equals, "debug")
		c.Assert(cfg.Renderer.ShaderArchive, qt.Equals, "shaders.kar")
	})
}

func TestLoadConfigurationErrors(t *testing.T) {
	c := qt.New(t)

	_, err := core.LoadConfiguration(filepath.Join(t.TempDir(), "missing.env"))
	c.Assert(err, qt.ErrorMatches, "godotenv.Read.*")

	tests := []struct {
		key, value, err string
	}{
		{core.EnvWidth, "wide", "KORURT_WIDTH: .*"},
		{core.EnvWidth, "0", "invalid screen size 0x720"},
		{core.EnvFramesInFlight, "0", "frames in flight must be at least 1, got 0"},
		{core.EnvFrames, "-1", "negative frame count -1"},
		{core.EnvDebug, "maybe", "KORURT_DEBUG: .*"},
	}
	for _, test := range tests {
		c.Run(test.key+"="+test.value, func(c *qt.C) {
			envy.Temp(func() {
				clearEnv()
				envy.Set(test.key, test.value)
				_, err := core.LoadConfiguration("")
				c.Assert(err, qt.ErrorMatches, test.err)
			})
		})
	}
}
