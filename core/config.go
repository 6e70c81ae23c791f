// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"strconv"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Environment keys read by LoadConfiguration.
const (
	EnvWidth          = "KORURT_WIDTH"
	EnvHeight         = "KORURT_HEIGHT"
	EnvFrames         = "KORURT_FRAMES"
	EnvFPS            = "KORURT_FPS"
	EnvFramesInFlight = "KORURT_FRAMES_IN_FLIGHT"
	EnvShaderDir      = "KORURT_SHADER_DIR"
	EnvShaderArchive  = "KORURT_SHADER_ARCHIVE"
	EnvDebug          = "KORURT_DEBUG"
	EnvLogLevel       = "KORURT_LOG_LEVEL"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration

	// LogLevel is parsed by NewLogger.
	LogLevel string
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// Frames is the number of frames a headless run renders.
	Frames int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	ScreenWidth  uint32
	ScreenHeight uint32

	FramesInFlight int

	// ShaderDir and ShaderArchive locate the compiled shaders. An archive
	// takes precedence when both are set.
	ShaderDir     string
	ShaderArchive string

	// DebugMode enables the validation layers.
	DebugMode bool
}

// DefaultConfiguration is used for any key the environment leaves unset.
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			Frames:          1,
		},
		Renderer: RendererConfiguration{
			ScreenWidth:    1280,
			ScreenHeight:   720,
			FramesInFlight: 2,
		},
		LogLevel: "info",
	}
}

// LoadConfiguration reads the configuration from the environment. Values in
// envFile, when given, are applied first and override the process
// environment.
func LoadConfiguration(envFile string) (Configuration, error) {
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		if err != nil {
			return Configuration{}, errors.Wrapf(err, "godotenv.Read(%s)", envFile)
		}
		for k, v := range values {
			envy.Set(k, v)
		}
	}

	cfg := DefaultConfiguration()
	var err error
	if cfg.Renderer.ScreenWidth, err = envUint32(EnvWidth, cfg.Renderer.ScreenWidth); err != nil {
		return cfg, err
	}
	if cfg.Renderer.ScreenHeight, err = envUint32(EnvHeight, cfg.Renderer.ScreenHeight); err != nil {
		return cfg, err
	}
	if cfg.Renderer.FramesInFlight, err = envInt(EnvFramesInFlight, cfg.Renderer.FramesInFlight); err != nil {
		return cfg, err
	}
	if cfg.Time.Frames, err = envInt(EnvFrames, cfg.Time.Frames); err != nil {
		return cfg, err
	}
	if cfg.Time.FramesPerSecond, err = envInt(EnvFPS, cfg.Time.FramesPerSecond); err != nil {
		return cfg, err
	}
	if cfg.Renderer.DebugMode, err = envBool(EnvDebug, cfg.Renderer.DebugMode); err != nil {
		return cfg, err
	}
	cfg.Renderer.ShaderDir = envString(EnvShaderDir, cfg.Renderer.ShaderDir)
	cfg.Renderer.ShaderArchive = envString(EnvShaderArchive, cfg.Renderer.ShaderArchive)
	cfg.LogLevel = envString(EnvLogLevel, cfg.LogLevel)

	return cfg, cfg.Validate()
}

// Validate checks the values the renderer can not work with.
func (c Configuration) Validate() error {
	switch {
	case c.Renderer.ScreenWidth == 0 || c.Renderer.ScreenHeight == 0:
		return errors.Errorf("invalid screen size %dx%d", c.Renderer.ScreenWidth, c.Renderer.ScreenHeight)
	case c.Renderer.FramesInFlight < 1:
		return errors.Errorf("frames in flight must be at least 1, got %d", c.Renderer.FramesInFlight)
	case c.Time.Frames < 0:
		return errors.Errorf("negative frame count %d", c.Time.Frames)
	case c.Time.FramesPerSecond < 0:
		return errors.Errorf("negative frames per second %d", c.Time.FramesPerSecond)
	}
	return nil
}

// envString treats an empty value as unset.
func envString(key, def string) string {
	if s := envy.Get(key, ""); s != "" {
		return s
	}
	return def
}

func envInt(key string, def int) (int, error) {
	s := envString(key, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def, errors.Wrapf(err, "%s", key)
	}
	return v, nil
}

func envUint32(key string, def uint32) (uint32, error) {
	s := envString(key, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return def, errors.Wrapf(err, "%s", key)
	}
	return uint32(v), nil
}

func envBool(key string, def bool) (bool, error) {
	s := envString(key, "")
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def, errors.Wrapf(err, "%s", key)
	}
	return v, nil
}
