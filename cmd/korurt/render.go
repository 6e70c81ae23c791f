// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/devblok/korurt/core"
	"github.com/devblok/korurt/gfx/vkr"
	"github.com/devblok/korurt/model"
	"github.com/devblok/korurt/rt"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var renderFlags struct {
	frames   int
	width    uint32
	height   uint32
	fps      int
	inFlight int
	out      string
	resizeAt int
	shaders  string
	archive  string
	device   int
	debug    bool
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Trace the scene for a number of frames and save the last one",
	Long: `render traces the built-in triangle scene into an off-screen target,
cycling through the frames in flight, and reads the final frame back.

The output format follows the file extension: .png, .bmp, .tif or .tiff.
With --resize-at the target is recreated at half size on that frame,
which forces the scene to be rebuilt.`,
	RunE: runRender,
}

func init() {
	f := renderCmd.Flags()
	f.IntVarP(&renderFlags.frames, "frames", "n", 0, "number of frames to render")
	f.Uint32Var(&renderFlags.width, "width", 0, "target width")
	f.Uint32Var(&renderFlags.height, "height", 0, "target height")
	f.IntVar(&renderFlags.fps, "fps", 0, "frame rate cap, 0 for unlimited")
	f.IntVar(&renderFlags.inFlight, "frames-in-flight", 0, "frame slots to cycle through")
	f.StringVarP(&renderFlags.out, "out", "o", "frame.png", "output image")
	f.IntVar(&renderFlags.resizeAt, "resize-at", 0, "frame on which the target is resized")
	f.StringVar(&renderFlags.shaders, "shaders", "", "directory holding the compiled shaders")
	f.StringVar(&renderFlags.archive, "archive", "", "kar archive holding the compiled shaders")
	f.IntVar(&renderFlags.device, "device", -1, "physical device index, first capable device when negative")
	f.BoolVar(&renderFlags.debug, "debug", false, "enable validation layers")
	rootCmd.AddCommand(renderCmd)
}

// renderConfiguration applies the flags that were set on top of cfg.
func renderConfiguration(cmd *cobra.Command, cfg core.Configuration) (core.Configuration, error) {
	f := cmd.Flags()
	if f.Changed("frames") {
		cfg.Time.Frames = renderFlags.frames
	}
	if f.Changed("fps") {
		cfg.Time.FramesPerSecond = renderFlags.fps
	}
	if f.Changed("width") {
		cfg.Renderer.ScreenWidth = renderFlags.width
	}
	if f.Changed("height") {
		cfg.Renderer.ScreenHeight = renderFlags.height
	}
	if f.Changed("frames-in-flight") {
		cfg.Renderer.FramesInFlight = renderFlags.inFlight
	}
	if f.Changed("shaders") {
		cfg.Renderer.ShaderDir = renderFlags.shaders
	}
	if f.Changed("archive") {
		cfg.Renderer.ShaderArchive = renderFlags.archive
	}
	if f.Changed("debug") {
		cfg.Renderer.DebugMode = renderFlags.debug
	}
	return cfg, cfg.Validate()
}

// raytracingConfig returns the pass configuration for cfg.
func raytracingConfig(cfg core.Configuration) rt.Config {
	out := rt.DefaultConfig()
	out.FramesInFlight = cfg.Renderer.FramesInFlight
	return out
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := core.LoadConfiguration(envFile)
	if err != nil {
		return err
	}
	if cfg, err = renderConfiguration(cmd, cfg); err != nil {
		return err
	}
	log := core.NewLogger(cfg.LogLevel, cmd.ErrOrStderr())

	shaders, closeShaders, err := openShaders(cfg.Renderer)
	if err != nil {
		return err
	}
	defer closeShaders()

	instance, err := vkr.NewInstance(vkr.InstanceConfiguration{
		ApplicationName: "korurt",
		DebugMode:       cfg.Renderer.DebugMode,
	})
	if err != nil {
		return err
	}
	defer instance.Destroy()

	index, err := selectDevice(instance.PhysicalDevicesInfo(), renderFlags.device)
	if err != nil {
		return err
	}
	dev, err := vkr.NewDevice(instance, index)
	if err != nil {
		return err
	}
	defer dev.Destroy()
	log.WithFields(logrus.Fields{
		"device": dev.Info().Name,
		"index":  index,
	}).Info("using device")

	frames, err := vkr.NewFrames(dev, cfg.Renderer.FramesInFlight)
	if err != nil {
		return err
	}
	defer frames.Destroy()

	target, err := vkr.NewTarget(dev, cfg.Renderer.ScreenWidth, cfg.Renderer.ScreenHeight)
	if err != nil {
		return err
	}
	defer func() {
		target.Destroy()
	}()

	pass, err := rt.New(dev, shaders, model.Triangle(), raytracingConfig(cfg), rt.WithLogger(log))
	if err != nil {
		return err
	}
	if err := pass.Init(); err != nil {
		return err
	}
	defer func() {
		dev.WaitIdle()
		pass.Release()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if err := renderLoop(ctx, cfg, dev, frames, &target, pass, log); err != nil {
		return err
	}
	if err := dev.WaitIdle(); err != nil {
		return err
	}

	img, err := target.Readback(frames)
	if err != nil {
		return err
	}
	if err := writeImage(renderFlags.out, img); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"out":    renderFlags.out,
		"builds": pass.Builds(),
	}).Info("frame written")
	return nil
}

func renderLoop(ctx context.Context, cfg core.Configuration, dev *vkr.Device, frames *vkr.Frames, target **vkr.Target, pass *rt.Raytracing, log logrus.FieldLogger) error {
	tm := core.NewTime(cfg.Time)
	defer tm.Stop()

	for frame := 0; frame < cfg.Time.Frames; frame++ {
		if err := tm.Next(ctx); err != nil {
			return err
		}

		if renderFlags.resizeAt > 0 && frame == renderFlags.resizeAt {
			if err := resize(dev, target); err != nil {
				return err
			}
		}

		slot := frame % frames.Slots()
		cmd, err := frames.Begin(slot)
		if err != nil {
			return err
		}
		t := *target
		width, height := t.Extent()
		layout, err := pass.Execute(cmd, rt.Target{
			Image:  t.Image(),
			View:   t.View(),
			Layout: t.Layout(),
			Width:  width,
			Height: height,
		}, slot)
		if err != nil {
			return errors.Wrapf(err, "frame %d", frame)
		}
		t.SetLayout(layout)
		if err := frames.Submit(slot); err != nil {
			return err
		}
	}
	log.WithField("frames", tm.Frames()).Debug("render loop done")
	return nil
}

// resize replaces the target with one of half its size.
func resize(dev *vkr.Device, target **vkr.Target) error {
	if err := dev.WaitIdle(); err != nil {
		return err
	}
	width, height := (*target).Extent()
	next, err := vkr.NewTarget(dev, max(width/2, 1), max(height/2, 1))
	if err != nil {
		return err
	}
	(*target).Destroy()
	*target = next
	return nil
}

// selectDevice returns want when it names a capable device, or the first
// capable device when want is negative.
func selectDevice(devices []vkr.PhysicalDeviceInfo, want int) (int, error) {
	if want >= 0 {
		if want >= len(devices) {
			return 0, errors.Wrapf(vkr.ErrNoDevice, "device %d of %d", want, len(devices))
		}
		if d := devices[want]; d.Invalid || !d.RayTracing {
			return 0, errors.Wrapf(vkr.ErrUnsupported, "device %d (%s)", want, d.Name)
		}
		return want, nil
	}
	for i, d := range devices {
		if !d.Invalid && d.RayTracing {
			return i, nil
		}
	}
	return 0, errors.Wrap(vkr.ErrNoDevice, "no device supports ray tracing")
}
