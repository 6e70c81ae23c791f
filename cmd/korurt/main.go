// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

//go:generate glslangValidator --target-env vulkan1.2 -o ../../shaders/raygen.rgen.spv ../../shaders/raygen.rgen
//go:generate glslangValidator --target-env vulkan1.2 -o ../../shaders/miss.rmiss.spv ../../shaders/miss.rmiss
//go:generate glslangValidator --target-env vulkan1.2 -o ../../shaders/closesthit.rchit.spv ../../shaders/closesthit.rchit

// Command korurt renders the ray traced scene off-screen and reports the
// ray tracing capabilities of the installed devices.
package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "korurt",
	Short: "Headless Vulkan ray tracer",
	Long: `korurt traces a scene with the Vulkan ray tracing pipeline into an
off-screen image and writes the last frame to disk.

Settings are read from KORURT_* environment variables, optionally loaded
from a .env file, and can be overridden with flags.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "load environment from this file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
