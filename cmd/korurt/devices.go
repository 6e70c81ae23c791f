// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"

	"github.com/devblok/korurt/core"
	"github.com/devblok/korurt/gfx/vkr"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List physical devices and their ray tracing support",
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg, err := core.LoadConfiguration(envFile)
	if err != nil {
		return err
	}

	instance, err := vkr.NewInstance(vkr.InstanceConfiguration{
		ApplicationName: "korurt",
		DebugMode:       cfg.Renderer.DebugMode,
	})
	if err != nil {
		return err
	}
	defer instance.Destroy()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(instance.PhysicalDevicesInfo())
}
