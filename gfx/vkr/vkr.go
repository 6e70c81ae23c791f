// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements gfx on top of Vulkan with the KHR ray tracing
// extensions. Entry points the vulkan bindings lack are loaded at runtime.
package vkr

import (
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
)

// ErrUnsupported is returned for devices that lack hardware ray tracing.
var ErrUnsupported = errors.New("device does not support ray tracing")

// ErrNoDevice is returned when the requested physical device does not exist.
var ErrNoDevice = errors.New("no such physical device")

func check(res vk.Result, call string) error {
	if err := vk.Error(res); err != nil {
		return errors.Wrap(err, call)
	}
	return nil
}
