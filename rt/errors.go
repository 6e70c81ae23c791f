// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rt

import (
	"github.com/devblok/korurt/gfx"
	"github.com/devblok/korurt/model"
	"github.com/pkg/errors"
)

// Errors returned by the pass. All of them are fatal for the current device:
// the host is expected to log them and exit, there is no cleanup guarantee.
var (
	ErrNoMemoryType            = gfx.ErrNoMemoryType
	ErrNotHostVisible          = errors.New("buffer is not host visible")
	ErrBufferOverflow          = errors.New("data does not fit into buffer")
	ErrEmptyGeometry           = model.ErrEmptyGeometry
	ErrShaderNotFound          = errors.New("shader not found")
	ErrUnsupportedDevice       = errors.New("device does not support the required ray tracing features")
	ErrDescriptorPoolExhausted = errors.New("descriptor pool exhausted")
	ErrInvalidFrameSlot        = errors.New("invalid frame slot")
	ErrInvalidExtent           = errors.New("invalid target extent")
	ErrNotInitialised          = errors.New("ray tracing pass not initialised")
	ErrAlreadyInitialised      = errors.New("ray tracing pass already initialised")
)
