// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"github.com/devblok/korurt/assets"
	"github.com/devblok/korurt/core"
	"github.com/gobuffalo/packr"
)

// openShaders layers the configured archive and directory over the shaders
// packed into the binary. The returned func closes what was opened.
func openShaders(cfg core.RendererConfiguration) (assets.Source, func(), error) {
	var (
		sources assets.Layered
		closers []func()
	)
	if cfg.ShaderArchive != "" {
		ar, err := assets.OpenArchive(cfg.ShaderArchive)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, ar)
		closers = append(closers, func() { ar.Close() })
	}
	if cfg.ShaderDir != "" {
		sources = append(sources, assets.Dir(cfg.ShaderDir))
	}
	sources = append(sources, assets.NewBox(packr.NewBox("../../shaders")))

	return sources, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
