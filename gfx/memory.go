// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "github.com/pkg/errors"

// ErrNoMemoryType is returned when no memory type passes both the
// requirement filter and the wanted properties.
var ErrNoMemoryType = errors.New("suitable memory type not found")

// FindMemoryType returns the first memory type index allowed by filter
// that has every property in want.
func FindMemoryType(types []MemoryType, filter uint32, want MemoryProperty) (uint32, error) {
	for idx := uint32(0); idx < uint32(len(types)) && idx < 32; idx++ {
		if filter&(1<<idx) != 0 && types[idx].Properties&want == want {
			return idx, nil
		}
	}
	return 0, errors.Wrapf(ErrNoMemoryType, "filter %#x, properties %#x", filter, want)
}
