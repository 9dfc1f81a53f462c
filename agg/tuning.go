// Copyright (C) 2023 Crest Data, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package agg

import (
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/crestdb/crest/arena"
	"github.com/crestdb/crest/ints"
)

// Tuning holds the size knobs of a Table. The zero value
// of any field selects its default.
type Tuning struct {
	// InitialCapacity is the starting directory size.
	// It must be a power of two >= 128.
	InitialCapacity int `json:"initial_capacity,omitempty"`
	// RowsPerPage is the number of tuple slots per payload
	// page. It must be a power of two <= 65536; pages should
	// stay within a few cache-friendly kilobytes.
	RowsPerPage int `json:"rows_per_page,omitempty"`
	// SlabSize is an arena slab granularity carried with the
	// other knobs. The Table does not read it: the caller
	// supplies the arena, and may build it with this size.
	SlabSize int `json:"slab_size,omitempty"`
}

// DefaultTuning returns the tuning used by New.
func DefaultTuning() Tuning {
	return Tuning{
		InitialCapacity: minCapacity,
		RowsPerPage:     128,
		SlabSize:        arena.DefaultSlabSize,
	}
}

// DecodeTuning decodes a Tuning from JSON or YAML and
// validates it. Omitted fields keep their defaults.
func DecodeTuning(src []byte) (Tuning, error) {
	t := DefaultTuning()
	if err := yaml.Unmarshal(src, &t); err != nil {
		return Tuning{}, fmt.Errorf("decoding tuning: %w", err)
	}
	if err := t.validate(); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

func (t *Tuning) fill() {
	def := DefaultTuning()
	if t.InitialCapacity == 0 {
		t.InitialCapacity = def.InitialCapacity
	}
	if t.RowsPerPage == 0 {
		t.RowsPerPage = def.RowsPerPage
	}
	if t.SlabSize == 0 {
		t.SlabSize = def.SlabSize
	}
}

func (t *Tuning) validate() error {
	t.fill()
	if t.InitialCapacity < minCapacity || !ints.IsPow2(uint(t.InitialCapacity)) {
		return fmt.Errorf("initial_capacity %d must be a power of two >= %d: %w",
			t.InitialCapacity, minCapacity, ErrInvalidArgument)
	}
	if t.RowsPerPage < 1 || t.RowsPerPage > 1<<16 || !ints.IsPow2(uint(t.RowsPerPage)) {
		return fmt.Errorf("rows_per_page %d must be a power of two in [1, 65536]: %w",
			t.RowsPerPage, ErrInvalidArgument)
	}
	if t.SlabSize < 1<<16 {
		return fmt.Errorf("slab_size %d below minimum %d: %w",
			t.SlabSize, 1<<16, ErrInvalidArgument)
	}
	return nil
}
