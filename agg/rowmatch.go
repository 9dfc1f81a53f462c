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
	"bytes"

	"github.com/crestdb/crest/ints"
	"github.com/crestdb/crest/vector"
)

// Vectorized key comparison: candidate rows are tested against
// the input group columns one column at a time, so each pass is
// a dense loop over a shrinking selection instead of a per-row
// walk over all columns.

// matchRows compares the candidate tuples at addresses[idx]
// against rows idx of the input group columns, for each idx in
// sel. Mismatching indices are appended to noMatch starting at
// noMatchCount; the new count is returned. sel is consumed as
// scratch. Matching rows keep addresses[idx] pointing at their
// group's tuple.
func (p *payload) matchRows(groupCols []vector.Column, addresses []uintptr, sel []int, noMatch []int, noMatchCount int) int {
	remaining := sel
	for c := range groupCols {
		if len(remaining) == 0 {
			break
		}
		col := &groupCols[c]
		off := p.groupOffsets[c]
		fixed := p.groups[c].Fixed()
		width := 0
		if fixed {
			width = p.groups[c].Width()
		}
		kept := 0
		for _, idx := range remaining {
			tup := p.tupleAt(addresses[idx])
			valid := ints.TestBit(tup[:p.validityBytes], c)
			if col.IsNull(idx) {
				if valid {
					noMatch[noMatchCount] = idx
					noMatchCount++
				} else {
					// both null: equal for this column
					remaining[kept] = idx
					kept++
				}
				continue
			}
			if !valid {
				noMatch[noMatchCount] = idx
				noMatchCount++
				continue
			}
			var eq bool
			if fixed {
				eq = bytes.Equal(tup[off:off+width], col.FixedAt(idx))
			} else {
				eq = bytes.Equal(readBytesSlot(tup, off), col.Bytes(idx))
			}
			if eq {
				remaining[kept] = idx
				kept++
			} else {
				noMatch[noMatchCount] = idx
				noMatchCount++
			}
		}
		remaining = remaining[:kept]
	}
	return noMatchCount
}

// tupleEqual compares two tuple images with this payload's
// layout: validity bits first, then each group value.
func (p *payload) tupleEqual(a, b []byte) bool {
	if !bytes.Equal(a[:p.validityBytes], b[:p.validityBytes]) {
		return false
	}
	for c, k := range p.groups {
		if !ints.TestBit(a[:p.validityBytes], c) {
			continue // both null
		}
		off := p.groupOffsets[c]
		if k.Fixed() {
			w := k.Width()
			if !bytes.Equal(a[off:off+w], b[off:off+w]) {
				return false
			}
		} else if !bytes.Equal(readBytesSlot(a, off), readBytesSlot(b, off)) {
			return false
		}
	}
	return true
}
