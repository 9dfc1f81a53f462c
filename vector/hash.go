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

package vector

import (
	"encoding/binary"

	"github.com/dchest/siphash"
)

// Composite key hashing: one 64-bit hash per row over a tuple of
// group columns. Each column chains off the previous column's
// 128-bit state, so the per-column values are mixed rather than
// concatenated, and every value is framed with a validity tag so
// (1, null) and (1, "") hash differently.

const (
	frameNull  = 0x00
	frameValue = 0x01
)

// HashKeys writes one composite hash per row into lo[0:n],
// using hi[0:n] as the chain state for the upper hash halves.
// All columns must have at least n rows.
func HashKeys(cols []Column, n int, lo, hi []uint64) {
	for i := 0; i < n; i++ {
		lo[i], hi[i] = 0, 0
	}
	for k := range cols {
		hashColumn(&cols[k], n, lo, hi)
	}
}

func hashColumn(col *Column, n int, lo, hi []uint64) {
	if col.kind == Bytes {
		var frame [9]byte
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				lo[i], hi[i] = siphash.Hash128(lo[i], hi[i], nullFrame[:])
				continue
			}
			v := col.Bytes(i)
			frame[0] = frameValue
			binary.LittleEndian.PutUint64(frame[1:], uint64(len(v)))
			l, h := siphash.Hash128(lo[i], hi[i], frame[:])
			lo[i], hi[i] = siphash.Hash128(l, h, v)
		}
		return
	}
	w := col.kind.Width()
	var frame [33]byte
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			lo[i], hi[i] = siphash.Hash128(lo[i], hi[i], nullFrame[:])
			continue
		}
		frame[0] = frameValue
		copy(frame[1:], col.FixedAt(i))
		lo[i], hi[i] = siphash.Hash128(lo[i], hi[i], frame[:1+w])
	}
}

var nullFrame = [1]byte{frameNull}

// HashBytes hashes an arbitrary byte string with the
// same function used for key hashing. It is used for
// schema fingerprints, not for grouping.
func HashBytes(seed uint64, b []byte) uint64 {
	return siphash.Hash(seed, 0, b)
}
