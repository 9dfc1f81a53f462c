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

package ints

import (
	"golang.org/x/exp/constraints"
)

// TestBit check if the k-th bit is set in range "in"
func TestBit[K constraints.Integer](in []byte, k K) bool {
	return in[uintptr(k)/8]&(byte(1)<<(uintptr(k)%8)) != 0
}

// SetBit sets the k-th bit in range "in"
func SetBit[K constraints.Integer](in []byte, k K) {
	in[uintptr(k)/8] |= byte(1) << (uintptr(k) % 8)
}

// ClearBit clears the k-th bit in range "in"
func ClearBit[K constraints.Integer](in []byte, k K) {
	in[uintptr(k)/8] &^= byte(1) << (uintptr(k) % 8)
}
