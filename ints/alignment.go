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

// Package ints provides small integer and bit-manipulation
// helpers shared by the memory-layout code.
package ints

import (
	"golang.org/x/exp/constraints"
)

// IsAligned returns true if and only if v is an integer multiple of alignment
func IsAligned[T constraints.Integer](v, alignment T) bool {
	return v%alignment == 0
}

// AlignDown returns v aligned down to a given alignment.
func AlignDown[T constraints.Integer](v, alignment T) T {
	return (v / alignment) * alignment
}

// AlignUp returns v aligned up to a given alignment.
func AlignUp[T constraints.Integer](v, alignment T) T {
	return ((v + alignment - 1) / alignment) * alignment
}

// ChunkCount returns the number of chunkSize-bit chunks needed to store n bits
func ChunkCount[T constraints.Unsigned](n, chunkSize T) T {
	return (n + chunkSize - 1) / chunkSize
}

// NextPow2 returns the smallest power of two >= v.
func NextPow2[T constraints.Unsigned](v T) T {
	p := T(1)
	for p < v {
		p <<= 1
	}
	return p
}

// IsPow2 returns true if v is a power of two.
func IsPow2[T constraints.Unsigned](v T) bool {
	return v != 0 && v&(v-1) == 0
}
