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
	"testing"
)

func TestAlignUp(t *testing.T) {
	cases := []struct {
		v, align, want int
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{13, 4, 16},
		{16, 16, 16},
	}
	for _, c := range cases {
		if got := AlignUp(c.v, c.align); got != c.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", c.v, c.align, got, c.want)
		}
	}
}

func TestNextPow2(t *testing.T) {
	cases := []struct {
		v, want uint
	}{
		{1, 1},
		{2, 2},
		{3, 4},
		{127, 128},
		{128, 128},
		{129, 256},
	}
	for _, c := range cases {
		if got := NextPow2(c.v); got != c.want {
			t.Errorf("NextPow2(%d) = %d, want %d", c.v, got, c.want)
		}
		if !IsPow2(c.want) {
			t.Errorf("IsPow2(%d) = false", c.want)
		}
	}
	if IsPow2(uint(0)) || IsPow2(uint(12)) {
		t.Error("IsPow2 accepted a non-power-of-two")
	}
}

func TestBitOps(t *testing.T) {
	buf := make([]byte, 8)
	for _, k := range []int{0, 1, 7, 8, 33, 63} {
		if TestBit(buf, k) {
			t.Fatalf("bit %d set in zeroed buffer", k)
		}
		SetBit(buf, k)
		if !TestBit(buf, k) {
			t.Fatalf("bit %d not set after SetBit", k)
		}
		ClearBit(buf, k)
		if TestBit(buf, k) {
			t.Fatalf("bit %d still set after ClearBit", k)
		}
	}
}
