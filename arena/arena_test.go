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

package arena

import (
	"testing"
	"unsafe"
)

func TestAllocAlignment(t *testing.T) {
	a := New(1 << 16)
	defer a.Release()
	for _, align := range []int{1, 2, 4, 8, 16, 64} {
		buf := a.Alloc(24, align)
		if len(buf) != 24 {
			t.Fatalf("len = %d, want 24", len(buf))
		}
		p := uintptr(unsafe.Pointer(&buf[0]))
		if p%uintptr(align) != 0 {
			t.Fatalf("alloc with align %d at address %#x", align, p)
		}
		for i := range buf {
			if buf[i] != 0 {
				t.Fatal("memory not zeroed")
			}
		}
	}
}

func TestAllocStable(t *testing.T) {
	a := New(1 << 12)
	defer a.Release()
	// force many slab transitions and check that
	// earlier allocations keep their contents
	bufs := make([][]byte, 0, 1024)
	for i := 0; i < 1024; i++ {
		buf := a.Alloc(100, 8)
		buf[0] = byte(i)
		buf[99] = byte(i >> 8)
		bufs = append(bufs, buf)
	}
	for i, buf := range bufs {
		if buf[0] != byte(i) || buf[99] != byte(i>>8) {
			t.Fatalf("allocation %d was clobbered", i)
		}
	}
	if a.Allocated() != 1024*100 {
		t.Errorf("Allocated() = %d, want %d", a.Allocated(), 1024*100)
	}
}

func TestAllocOversize(t *testing.T) {
	a := New(1 << 12)
	defer a.Release()
	big := a.Alloc(1<<16, 8)
	if len(big) != 1<<16 {
		t.Fatalf("len = %d", len(big))
	}
	big[0] = 1
	big[len(big)-1] = 2
	// a following small allocation should not disturb it
	small := a.Alloc(16, 8)
	small[0] = 0xff
	if big[0] != 1 || big[len(big)-1] != 2 {
		t.Fatal("oversize allocation clobbered")
	}
}

func TestReset(t *testing.T) {
	a := New(1 << 12)
	defer a.Release()
	for i := 0; i < 100; i++ {
		a.Alloc(128, 8)
	}
	a.Reset()
	if a.Allocated() != 0 {
		t.Fatalf("Allocated() = %d after Reset", a.Allocated())
	}
	buf := a.Alloc(128, 8)
	for i := range buf {
		if buf[i] != 0 {
			t.Fatal("reused slab memory not zeroed")
		}
	}
}
