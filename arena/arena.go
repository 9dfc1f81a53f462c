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

// Package arena implements a slab-backed bump allocator.
//
// An Arena services many tiny allocations out of large slabs and
// frees them wholesale. Slabs are never moved, and are recycled or
// returned to the OS only by Reset or Release, so every byte slice
// handed out by Alloc stays valid (and at a stable address) until
// the next Reset or Release.
//
// An Arena is not safe for concurrent use; the aggregation core
// that owns one is single-writer by construction.
package arena

import (
	"github.com/crestdb/crest/ints"
)

// DefaultSlabSize is the slab granularity used
// when New is called with size <= 0.
const DefaultSlabSize = 1 << 20

// pageSize is the mapping granularity for dedicated slabs.
const pageSize = 1 << 12

// Arena is a bump allocator over a list of slabs.
//
// The zero Arena is not usable; call New.
type Arena struct {
	slabs [][]byte // all mapped slabs, including the current one
	cur   []byte   // slab currently being carved
	off   int      // bump offset into cur

	slabSize  int
	allocated int // sum of all Alloc sizes (not counting padding)
}

// New constructs an Arena that maps memory
// in slabs of the given size, rounded up to
// a power of two. size <= 0 selects DefaultSlabSize.
func New(size int) *Arena {
	if size <= 0 {
		size = DefaultSlabSize
	}
	return &Arena{
		slabSize: int(ints.NextPow2(uint(size))),
	}
}

// Allocated returns the total number of bytes
// handed out by Alloc since the last Reset.
func (a *Arena) Allocated() int { return a.allocated }

// Alloc returns size bytes aligned to align.
// align must be a power of two; size must be >= 0.
//
// The returned memory is zeroed. It remains valid until the
// next Reset or Release; there is no way to free it individually.
func (a *Arena) Alloc(size, align int) []byte {
	if align <= 0 || !ints.IsPow2(uint(align)) {
		panic("arena: bad alignment")
	}
	if size < 0 {
		panic("arena: negative size")
	}
	// requests that cannot share a slab get their own mapping
	if size+align > a.slabSize {
		slab := mapSlab(ints.AlignUp(size, pageSize))
		a.slabs = append(a.slabs, slab)
		a.allocated += size
		return slab[:size:size]
	}
	off := ints.AlignUp(a.off, align)
	if a.cur == nil || off+size > len(a.cur) {
		a.cur = mapSlab(a.slabSize)
		a.slabs = append(a.slabs, a.cur)
		off = 0
	}
	a.off = off + size
	a.allocated += size
	buf := a.cur[off:a.off:a.off]
	// slabs are zeroed when mapped but may be dirty after Reset
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// Reset keeps the first slab mapped for reuse and returns
// every other slab to the OS. Memory handed out before
// Reset must no longer be referenced.
func (a *Arena) Reset() {
	a.allocated = 0
	a.off = 0
	a.cur = nil
	// keep one slab warm, drop the rest
	if len(a.slabs) > 0 {
		for _, s := range a.slabs[1:] {
			unmapSlab(s)
		}
		a.slabs = a.slabs[:1]
		a.cur = a.slabs[0]
	}
}

// Release returns all slabs to the OS.
// The Arena must not be used afterwards.
func (a *Arena) Release() {
	for _, s := range a.slabs {
		unmapSlab(s)
	}
	a.slabs = nil
	a.cur = nil
	a.off = 0
	a.allocated = 0
}
