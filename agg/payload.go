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
	"encoding/binary"
	"unsafe"

	"github.com/crestdb/crest/arena"
	"github.com/crestdb/crest/ints"
	"github.com/crestdb/crest/vector"
)

// payload stores grouped tuples row-major in fixed-size pages
// drawn from the arena. One tuple is
//
//	[ validity bitmap | group values | hash u64 | state addr u64 ]
//
// Fixed-width group values are stored in place; variable-length
// values are copied into the arena and the tuple stores a
// {length u32, address u64} slot. Rows never move once appended,
// so tuple addresses and state addresses stay valid for the
// table's lifetime.
type payload struct {
	mem    *arena.Arena
	groups []vector.Kind
	aggrs  []Function

	rowsPerPage int
	tupleSize   int
	pages       [][]byte
	rows        int

	validityBytes    int
	groupOffsets     []int
	hashOffset       int
	stateOffset      int
	stateAddrOffsets []int
	stateSize        int
	stateAlign       int
}

// a variable-length group value inside a tuple:
// length at +0, arena address at +8
const bytesSlotSize = 16

func newPayload(mem *arena.Arena, groups []vector.Kind, aggrs []Function, rowsPerPage int) *payload {
	p := &payload{
		mem:         mem,
		groups:      groups,
		aggrs:       aggrs,
		rowsPerPage: rowsPerPage,
	}

	p.validityBytes = int(ints.ChunkCount(uint(len(groups)), 8))
	off := p.validityBytes
	p.groupOffsets = make([]int, len(groups))
	for i, k := range groups {
		w := k.Width()
		align := w
		if !k.Fixed() {
			w, align = bytesSlotSize, 8
		}
		off = ints.AlignUp(off, align)
		p.groupOffsets[i] = off
		off += w
	}
	off = ints.AlignUp(off, 8)
	p.hashOffset = off
	off += 8
	p.stateOffset = off
	off += 8
	p.tupleSize = ints.AlignUp(off, 8)

	p.stateAddrOffsets = make([]int, len(aggrs))
	so, maxAlign := 0, 1
	for j, ag := range aggrs {
		align := ag.StateAlign()
		if align > maxAlign {
			maxAlign = align
		}
		so = ints.AlignUp(so, align)
		p.stateAddrOffsets[j] = so
		so += ag.StateSize()
	}
	p.stateSize = so
	p.stateAlign = maxAlign
	return p
}

func (p *payload) len() int { return p.rows }

// newSlot reserves the next tuple slot, opening a fresh
// page when the current one is full.
func (p *payload) newSlot() (int, []byte) {
	row := p.rows
	if row%p.rowsPerPage == 0 {
		p.pages = append(p.pages, p.mem.Alloc(p.rowsPerPage*p.tupleSize, 8))
	}
	p.rows++
	page := p.pages[row/p.rowsPerPage]
	off := (row % p.rowsPerPage) * p.tupleSize
	return row, page[off : off+p.tupleSize]
}

// initStates allocates and initializes the out-of-line state
// block for one tuple and records its address in the slot.
func (p *payload) initStates(tup []byte) StateAddr {
	if p.stateSize == 0 {
		binary.LittleEndian.PutUint64(tup[p.stateOffset:], 0)
		return 0
	}
	block := p.mem.Alloc(p.stateSize, p.stateAlign)
	addr := StateAddr(unsafe.Pointer(&block[0]))
	for j, ag := range p.aggrs {
		ag.Init(addr.Add(p.stateAddrOffsets[j]))
	}
	binary.LittleEndian.PutUint64(tup[p.stateOffset:], uint64(addr))
	return addr
}

func (p *payload) writeBytesSlot(tup []byte, off int, v []byte) {
	binary.LittleEndian.PutUint32(tup[off:], uint32(len(v)))
	if len(v) == 0 {
		binary.LittleEndian.PutUint64(tup[off+8:], 0)
		return
	}
	blob := p.mem.Alloc(len(v), 1)
	copy(blob, v)
	binary.LittleEndian.PutUint64(tup[off+8:], uint64(uintptr(unsafe.Pointer(&blob[0]))))
}

func readBytesSlot(tup []byte, off int) []byte {
	n := binary.LittleEndian.Uint32(tup[off:])
	if n == 0 {
		return nil
	}
	addr := uintptr(binary.LittleEndian.Uint64(tup[off+8:]))
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// appendRows appends one tuple per index in sel, filling the
// group values and null bits from groupCols and the hash from
// hashes. Each appended tuple's address is recorded in
// ps.addresses at its selection index.
func (p *payload) appendRows(ps *ProbeState, hashes []uint64, sel []int, groupCols []vector.Column) {
	for _, idx := range sel {
		_, tup := p.newSlot()
		for c := range groupCols {
			col := &groupCols[c]
			if col.IsNull(idx) {
				continue // slot memory is zeroed; the bit stays clear
			}
			ints.SetBit(tup[:p.validityBytes], c)
			off := p.groupOffsets[c]
			if k := p.groups[c]; k.Fixed() {
				copy(tup[off:off+k.Width()], col.FixedAt(idx))
			} else {
				p.writeBytesSlot(tup, off, col.Bytes(idx))
			}
		}
		binary.LittleEndian.PutUint64(tup[p.hashOffset:], hashes[idx])
		p.initStates(tup)
		ps.addresses[idx] = uintptr(unsafe.Pointer(&tup[0]))
	}
}

// appendTuple appends a copy of a tuple image from another
// payload with the same layout. Variable-length values are
// re-copied into this payload's arena; the state block is
// freshly allocated and initialized.
func (p *payload) appendTuple(src []byte) (int, []byte, StateAddr) {
	row, tup := p.newSlot()
	copy(tup[:p.stateOffset], src[:p.stateOffset])
	for c, k := range p.groups {
		if k.Fixed() {
			continue
		}
		off := p.groupOffsets[c]
		p.writeBytesSlot(tup, off, readBytesSlot(src, off))
	}
	addr := p.initStates(tup)
	return row, tup, addr
}

func (p *payload) pagePtr(page int) uintptr {
	return uintptr(unsafe.Pointer(&p.pages[page][0]))
}

func (p *payload) rowPtr(row int) uintptr {
	return p.pagePtr(row/p.rowsPerPage) + uintptr((row%p.rowsPerPage)*p.tupleSize)
}

// tupleAt reinterprets a tuple address as a byte slice.
func (p *payload) tupleAt(addr uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), p.tupleSize)
}

func (p *payload) tuple(row int) []byte {
	return p.tupleAt(p.rowPtr(row))
}

func (p *payload) tupleHash(tup []byte) uint64 {
	return binary.LittleEndian.Uint64(tup[p.hashOffset:])
}

func (p *payload) rowHash(row int) uint64 {
	return p.tupleHash(p.tuple(row))
}

func (p *payload) stateAddrOf(tup []byte) StateAddr {
	return StateAddr(binary.LittleEndian.Uint64(tup[p.stateOffset:]))
}
