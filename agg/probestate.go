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
	"github.com/crestdb/crest/vector"
)

// ProbeState is the reusable scratch space of AddBatch: per-row
// probe cursors and the selection vectors that flatten per-row
// control flow into dense passes. One ProbeState serves one
// worker; reusing it across batches avoids per-batch allocation.
type ProbeState struct {
	hashes  []uint64
	chainHi []uint64 // upper halves of the 128-bit hash chain

	htOffsets   []int       // current probe position per row
	hashSalts   []uint16    // hash high bits per row
	addresses   []uintptr   // resolved tuple address per row
	statePlaces []StateAddr // state block address per row

	selection     []int
	emptyVector   []int
	compareVector []int
	noMatchVector []int
	newGroups     []int
}

// NewProbeState returns an empty ProbeState; its buffers grow
// to the largest batch it has seen.
func NewProbeState() *ProbeState {
	return &ProbeState{}
}

func (ps *ProbeState) reserve(n int) {
	if cap(ps.hashes) >= n {
		ps.hashes = ps.hashes[:n]
		ps.chainHi = ps.chainHi[:n]
		ps.htOffsets = ps.htOffsets[:n]
		ps.hashSalts = ps.hashSalts[:n]
		ps.addresses = ps.addresses[:n]
		ps.statePlaces = ps.statePlaces[:n]
		ps.selection = ps.selection[:n]
		ps.emptyVector = ps.emptyVector[:n]
		ps.compareVector = ps.compareVector[:n]
		ps.noMatchVector = ps.noMatchVector[:n]
		ps.newGroups = ps.newGroups[:n]
		return
	}
	ps.hashes = make([]uint64, n)
	ps.chainHi = make([]uint64, n)
	ps.htOffsets = make([]int, n)
	ps.hashSalts = make([]uint16, n)
	ps.addresses = make([]uintptr, n)
	ps.statePlaces = make([]StateAddr, n)
	ps.selection = make([]int, n)
	ps.emptyVector = make([]int, n)
	ps.compareVector = make([]int, n)
	ps.noMatchVector = make([]int, n)
	ps.newGroups = make([]int, n)
}

// adjust hashes the group columns and derives the initial
// probe position and salt for every row of the batch.
func (ps *ProbeState) adjust(groupCols []vector.Column, n int, mask uint64) {
	vector.HashKeys(groupCols, n, ps.hashes, ps.chainHi)
	for i := 0; i < n; i++ {
		ps.htOffsets[i] = int(ps.hashes[i] & mask)
		ps.hashSalts[i] = saltOf(ps.hashes[i])
		ps.selection[i] = i
	}
}
