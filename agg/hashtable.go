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

	"github.com/crestdb/crest/arena"
	"github.com/crestdb/crest/ints"
	"github.com/crestdb/crest/vector"
)

const (
	// minCapacity is the smallest directory size.
	minCapacity = 128

	// the directory resizes before len could exceed
	// capacity/loadFactor, i.e. it keeps
	// len*loadFactorNum <= capacity*loadFactorDen
	loadFactorNum = 3
	loadFactorDen = 2
)

// Table is the aggregation hash table: a packed-entry
// directory over an arena-backed payload.
//
// A Table is mutated by exactly one worker. Parallel
// aggregation builds one Table per worker and combines
// the results with Merge or snapshots.
type Table struct {
	mem      *arena.Arena
	payload  *payload
	entries  []entry
	capacity int
	tuning   Tuning

	// set once all states have been finalized, moved out,
	// or dropped; makes Close idempotent
	done bool
}

// New constructs a Table over the given arena with default
// tuning. The arena must outlive the Table; releasing it is
// the caller's responsibility (after Close or FinalizeInto).
func New(mem *arena.Arena, groups []vector.Kind, aggrs []Function) *Table {
	t, err := NewWithTuning(mem, groups, aggrs, DefaultTuning())
	if err != nil {
		// the default tuning always validates
		panic(err)
	}
	return t
}

// NewWithTuning constructs a Table with explicit tuning.
func NewWithTuning(mem *arena.Arena, groups []vector.Kind, aggrs []Function, tuning Tuning) (*Table, error) {
	if err := tuning.validate(); err != nil {
		return nil, err
	}
	for _, k := range groups {
		if k == vector.Invalid {
			return nil, fmt.Errorf("invalid group column kind: %w", ErrInvalidArgument)
		}
	}
	return &Table{
		mem:      mem,
		payload:  newPayload(mem, groups, aggrs, tuning.RowsPerPage),
		entries:  make([]entry, tuning.InitialCapacity),
		capacity: tuning.InitialCapacity,
		tuning:   tuning,
	}, nil
}

// Len returns the number of distinct groups in the table.
func (t *Table) Len() int { return t.payload.len() }

// Capacity returns the current directory size.
func (t *Table) Capacity() int { return t.capacity }

func (t *Table) resizeThreshold() int {
	return t.capacity * loadFactorDen / loadFactorNum
}

// reserve grows the directory so that n more rows can be
// placed without violating the load factor, even when every
// row of the batch creates a new group.
func (t *Table) reserve(n int) {
	if t.capacity-t.Len() > n && t.Len()+n <= t.resizeThreshold() {
		return
	}
	newCapacity := t.capacity * 2
	for newCapacity-t.Len() <= n ||
		(t.Len()+n)*loadFactorNum > newCapacity*loadFactorDen {
		newCapacity *= 2
	}
	t.resize(newCapacity)
}

// AddBatch ingests one batch of n rows: it groups the rows by
// the composite key in groupCols, creating directory entries,
// payload tuples and initialized states for unseen keys, and
// then folds row i of each args[j] into group i's j-th state.
// It returns the number of newly created groups.
//
// All group and argument columns must have length n, and
// len(args) must equal the number of aggregates. On an
// aggregate error the directory and payload remain intact;
// the failing aggregate's states for the batch are undefined.
func (t *Table) AddBatch(ps *ProbeState, groupCols []vector.Column, args [][]vector.Column, n int) (int, error) {
	if n == 0 {
		return 0, nil
	}
	if t.done {
		return 0, fmt.Errorf("table already finalized: %w", ErrInvalidArgument)
	}
	if len(args) != len(t.payload.aggrs) {
		return 0, fmt.Errorf("%d argument column sets for %d aggregates: %w",
			len(args), len(t.payload.aggrs), ErrInvalidArgument)
	}
	if len(groupCols) != len(t.payload.groups) {
		return 0, fmt.Errorf("%d group columns, want %d: %w",
			len(groupCols), len(t.payload.groups), ErrInvalidArgument)
	}
	for c := range groupCols {
		if groupCols[c].Kind() != t.payload.groups[c] {
			return 0, fmt.Errorf("group column %d is %s, want %s: %w",
				c, groupCols[c].Kind(), t.payload.groups[c], ErrInvalidArgument)
		}
		if groupCols[c].Len() != n {
			return 0, fmt.Errorf("group column %d has %d rows, want %d: %w",
				c, groupCols[c].Len(), n, ErrInvalidArgument)
		}
	}

	newGroups := t.probeAndCreate(ps, groupCols, n)

	for i := 0; i < n; i++ {
		tup := t.payload.tupleAt(ps.addresses[i])
		ps.statePlaces[i] = t.payload.stateAddrOf(tup)
	}
	for j, ag := range t.payload.aggrs {
		err := ag.AccumulateKeys(ps.statePlaces[:n], t.payload.stateAddrOffsets[j], args[j], n)
		if err != nil {
			return newGroups, fmt.Errorf("aggregate %d (%s): %w", j, ag.Name(), err)
		}
	}
	return newGroups, nil
}

// probeAndCreate places every row of the batch: after it
// returns, ps.addresses[i] points at row i's group tuple.
func (t *Table) probeAndCreate(ps *ProbeState, groupCols []vector.Column, n int) int {
	t.reserve(n)

	ps.reserve(n)
	ps.adjust(groupCols, n, uint64(t.capacity-1))

	newGroupCount := 0
	remaining := n
	sel := ps.selection
	next := ps.noMatchVector

	for remaining > 0 {
		newEntryCount := 0
		compareCount := 0
		noMatchCount := 0

		// classify: empty slot, salt match, or salt mismatch
		for i := 0; i < remaining; i++ {
			idx := sel[i]
			slot := ps.htOffsets[idx]
			e := t.entries[slot]
			switch {
			case e.empty():
				// occupy with a sentinel page number; the real
				// location is written after the row is appended
				t.entries[slot] = packEntry(ps.hashSalts[idx], 0, 1)
				ps.emptyVector[newEntryCount] = idx
				newEntryCount++
				ps.newGroups[newGroupCount] = idx
				newGroupCount++
			case e.salt() == ps.hashSalts[idx]:
				ps.compareVector[compareCount] = idx
				compareCount++
			default:
				next[noMatchCount] = idx
				noMatchCount++
			}
		}

		// append the new groups and fix up their entries
		if newEntryCount > 0 {
			start := t.payload.len()
			t.payload.appendRows(ps, ps.hashes, ps.emptyVector[:newEntryCount], groupCols)
			for k := 0; k < newEntryCount; k++ {
				idx := ps.emptyVector[k]
				row := start + k
				t.entries[ps.htOffsets[idx]] = packEntry(
					ps.hashSalts[idx],
					uint16(row%t.payload.rowsPerPage),
					uint32(row/t.payload.rowsPerPage)+1,
				)
			}
		}

		// resolve candidate tuples for the salt matches
		for i := 0; i < compareCount; i++ {
			idx := ps.compareVector[i]
			e := t.entries[ps.htOffsets[idx]]
			ps.addresses[idx] = t.payload.pagePtr(int(e.pageNr()-1)) +
				uintptr(int(e.pageOffset())*t.payload.tupleSize)
		}

		noMatchCount = t.payload.matchRows(groupCols, ps.addresses,
			ps.compareVector[:compareCount], next, noMatchCount)

		// advance the survivors by one linear-probe step
		for i := 0; i < noMatchCount; i++ {
			idx := next[i]
			ps.htOffsets[idx]++
			if ps.htOffsets[idx] >= t.capacity {
				ps.htOffsets[idx] = 0
			}
		}

		sel, next = next, sel
		remaining = noMatchCount
	}
	return newGroupCount
}

// resize rebuilds the directory at newCapacity from the hashes
// stored in the payload. Payload and state bytes are untouched;
// resize at the current capacity is observably a no-op.
func (t *Table) resize(newCapacity int) {
	mask := uint64(newCapacity - 1)
	entries := make([]entry, newCapacity)
	rpp := t.payload.rowsPerPage
	for row := 0; row < t.payload.len(); row++ {
		hash := t.payload.rowHash(row)
		slot := hash & mask
		for !entries[slot].empty() {
			slot = (slot + 1) & mask
		}
		entries[slot] = packEntry(saltOf(hash), uint16(row%rpp), uint32(row/rpp)+1)
	}
	t.entries = entries
	t.capacity = newCapacity
}

// Merge folds other into t: groups present in both have their
// states merged aggregate by aggregate; groups only in other
// are copied (with fresh initialized states) and then merged.
// other is left readable, but when any aggregate needs
// dropping its states are considered moved out: the caller
// must drop other without finalizing it.
func (t *Table) Merge(other *Table) error {
	if t.done || other.done {
		return fmt.Errorf("merging a finalized table: %w", ErrInvalidArgument)
	}
	if err := t.compatible(other); err != nil {
		return err
	}
	t.reserve(other.Len())
	for row := 0; row < other.payload.len(); row++ {
		src := other.payload.tuple(row)
		if err := t.mergeTuple(src, other.payload.stateAddrOf(src)); err != nil {
			return err
		}
	}
	// states that own resources now belong to t
	if t.needsDrop() {
		other.done = true
	}
	return nil
}

func (t *Table) compatible(other *Table) error {
	if len(t.payload.groups) != len(other.payload.groups) ||
		len(t.payload.aggrs) != len(other.payload.aggrs) {
		return fmt.Errorf("merging incompatible tables: %w", ErrInvalidArgument)
	}
	for c := range t.payload.groups {
		if t.payload.groups[c] != other.payload.groups[c] {
			return fmt.Errorf("group column %d: %s vs %s: %w",
				c, t.payload.groups[c], other.payload.groups[c], ErrInvalidArgument)
		}
	}
	for j := range t.payload.aggrs {
		if t.payload.aggrs[j].Name() != other.payload.aggrs[j].Name() {
			return fmt.Errorf("aggregate %d: %s vs %s: %w",
				j, t.payload.aggrs[j].Name(), other.payload.aggrs[j].Name(), ErrInvalidArgument)
		}
	}
	return nil
}

// mergeTuple looks up the group of a foreign tuple image by
// its stored hash, inserting a copy if it is absent, and then
// merges srcStates into the resident states.
func (t *Table) mergeTuple(src []byte, srcStates StateAddr) error {
	h := t.payload.tupleHash(src)
	mask := uint64(t.capacity - 1)
	slot := h & mask
	salt := saltOf(h)
	var dst StateAddr
	for {
		e := t.entries[slot]
		if e.empty() {
			row, _, addr := t.payload.appendTuple(src)
			t.entries[slot] = packEntry(salt,
				uint16(row%t.payload.rowsPerPage),
				uint32(row/t.payload.rowsPerPage)+1)
			dst = addr
			break
		}
		if e.salt() == salt {
			cand := t.payload.pagePtr(int(e.pageNr()-1)) +
				uintptr(int(e.pageOffset())*t.payload.tupleSize)
			tup := t.payload.tupleAt(cand)
			if t.payload.tupleEqual(tup, src) {
				dst = t.payload.stateAddrOf(tup)
				break
			}
		}
		slot = (slot + 1) & mask
	}
	for j, ag := range t.payload.aggrs {
		off := t.payload.stateAddrOffsets[j]
		if err := ag.Merge(dst.Add(off), srcStates.Add(off)); err != nil {
			return fmt.Errorf("aggregate %d (%s): %w", j, ag.Name(), err)
		}
	}
	return nil
}

// FinalizeInto emits one output row per group in payload
// insertion order: the group columns first, then each
// aggregate's result. Finalize doubles as the destructor for
// states that own resources, so after a full FinalizeInto the
// table is drop-safe and Close is a no-op.
func (t *Table) FinalizeInto(groupBuilders, aggBuilders []*vector.Builder) error {
	p := t.payload
	if t.done {
		return fmt.Errorf("table already finalized: %w", ErrInvalidArgument)
	}
	if len(groupBuilders) != len(p.groups) || len(aggBuilders) != len(p.aggrs) {
		return fmt.Errorf("%d+%d builders for %d group columns and %d aggregates: %w",
			len(groupBuilders), len(aggBuilders), len(p.groups), len(p.aggrs), ErrInvalidArgument)
	}
	for row := 0; row < p.len(); row++ {
		tup := p.tuple(row)
		for c, k := range p.groups {
			if !ints.TestBit(tup[:p.validityBytes], c) {
				groupBuilders[c].AppendNull()
				continue
			}
			off := p.groupOffsets[c]
			if k.Fixed() {
				groupBuilders[c].AppendFixed(tup[off : off+k.Width()])
			} else {
				groupBuilders[c].AppendBytes(readBytesSlot(tup, off))
			}
		}
		addr := p.stateAddrOf(tup)
		for j, ag := range p.aggrs {
			if err := ag.Finalize(addr.Add(p.stateAddrOffsets[j]), aggBuilders[j]); err != nil {
				return fmt.Errorf("aggregate %d (%s): %w", j, ag.Name(), err)
			}
		}
	}
	t.done = true
	return nil
}

func (t *Table) needsDrop() bool {
	for _, ag := range t.payload.aggrs {
		if ag.NeedsDrop() {
			return true
		}
	}
	return false
}

// Close drops every state that owns resources. It runs in time
// proportional to Len, touches only aggregates that need
// dropping, and is idempotent; FinalizeInto and a moved-out
// Merge make it a no-op.
func (t *Table) Close() {
	if t.done {
		return
	}
	p := t.payload
	for j, ag := range p.aggrs {
		if !ag.NeedsDrop() {
			continue
		}
		off := p.stateAddrOffsets[j]
		for row := 0; row < p.len(); row++ {
			addr := p.stateAddrOf(p.tuple(row))
			ag.DropState(addr.Add(off))
		}
	}
	t.done = true
}
