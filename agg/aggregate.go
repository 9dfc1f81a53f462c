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

// Package agg implements the vectorized aggregation hash table:
// an open-addressed, salt-tagged directory over arena-backed
// payload pages, with batched linear probing and explicit
// aggregate-state lifecycle management.
//
// A Table is owned and mutated by exactly one worker; parallel
// aggregation builds one Table per worker and combines them at
// the end with Merge or over the wire with snapshots.
package agg

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/crestdb/crest/vector"
)

// StateAddr is the address of one aggregate state inside
// an arena-allocated state block. States never move, so
// the address stays valid for the table's lifetime.
type StateAddr uintptr

// Add offsets the address by off bytes.
func (a StateAddr) Add(off int) StateAddr {
	return a + StateAddr(off)
}

// Bytes returns the n bytes at the address.
func (a StateAddr) Bytes(n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(a)), n)
}

// Function is the contract an aggregate implements against
// the core. The core stores the state as raw bytes of
// StateSize length, StateAlign aligned, and never interprets
// it; the layout is private to the function.
type Function interface {
	// Name identifies the aggregate; it participates in
	// snapshot schema fingerprints, so two functions with
	// different semantics must not share a name.
	Name() string

	// Output is the kind of column Finalize appends to.
	Output() vector.Kind

	// StateSize and StateAlign describe the state layout.
	StateSize() int
	StateAlign() int

	// Init writes the initial state.
	Init(state StateAddr)

	// AccumulateKeys folds row i of args into
	// places[i]+offset for each i in [0, n).
	// The caller guarantees places is fully materialized.
	AccumulateKeys(places []StateAddr, offset int, args []vector.Column, n int) error

	// Merge folds src into dst. src is left untouched.
	Merge(dst, src StateAddr) error

	// Finalize appends the result to out and, if NeedsDrop
	// reports true, releases resources owned by the state.
	Finalize(state StateAddr, out *vector.Builder) error

	// NeedsDrop reports whether states own resources that
	// must be released by Finalize or DropState exactly once.
	NeedsDrop() bool

	// DropState releases a state without producing output.
	DropState(state StateAddr)
}

// StateMarshaler is implemented by aggregates whose state
// cannot be snapshotted as a plain byte copy. States that
// contain no pointers don't need it: the snapshot writer
// copies their StateSize bytes directly.
type StateMarshaler interface {
	// MarshaledSize is the fixed encoded size of one state.
	MarshaledSize() int
	// MarshalState appends the encoding of state to dst.
	MarshalState(state StateAddr, dst []byte) []byte
	// UnmarshalState overwrites state from src.
	UnmarshalState(state StateAddr, src []byte) error
}

// plainState provides the no-op drop half of Function for
// aggregates whose states are plain accumulator bytes.
type plainState struct{}

func (plainState) NeedsDrop() bool     { return false }
func (plainState) DropState(StateAddr) {}

// little-endian state accessors; aggregate states are raw
// bytes so that they can live in arena memory the collector
// never scans

func getuint64(b []byte, idx int) uint64 {
	return binary.LittleEndian.Uint64(b[idx*8:])
}

func setuint64(b []byte, idx int, val uint64) {
	binary.LittleEndian.PutUint64(b[idx*8:], val)
}

func getint64(b []byte, idx int) int64 {
	return int64(getuint64(b, idx))
}

func setint64(b []byte, idx int, val int64) {
	setuint64(b, idx, uint64(val))
}

func getfloat64(b []byte, idx int) float64 {
	return math.Float64frombits(getuint64(b, idx))
}

func setfloat64(b []byte, idx int, val float64) {
	setuint64(b, idx, math.Float64bits(val))
}
