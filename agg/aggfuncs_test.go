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
	"errors"
	"math"
	"testing"
	"unsafe"

	"github.com/crestdb/crest/vector"
)

// a standalone aligned state for unit-testing one aggregate
func newState(t *testing.T, ag Function) StateAddr {
	t.Helper()
	buf := make([]uint64, (ag.StateSize()+7)/8)
	addr := StateAddr(unsafe.Pointer(&buf[0]))
	ag.Init(addr)
	// the test keeps buf alive through the returned address
	t.Cleanup(func() { _ = buf })
	return addr
}

func accumulateOne(t *testing.T, ag Function, state StateAddr, args []vector.Column, n int) error {
	t.Helper()
	places := make([]StateAddr, n)
	for i := range places {
		places[i] = state
	}
	return ag.AccumulateKeys(places, 0, args, n)
}

func TestSumIntOverflow(t *testing.T) {
	ag := NewSumInt64()
	st := newState(t, ag)
	if err := accumulateOne(t, ag, st, []vector.Column{int64Col(math.MaxInt64)}, 1); err != nil {
		t.Fatal(err)
	}
	err := accumulateOne(t, ag, st, []vector.Column{int64Col(1)}, 1)
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("err = %v, want overflow", err)
	}
	// negative direction
	st2 := newState(t, ag)
	if err := accumulateOne(t, ag, st2, []vector.Column{int64Col(math.MinInt64)}, 1); err != nil {
		t.Fatal(err)
	}
	if err := accumulateOne(t, ag, st2, []vector.Column{int64Col(-1)}, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("err = %v, want overflow", err)
	}
}

func TestSumFloatCompensation(t *testing.T) {
	ag := NewSumFloat64()
	st := newState(t, ag)
	// naive summation loses the small addend entirely
	vb := vector.NewBuilder(vector.Float64, 3)
	vb.AppendFloat64(1e16)
	vb.AppendFloat64(1)
	vb.AppendFloat64(-1e16)
	col := vb.Finish()
	if err := accumulateOne(t, ag, st, []vector.Column{col}, 3); err != nil {
		t.Fatal(err)
	}
	out := vector.NewBuilder(vector.Float64, 1)
	if err := ag.Finalize(st, out); err != nil {
		t.Fatal(err)
	}
	res := out.Finish()
	if got := res.Float64(0); got != 1 {
		t.Fatalf("compensated sum = %v, want 1", got)
	}
}

func TestSumFloatMerge(t *testing.T) {
	ag := NewSumFloat64()
	a := newState(t, ag)
	b := newState(t, ag)
	fcol := func(vals ...float64) vector.Column {
		vb := vector.NewBuilder(vector.Float64, len(vals))
		for _, v := range vals {
			vb.AppendFloat64(v)
		}
		return vb.Finish()
	}
	if err := accumulateOne(t, ag, a, []vector.Column{fcol(1.5, 2.5)}, 2); err != nil {
		t.Fatal(err)
	}
	if err := accumulateOne(t, ag, b, []vector.Column{fcol(4)}, 1); err != nil {
		t.Fatal(err)
	}
	if err := ag.Merge(a, b); err != nil {
		t.Fatal(err)
	}
	out := vector.NewBuilder(vector.Float64, 1)
	if err := ag.Finalize(a, out); err != nil {
		t.Fatal(err)
	}
	res := out.Finish()
	if got := res.Float64(0); got != 8 {
		t.Fatalf("merged sum = %v, want 8", got)
	}
}

func TestMinMaxAllNull(t *testing.T) {
	for _, ag := range []Function{NewMinInt64(), NewMaxInt64()} {
		st := newState(t, ag)
		if err := accumulateOne(t, ag, st, []vector.Column{int64ColN(nil, nil)}, 2); err != nil {
			t.Fatal(err)
		}
		out := vector.NewBuilder(vector.Int64, 1)
		if err := ag.Finalize(st, out); err != nil {
			t.Fatal(err)
		}
		res := out.Finish()
		if !res.IsNull(0) {
			t.Errorf("%s over all-null input must finalize to null", ag.Name())
		}
	}
}

func TestAvgAllNull(t *testing.T) {
	ag := NewAvgInt64()
	st := newState(t, ag)
	if err := accumulateOne(t, ag, st, []vector.Column{int64ColN(nil)}, 1); err != nil {
		t.Fatal(err)
	}
	out := vector.NewBuilder(vector.Float64, 1)
	if err := ag.Finalize(st, out); err != nil {
		t.Fatal(err)
	}
	res := out.Finish()
	if !res.IsNull(0) {
		t.Error("avg over all-null input must finalize to null")
	}
}

func TestCountSkipsNulls(t *testing.T) {
	ag := NewCount()
	st := newState(t, ag)
	if err := accumulateOne(t, ag, st, []vector.Column{int64ColN(ptr(1), nil, ptr(3))}, 3); err != nil {
		t.Fatal(err)
	}
	out := vector.NewBuilder(vector.Int64, 1)
	if err := ag.Finalize(st, out); err != nil {
		t.Fatal(err)
	}
	res := out.Finish()
	if got := res.Int64(0); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
}

func TestSumDecimal256(t *testing.T) {
	ag, err := NewSumDecimal(vector.Decimal256, 0)
	if err != nil {
		t.Fatal(err)
	}
	st := newState(t, ag)
	vb := vector.NewBuilder(vector.Decimal256, 3)
	vb.AppendDecimal256(vector.Int256FromInt64(math.MaxInt64))
	vb.AppendDecimal256(vector.Int256FromInt64(math.MaxInt64))
	vb.AppendDecimal256(vector.Int256FromInt64(-1))
	col := vb.Finish()
	if err := accumulateOne(t, ag, st, []vector.Column{col}, 3); err != nil {
		t.Fatal(err)
	}
	out := vector.NewBuilder(vector.Decimal256, 1)
	if err := ag.Finalize(st, out); err != nil {
		t.Fatal(err)
	}
	res := out.Finish()
	if got := res.Decimal256(0); got.String() != "18446744073709551613" {
		t.Fatalf("sum = %s", got.String())
	}
}

func TestSumDecimalBadKind(t *testing.T) {
	if _, err := NewSumDecimal(vector.Int64, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
	if _, err := NewSumDecimal(vector.Decimal128, 39); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
}
