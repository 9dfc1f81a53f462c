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
	"math"

	"github.com/crestdb/crest/vector"
)

func oneArg(name string, kind vector.Kind, args []vector.Column, n int) (*vector.Column, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s: %d argument columns: %w", name, len(args), ErrInvalidArgument)
	}
	col := &args[0]
	if col.Kind() != kind {
		return nil, fmt.Errorf("%s: argument is %s, want %s: %w", name, col.Kind(), kind, ErrInvalidArgument)
	}
	if col.Len() < n {
		return nil, fmt.Errorf("%s: argument has %d rows, want %d: %w", name, col.Len(), n, ErrInvalidArgument)
	}
	return col, nil
}

// NewCountStar returns COUNT(*): it counts every row of
// the group and takes no argument columns.
func NewCountStar() Function { return countFunc{star: true} }

// NewCount returns COUNT(col): it counts the non-null rows
// of its single argument column.
func NewCount() Function { return countFunc{} }

// state: [count u64]
type countFunc struct {
	plainState
	star bool
}

func (c countFunc) Name() string {
	if c.star {
		return "count_star"
	}
	return "count"
}

func (c countFunc) Output() vector.Kind { return vector.Int64 }
func (c countFunc) StateSize() int      { return 8 }
func (c countFunc) StateAlign() int     { return 8 }

func (c countFunc) Init(state StateAddr) {
	setuint64(state.Bytes(8), 0, 0)
}

func (c countFunc) AccumulateKeys(places []StateAddr, offset int, args []vector.Column, n int) error {
	if c.star {
		if len(args) != 0 {
			return fmt.Errorf("count_star: %d argument columns: %w", len(args), ErrInvalidArgument)
		}
		for i := 0; i < n; i++ {
			st := places[i].Add(offset).Bytes(8)
			setuint64(st, 0, getuint64(st, 0)+1)
		}
		return nil
	}
	if len(args) != 1 {
		return fmt.Errorf("count: %d argument columns: %w", len(args), ErrInvalidArgument)
	}
	col := &args[0]
	if col.Len() < n {
		return fmt.Errorf("count: argument has %d rows, want %d: %w", col.Len(), n, ErrInvalidArgument)
	}
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		st := places[i].Add(offset).Bytes(8)
		setuint64(st, 0, getuint64(st, 0)+1)
	}
	return nil
}

func (c countFunc) Merge(dst, src StateAddr) error {
	d, s := dst.Bytes(8), src.Bytes(8)
	setuint64(d, 0, getuint64(d, 0)+getuint64(s, 0))
	return nil
}

func (c countFunc) Finalize(state StateAddr, out *vector.Builder) error {
	out.AppendInt64(int64(getuint64(state.Bytes(8), 0)))
	return nil
}

// NewSumInt64 returns SUM over an Int64 argument.
// Accumulation is overflow-checked.
func NewSumInt64() Function { return sumIntFunc{} }

// state: [sum i64]
type sumIntFunc struct {
	plainState
}

func (sumIntFunc) Name() string        { return "sum_int64" }
func (sumIntFunc) Output() vector.Kind { return vector.Int64 }
func (sumIntFunc) StateSize() int      { return 8 }
func (sumIntFunc) StateAlign() int     { return 8 }

func (sumIntFunc) Init(state StateAddr) {
	setint64(state.Bytes(8), 0, 0)
}

func addCheckedInt64(a, b int64) (int64, bool) {
	r := a + b
	return r, (a^b) >= 0 && (a^r) < 0
}

func (f sumIntFunc) AccumulateKeys(places []StateAddr, offset int, args []vector.Column, n int) error {
	col, err := oneArg("sum_int64", vector.Int64, args, n)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		st := places[i].Add(offset).Bytes(8)
		sum, ovf := addCheckedInt64(getint64(st, 0), col.Int64(i))
		if ovf {
			return fmt.Errorf("sum_int64 at row %d: %w", i, ErrOverflow)
		}
		setint64(st, 0, sum)
	}
	return nil
}

func (f sumIntFunc) Merge(dst, src StateAddr) error {
	d, s := dst.Bytes(8), src.Bytes(8)
	sum, ovf := addCheckedInt64(getint64(d, 0), getint64(s, 0))
	if ovf {
		return fmt.Errorf("sum_int64 merge: %w", ErrOverflow)
	}
	setint64(d, 0, sum)
	return nil
}

func (f sumIntFunc) Finalize(state StateAddr, out *vector.Builder) error {
	out.AppendInt64(getint64(state.Bytes(8), 0))
	return nil
}

// NewSumFloat64 returns SUM over a Float64 argument using
// Kahan-Babushka-Neumaier compensated summation.
func NewSumFloat64() Function { return sumFloatFunc{} }

// state: [sum f64][compensation f64]
type sumFloatFunc struct {
	plainState
}

func (sumFloatFunc) Name() string        { return "sum_float64" }
func (sumFloatFunc) Output() vector.Kind { return vector.Float64 }
func (sumFloatFunc) StateSize() int      { return 16 }
func (sumFloatFunc) StateAlign() int     { return 8 }

func (sumFloatFunc) Init(state StateAddr) {
	st := state.Bytes(16)
	setfloat64(st, 0, 0)
	setfloat64(st, 1, 0)
}

// neumaier performs one step of Kahan-Babushka-Neumaier
// summation: it adds x to (sum, c) and returns the new pair.
func neumaier(sum, x, c float64) (float64, float64) {
	t := sum + x
	if math.Abs(sum) >= math.Abs(x) {
		c += (sum - t) + x
	} else {
		c += (x - t) + sum
	}
	return t, c
}

func (f sumFloatFunc) AccumulateKeys(places []StateAddr, offset int, args []vector.Column, n int) error {
	col, err := oneArg("sum_float64", vector.Float64, args, n)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		st := places[i].Add(offset).Bytes(16)
		sum, c := neumaier(getfloat64(st, 0), col.Float64(i), getfloat64(st, 1))
		setfloat64(st, 0, sum)
		setfloat64(st, 1, c)
	}
	return nil
}

func (f sumFloatFunc) Merge(dst, src StateAddr) error {
	d, s := dst.Bytes(16), src.Bytes(16)
	sum, c := neumaier(getfloat64(d, 0), getfloat64(s, 0), getfloat64(d, 1))
	// the source compensation is treated as one more input
	sum, c = neumaier(sum, getfloat64(s, 1), c)
	setfloat64(d, 0, sum)
	setfloat64(d, 1, c)
	return nil
}

func (f sumFloatFunc) Finalize(state StateAddr, out *vector.Builder) error {
	st := state.Bytes(16)
	out.AppendFloat64(getfloat64(st, 0) + getfloat64(st, 1))
	return nil
}

// NewMinInt64 and NewMaxInt64 return MIN/MAX over an Int64
// argument; all-null groups finalize to null.
func NewMinInt64() Function { return minMaxIntFunc{} }

// NewMaxInt64 returns MAX over an Int64 argument.
func NewMaxInt64() Function { return minMaxIntFunc{max: true} }

// state: [value i64][seen u64]
type minMaxIntFunc struct {
	plainState
	max bool
}

func (f minMaxIntFunc) Name() string {
	if f.max {
		return "max_int64"
	}
	return "min_int64"
}

func (f minMaxIntFunc) Output() vector.Kind { return vector.Int64 }
func (f minMaxIntFunc) StateSize() int      { return 16 }
func (f minMaxIntFunc) StateAlign() int     { return 8 }

func (f minMaxIntFunc) Init(state StateAddr) {
	st := state.Bytes(16)
	setint64(st, 0, 0)
	setuint64(st, 1, 0)
}

func (f minMaxIntFunc) better(v, cur int64) bool {
	if f.max {
		return v > cur
	}
	return v < cur
}

func (f minMaxIntFunc) AccumulateKeys(places []StateAddr, offset int, args []vector.Column, n int) error {
	col, err := oneArg(f.Name(), vector.Int64, args, n)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		st := places[i].Add(offset).Bytes(16)
		v := col.Int64(i)
		if getuint64(st, 1) == 0 || f.better(v, getint64(st, 0)) {
			setint64(st, 0, v)
		}
		setuint64(st, 1, 1)
	}
	return nil
}

func (f minMaxIntFunc) Merge(dst, src StateAddr) error {
	d, s := dst.Bytes(16), src.Bytes(16)
	if getuint64(s, 1) == 0 {
		return nil
	}
	v := getint64(s, 0)
	if getuint64(d, 1) == 0 || f.better(v, getint64(d, 0)) {
		setint64(d, 0, v)
	}
	setuint64(d, 1, 1)
	return nil
}

func (f minMaxIntFunc) Finalize(state StateAddr, out *vector.Builder) error {
	st := state.Bytes(16)
	if getuint64(st, 1) == 0 {
		out.AppendNull()
		return nil
	}
	out.AppendInt64(getint64(st, 0))
	return nil
}

// NewMinFloat64 returns MIN over a Float64 argument.
func NewMinFloat64() Function { return minMaxFloatFunc{} }

// NewMaxFloat64 returns MAX over a Float64 argument.
func NewMaxFloat64() Function { return minMaxFloatFunc{max: true} }

// state: [value f64][seen u64]
type minMaxFloatFunc struct {
	plainState
	max bool
}

func (f minMaxFloatFunc) Name() string {
	if f.max {
		return "max_float64"
	}
	return "min_float64"
}

func (f minMaxFloatFunc) Output() vector.Kind { return vector.Float64 }
func (f minMaxFloatFunc) StateSize() int      { return 16 }
func (f minMaxFloatFunc) StateAlign() int     { return 8 }

func (f minMaxFloatFunc) Init(state StateAddr) {
	st := state.Bytes(16)
	setfloat64(st, 0, 0)
	setuint64(st, 1, 0)
}

func (f minMaxFloatFunc) better(v, cur float64) bool {
	if f.max {
		return v > cur || math.IsNaN(cur)
	}
	return v < cur || math.IsNaN(cur)
}

func (f minMaxFloatFunc) AccumulateKeys(places []StateAddr, offset int, args []vector.Column, n int) error {
	col, err := oneArg(f.Name(), vector.Float64, args, n)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		st := places[i].Add(offset).Bytes(16)
		v := col.Float64(i)
		if getuint64(st, 1) == 0 || f.better(v, getfloat64(st, 0)) {
			setfloat64(st, 0, v)
		}
		setuint64(st, 1, 1)
	}
	return nil
}

func (f minMaxFloatFunc) Merge(dst, src StateAddr) error {
	d, s := dst.Bytes(16), src.Bytes(16)
	if getuint64(s, 1) == 0 {
		return nil
	}
	v := getfloat64(s, 0)
	if getuint64(d, 1) == 0 || f.better(v, getfloat64(d, 0)) {
		setfloat64(d, 0, v)
	}
	setuint64(d, 1, 1)
	return nil
}

func (f minMaxFloatFunc) Finalize(state StateAddr, out *vector.Builder) error {
	st := state.Bytes(16)
	if getuint64(st, 1) == 0 {
		out.AppendNull()
		return nil
	}
	out.AppendFloat64(getfloat64(st, 0))
	return nil
}

// NewAvgInt64 returns AVG over an Int64 argument; the
// result is a Float64 and all-null groups finalize to null.
func NewAvgInt64() Function { return avgIntFunc{} }

// state: [sum i64][count u64]
type avgIntFunc struct {
	plainState
}

func (avgIntFunc) Name() string        { return "avg_int64" }
func (avgIntFunc) Output() vector.Kind { return vector.Float64 }
func (avgIntFunc) StateSize() int      { return 16 }
func (avgIntFunc) StateAlign() int     { return 8 }

func (avgIntFunc) Init(state StateAddr) {
	st := state.Bytes(16)
	setint64(st, 0, 0)
	setuint64(st, 1, 0)
}

func (f avgIntFunc) AccumulateKeys(places []StateAddr, offset int, args []vector.Column, n int) error {
	col, err := oneArg("avg_int64", vector.Int64, args, n)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		st := places[i].Add(offset).Bytes(16)
		sum, ovf := addCheckedInt64(getint64(st, 0), col.Int64(i))
		if ovf {
			return fmt.Errorf("avg_int64 at row %d: %w", i, ErrOverflow)
		}
		setint64(st, 0, sum)
		setuint64(st, 1, getuint64(st, 1)+1)
	}
	return nil
}

func (f avgIntFunc) Merge(dst, src StateAddr) error {
	d, s := dst.Bytes(16), src.Bytes(16)
	sum, ovf := addCheckedInt64(getint64(d, 0), getint64(s, 0))
	if ovf {
		return fmt.Errorf("avg_int64 merge: %w", ErrOverflow)
	}
	setint64(d, 0, sum)
	setuint64(d, 1, getuint64(d, 1)+getuint64(s, 1))
	return nil
}

func (f avgIntFunc) Finalize(state StateAddr, out *vector.Builder) error {
	st := state.Bytes(16)
	count := getuint64(st, 1)
	if count == 0 {
		out.AppendNull()
		return nil
	}
	out.AppendFloat64(float64(getint64(st, 0)) / float64(count))
	return nil
}
