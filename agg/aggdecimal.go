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
	"fmt"

	"github.com/crestdb/crest/vector"
)

// NewSumDecimal returns SUM over a Decimal128 or Decimal256
// argument. precision > 0 bounds the magnitude of the running
// sum to |sum| < 10^precision; precision == 0 bounds it only
// by the width of the decimal. Accumulation reports ErrOverflow
// when the bound is exceeded.
func NewSumDecimal(kind vector.Kind, precision int) (Function, error) {
	switch kind {
	case vector.Decimal128:
		f := sumDec128Func{}
		if precision > 0 {
			bound, ok := vector.Pow10x128(precision)
			if !ok {
				return nil, fmt.Errorf("sum_decimal128: precision %d: %w", precision, ErrInvalidArgument)
			}
			f.bounded = true
			f.bound = bound
		}
		return f, nil
	case vector.Decimal256:
		f := sumDec256Func{}
		if precision > 0 {
			bound, ok := vector.Pow10x256(precision)
			if !ok {
				return nil, fmt.Errorf("sum_decimal256: precision %d: %w", precision, ErrInvalidArgument)
			}
			f.bounded = true
			f.bound = bound
		}
		return f, nil
	default:
		return nil, fmt.Errorf("sum_decimal: %s is not a decimal kind: %w", kind, ErrInvalidArgument)
	}
}

// state: [sum i128] (16 bytes, little-endian limbs)
type sumDec128Func struct {
	plainState
	bounded bool
	bound   vector.Int128
}

func (sumDec128Func) Name() string        { return "sum_decimal128" }
func (sumDec128Func) Output() vector.Kind { return vector.Decimal128 }
func (sumDec128Func) StateSize() int      { return 16 }
func (sumDec128Func) StateAlign() int     { return 8 }

func (sumDec128Func) Init(state StateAddr) {
	st := state.Bytes(16)
	setuint64(st, 0, 0)
	setuint64(st, 1, 0)
}

func loadInt128(st []byte) vector.Int128 {
	return vector.Int128{
		Lo: binary.LittleEndian.Uint64(st),
		Hi: binary.LittleEndian.Uint64(st[8:]),
	}
}

func storeInt128(st []byte, v vector.Int128) {
	binary.LittleEndian.PutUint64(st, v.Lo)
	binary.LittleEndian.PutUint64(st[8:], v.Hi)
}

func (f sumDec128Func) add(st []byte, v vector.Int128) error {
	sum, ovf := loadInt128(st).Add(v)
	if ovf {
		return fmt.Errorf("sum_decimal128: %w", ErrOverflow)
	}
	if f.bounded && sum.CmpAbs(f.bound) >= 0 {
		return fmt.Errorf("sum_decimal128: magnitude exceeds precision: %w", ErrOverflow)
	}
	storeInt128(st, sum)
	return nil
}

func (f sumDec128Func) AccumulateKeys(places []StateAddr, offset int, args []vector.Column, n int) error {
	col, err := oneArg("sum_decimal128", vector.Decimal128, args, n)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		if err := f.add(places[i].Add(offset).Bytes(16), col.Decimal128(i)); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

func (f sumDec128Func) Merge(dst, src StateAddr) error {
	return f.add(dst.Bytes(16), loadInt128(src.Bytes(16)))
}

func (f sumDec128Func) Finalize(state StateAddr, out *vector.Builder) error {
	out.AppendDecimal128(loadInt128(state.Bytes(16)))
	return nil
}

// state: [sum i256] (32 bytes, little-endian limbs)
type sumDec256Func struct {
	plainState
	bounded bool
	bound   vector.Int256
}

func (sumDec256Func) Name() string        { return "sum_decimal256" }
func (sumDec256Func) Output() vector.Kind { return vector.Decimal256 }
func (sumDec256Func) StateSize() int      { return 32 }
func (sumDec256Func) StateAlign() int     { return 8 }

func (sumDec256Func) Init(state StateAddr) {
	st := state.Bytes(32)
	for i := 0; i < 4; i++ {
		setuint64(st, i, 0)
	}
}

func loadInt256(st []byte) vector.Int256 {
	var limbs [4]uint64
	for i := range limbs {
		limbs[i] = binary.LittleEndian.Uint64(st[i*8:])
	}
	return vector.Int256FromLimbs(limbs)
}

func storeInt256(st []byte, v vector.Int256) {
	limbs := v.Limbs()
	for i := range limbs {
		binary.LittleEndian.PutUint64(st[i*8:], limbs[i])
	}
}

func (f sumDec256Func) add(st []byte, v vector.Int256) error {
	sum, ovf := loadInt256(st).Add(v)
	if ovf {
		return fmt.Errorf("sum_decimal256: %w", ErrOverflow)
	}
	if f.bounded && sum.CmpAbs(f.bound) >= 0 {
		return fmt.Errorf("sum_decimal256: magnitude exceeds precision: %w", ErrOverflow)
	}
	storeInt256(st, sum)
	return nil
}

func (f sumDec256Func) AccumulateKeys(places []StateAddr, offset int, args []vector.Column, n int) error {
	col, err := oneArg("sum_decimal256", vector.Decimal256, args, n)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		if err := f.add(places[i].Add(offset).Bytes(32), col.Decimal256(i)); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

func (f sumDec256Func) Merge(dst, src StateAddr) error {
	return f.add(dst.Bytes(32), loadInt256(src.Bytes(32)))
}

func (f sumDec256Func) Finalize(state StateAddr, out *vector.Builder) error {
	out.AppendDecimal256(loadInt256(state.Bytes(32)))
	return nil
}
