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

package vector

import (
	"math/big"
	"math/bits"

	"github.com/holiman/uint256"
)

// Int128 is a two's-complement 128-bit integer
// stored as little-endian 64-bit limbs. It backs
// the Decimal128 column kind.
type Int128 struct {
	Lo, Hi uint64
}

// Int128FromInt64 sign-extends v to 128 bits.
func Int128FromInt64(v int64) Int128 {
	x := Int128{Lo: uint64(v)}
	if v < 0 {
		x.Hi = ^uint64(0)
	}
	return x
}

// Sign returns -1, 0 or +1.
func (x Int128) Sign() int {
	if x.Hi&(1<<63) != 0 {
		return -1
	}
	if x.Lo == 0 && x.Hi == 0 {
		return 0
	}
	return 1
}

// Add returns x+y and whether the signed addition overflowed.
func (x Int128) Add(y Int128) (Int128, bool) {
	lo, carry := bits.Add64(x.Lo, y.Lo, 0)
	hi, _ := bits.Add64(x.Hi, y.Hi, carry)
	r := Int128{Lo: lo, Hi: hi}
	// same-sign operands with a different-sign result
	ovf := (x.Hi^y.Hi)&(1<<63) == 0 && (x.Hi^r.Hi)&(1<<63) != 0
	return r, ovf
}

// Neg returns -x (wrapping at the minimum value).
func (x Int128) Neg() Int128 {
	lo, borrow := bits.Sub64(0, x.Lo, 0)
	hi, _ := bits.Sub64(0, x.Hi, borrow)
	return Int128{Lo: lo, Hi: hi}
}

// Abs returns |x| as an unsigned magnitude.
// The minimum value wraps to itself, which compares
// above every 127-bit magnitude and is what the
// precision checks want.
func (x Int128) Abs() Int128 {
	if x.Sign() < 0 {
		return x.Neg()
	}
	return x
}

// CmpAbs compares |x| and |y| as unsigned 128-bit values.
func (x Int128) CmpAbs(y Int128) int {
	a, b := x.Abs(), y.Abs()
	if a.Hi != b.Hi {
		if a.Hi < b.Hi {
			return -1
		}
		return 1
	}
	if a.Lo != b.Lo {
		if a.Lo < b.Lo {
			return -1
		}
		return 1
	}
	return 0
}

// Cmp compares x and y as signed values.
func (x Int128) Cmp(y Int128) int {
	// flip the sign bit so the comparison is unsigned
	xh := x.Hi ^ (1 << 63)
	yh := y.Hi ^ (1 << 63)
	if xh != yh {
		if xh < yh {
			return -1
		}
		return 1
	}
	if x.Lo != y.Lo {
		if x.Lo < y.Lo {
			return -1
		}
		return 1
	}
	return 0
}

func (x Int128) big() *big.Int {
	b := new(big.Int)
	if x.Sign() < 0 {
		n := x.Neg()
		b.SetUint64(n.Hi).Lsh(b, 64).Add(b, new(big.Int).SetUint64(n.Lo))
		return b.Neg(b)
	}
	b.SetUint64(x.Hi).Lsh(b, 64)
	return b.Add(b, new(big.Int).SetUint64(x.Lo))
}

func (x Int128) String() string { return x.big().String() }

// Pow10x128 returns 10^p, or false if 10^p does
// not fit in 128 bits (p > 38).
func Pow10x128(p int) (Int128, bool) {
	if p < 0 || p > 38 {
		return Int128{}, false
	}
	x := Int128FromInt64(1)
	ten := Int128FromInt64(10)
	for i := 0; i < p; i++ {
		hi, lo := bits.Mul64(x.Lo, ten.Lo)
		x = Int128{Lo: lo, Hi: hi + x.Hi*ten.Lo}
	}
	return x, true
}

// Int256 is a two's-complement 256-bit integer.
// It backs the Decimal256 column kind; the arithmetic
// is uint256's, reinterpreted as signed.
type Int256 struct {
	n uint256.Int
}

// Int256FromInt64 sign-extends v to 256 bits.
func Int256FromInt64(v int64) Int256 {
	var x Int256
	if v < 0 {
		x.n.SetUint64(uint64(-v))
		x.n.Neg(&x.n)
	} else {
		x.n.SetUint64(uint64(v))
	}
	return x
}

// Int256FromLimbs builds an Int256 from little-endian
// 64-bit limbs, as stored in a Decimal256 column.
func Int256FromLimbs(limbs [4]uint64) Int256 {
	return Int256{n: uint256.Int(limbs)}
}

// Limbs returns the little-endian 64-bit limbs.
func (x Int256) Limbs() [4]uint64 { return [4]uint64(x.n) }

// Sign returns -1, 0 or +1.
func (x Int256) Sign() int { return x.n.Sign() }

// Add returns x+y and whether the signed addition overflowed.
func (x Int256) Add(y Int256) (Int256, bool) {
	var r Int256
	r.n.Add(&x.n, &y.n)
	sx := x.n[3] >> 63
	sy := y.n[3] >> 63
	sr := r.n[3] >> 63
	return r, sx == sy && sx != sr
}

// Neg returns -x.
func (x Int256) Neg() Int256 {
	var r Int256
	r.n.Neg(&x.n)
	return r
}

// CmpAbs compares |x| and |y| as unsigned 256-bit values.
func (x Int256) CmpAbs(y Int256) int {
	a, b := x.n, y.n
	if x.Sign() < 0 {
		a.Neg(&x.n)
	}
	if y.Sign() < 0 {
		b.Neg(&y.n)
	}
	return a.Cmp(&b)
}

// Cmp compares x and y as signed values.
func (x Int256) Cmp(y Int256) int {
	if x.n.Slt(&y.n) {
		return -1
	}
	if x.n.Sgt(&y.n) {
		return 1
	}
	return 0
}

func (x Int256) String() string {
	if x.Sign() < 0 {
		n := x.Neg()
		return "-" + n.n.Dec()
	}
	return x.n.Dec()
}

// Pow10x256 returns 10^p, or false if 10^p does
// not fit in 256 bits (p > 76).
func Pow10x256(p int) (Int256, bool) {
	if p < 0 || p > 76 {
		return Int256{}, false
	}
	var x Int256
	ten := uint256.NewInt(10)
	x.n.Exp(ten, uint256.NewInt(uint64(p)))
	return x, true
}
