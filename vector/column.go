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
	"encoding/binary"
	"fmt"
	"math"

	"github.com/crestdb/crest/ints"
)

// Column is a length-tagged vector of values of one Kind.
//
// Fixed-width kinds store raw little-endian values back to back
// in data; Bytes stores concatenated value bytes in data with
// len+1 offsets. A nil validity bitmap means every row is valid;
// otherwise bit i set means row i is valid.
type Column struct {
	kind     Kind
	n        int
	data     []byte
	offs     []uint32 // Bytes only
	validity []byte
}

// Kind returns the column's value type.
func (c *Column) Kind() Kind { return c.kind }

// Len returns the number of rows.
func (c *Column) Len() int { return c.n }

// IsNull returns whether row i is null.
func (c *Column) IsNull(i int) bool {
	return c.validity != nil && !ints.TestBit(c.validity, i)
}

// FixedAt returns the raw little-endian encoding of
// row i of a fixed-width column.
func (c *Column) FixedAt(i int) []byte {
	w := c.kind.Width()
	return c.data[i*w : i*w+w]
}

// Bytes returns row i of a Bytes column.
func (c *Column) Bytes(i int) []byte {
	return c.data[c.offs[i]:c.offs[i+1]]
}

func (c *Column) check(k Kind) {
	if c.kind != k {
		panic(fmt.Sprintf("vector: %s access on %s column", k, c.kind))
	}
}

// Int8 returns row i of an Int8 column.
func (c *Column) Int8(i int) int8 {
	c.check(Int8)
	return int8(c.data[i])
}

// Int16 returns row i of an Int16 column.
func (c *Column) Int16(i int) int16 {
	c.check(Int16)
	return int16(binary.LittleEndian.Uint16(c.data[i*2:]))
}

// Int32 returns row i of an Int32 column.
func (c *Column) Int32(i int) int32 {
	c.check(Int32)
	return int32(binary.LittleEndian.Uint32(c.data[i*4:]))
}

// Int64 returns row i of an Int64 column.
func (c *Column) Int64(i int) int64 {
	c.check(Int64)
	return int64(binary.LittleEndian.Uint64(c.data[i*8:]))
}

// Float32 returns row i of a Float32 column.
func (c *Column) Float32(i int) float32 {
	c.check(Float32)
	return math.Float32frombits(binary.LittleEndian.Uint32(c.data[i*4:]))
}

// Float64 returns row i of a Float64 column.
func (c *Column) Float64(i int) float64 {
	c.check(Float64)
	return math.Float64frombits(binary.LittleEndian.Uint64(c.data[i*8:]))
}

// Bool returns row i of a Bool column.
func (c *Column) Bool(i int) bool {
	c.check(Bool)
	return c.data[i] != 0
}

// Date32 returns row i of a Date32 column as days since the epoch.
func (c *Column) Date32(i int) int32 {
	c.check(Date32)
	return int32(binary.LittleEndian.Uint32(c.data[i*4:]))
}

// Timestamp returns row i of a Timestamp column as epoch microseconds.
func (c *Column) Timestamp(i int) int64 {
	c.check(Timestamp)
	return int64(binary.LittleEndian.Uint64(c.data[i*8:]))
}

// Decimal128 returns row i of a Decimal128 column.
func (c *Column) Decimal128(i int) Int128 {
	c.check(Decimal128)
	return Int128{
		Lo: binary.LittleEndian.Uint64(c.data[i*16:]),
		Hi: binary.LittleEndian.Uint64(c.data[i*16+8:]),
	}
}

// Decimal256 returns row i of a Decimal256 column.
func (c *Column) Decimal256(i int) Int256 {
	c.check(Decimal256)
	var limbs [4]uint64
	for k := range limbs {
		limbs[k] = binary.LittleEndian.Uint64(c.data[i*32+k*8:])
	}
	return Int256FromLimbs(limbs)
}
