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

// Builder is an append-only sink that yields a Column.
type Builder struct {
	kind     Kind
	n        int
	data     []byte
	offs     []uint32 // Bytes only
	validity []byte
	anyNull  bool
}

// NewBuilder constructs a Builder for values of
// the given kind with room for capacity rows.
func NewBuilder(kind Kind, capacity int) *Builder {
	if capacity < 0 {
		capacity = 0
	}
	b := &Builder{kind: kind}
	if w := kind.Width(); w > 0 {
		b.data = make([]byte, 0, capacity*w)
	} else {
		b.offs = append(make([]uint32, 0, capacity+1), 0)
	}
	return b
}

// Kind returns the kind of column being built.
func (b *Builder) Kind() Kind { return b.kind }

// Len returns the number of rows appended so far.
func (b *Builder) Len() int { return b.n }

func (b *Builder) check(k Kind) {
	if b.kind != k {
		panic(fmt.Sprintf("vector: %s append on %s builder", k, b.kind))
	}
}

// one appended row, valid or not
func (b *Builder) grow(valid bool) {
	if cap(b.validity)*8 < b.n+1 {
		next := make([]byte, ints.ChunkCount(uint(b.n+1), 8), ints.ChunkCount(uint(2*(b.n+1)), 8))
		copy(next, b.validity)
		b.validity = next
	}
	b.validity = b.validity[:ints.ChunkCount(uint(b.n+1), 8)]
	if valid {
		ints.SetBit(b.validity, b.n)
	} else {
		ints.ClearBit(b.validity, b.n)
		b.anyNull = true
	}
	b.n++
}

// AppendNull appends a null row.
func (b *Builder) AppendNull() {
	if w := b.kind.Width(); w > 0 {
		var zero [32]byte
		b.data = append(b.data, zero[:w]...)
	} else {
		b.offs = append(b.offs, uint32(len(b.data)))
	}
	b.grow(false)
}

// AppendFixed appends the raw little-endian encoding
// of one fixed-width value.
func (b *Builder) AppendFixed(raw []byte) {
	w := b.kind.Width()
	if w != len(raw) {
		panic(fmt.Sprintf("vector: AppendFixed of %d bytes on %s builder", len(raw), b.kind))
	}
	b.data = append(b.data, raw...)
	b.grow(true)
}

// AppendInt8 appends one int8 value.
func (b *Builder) AppendInt8(v int8) {
	b.check(Int8)
	b.data = append(b.data, byte(v))
	b.grow(true)
}

// AppendInt16 appends one int16 value.
func (b *Builder) AppendInt16(v int16) {
	b.check(Int16)
	b.data = binary.LittleEndian.AppendUint16(b.data, uint16(v))
	b.grow(true)
}

// AppendInt32 appends one int32 value.
func (b *Builder) AppendInt32(v int32) {
	b.check(Int32)
	b.data = binary.LittleEndian.AppendUint32(b.data, uint32(v))
	b.grow(true)
}

// AppendInt64 appends one int64 value.
func (b *Builder) AppendInt64(v int64) {
	b.check(Int64)
	b.data = binary.LittleEndian.AppendUint64(b.data, uint64(v))
	b.grow(true)
}

// AppendFloat32 appends one float32 value.
func (b *Builder) AppendFloat32(v float32) {
	b.check(Float32)
	b.data = binary.LittleEndian.AppendUint32(b.data, math.Float32bits(v))
	b.grow(true)
}

// AppendFloat64 appends one float64 value.
func (b *Builder) AppendFloat64(v float64) {
	b.check(Float64)
	b.data = binary.LittleEndian.AppendUint64(b.data, math.Float64bits(v))
	b.grow(true)
}

// AppendBool appends one bool value.
func (b *Builder) AppendBool(v bool) {
	b.check(Bool)
	if v {
		b.data = append(b.data, 1)
	} else {
		b.data = append(b.data, 0)
	}
	b.grow(true)
}

// AppendBytes appends one variable-length value.
func (b *Builder) AppendBytes(v []byte) {
	b.check(Bytes)
	b.data = append(b.data, v...)
	b.offs = append(b.offs, uint32(len(b.data)))
	b.grow(true)
}

// AppendDate32 appends one date value (days since the epoch).
func (b *Builder) AppendDate32(v int32) {
	b.check(Date32)
	b.data = binary.LittleEndian.AppendUint32(b.data, uint32(v))
	b.grow(true)
}

// AppendTimestamp appends one timestamp value (epoch microseconds).
func (b *Builder) AppendTimestamp(v int64) {
	b.check(Timestamp)
	b.data = binary.LittleEndian.AppendUint64(b.data, uint64(v))
	b.grow(true)
}

// AppendDecimal128 appends one 128-bit decimal value.
func (b *Builder) AppendDecimal128(v Int128) {
	b.check(Decimal128)
	b.data = binary.LittleEndian.AppendUint64(b.data, v.Lo)
	b.data = binary.LittleEndian.AppendUint64(b.data, v.Hi)
	b.grow(true)
}

// AppendDecimal256 appends one 256-bit decimal value.
func (b *Builder) AppendDecimal256(v Int256) {
	b.check(Decimal256)
	limbs := v.Limbs()
	for _, l := range limbs {
		b.data = binary.LittleEndian.AppendUint64(b.data, l)
	}
	b.grow(true)
}

// Finish returns the built Column and resets the Builder.
func (b *Builder) Finish() Column {
	col := Column{
		kind: b.kind,
		n:    b.n,
		data: b.data,
		offs: b.offs,
	}
	if b.anyNull {
		col.validity = b.validity
	}
	b.n = 0
	b.data = nil
	b.validity = nil
	b.anyNull = false
	if b.kind == Bytes {
		b.offs = []uint32{0}
	} else {
		b.offs = nil
	}
	return col
}
