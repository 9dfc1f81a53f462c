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

// Package vector implements the typed column representation
// consumed and produced by the aggregation core.
//
// A Column is a length-tagged vector of values of a single Kind
// with an optional validity bitmap; a Builder is the append-only
// sink that produces one. Neither is safe for concurrent mutation.
package vector

import (
	"fmt"
)

// Kind enumerates the value types that may appear
// in group columns and aggregate arguments.
type Kind uint8

const (
	Invalid Kind = iota
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
	Bool
	Bytes
	Date32     // days since the unix epoch
	Timestamp  // microseconds since the unix epoch
	Decimal128 // two's-complement 128-bit integer
	Decimal256 // two's-complement 256-bit integer
)

// Width returns the number of bytes one value of
// kind k occupies in a column (and in a payload
// tuple). Bytes is variable-length and returns -1.
func (k Kind) Width() int {
	switch k {
	case Int8, Bool:
		return 1
	case Int16:
		return 2
	case Int32, Float32, Date32:
		return 4
	case Int64, Float64, Timestamp:
		return 8
	case Decimal128:
		return 16
	case Decimal256:
		return 32
	case Bytes:
		return -1
	default:
		panic(fmt.Sprintf("vector: Width of %s", k))
	}
}

// Fixed returns true if values of kind k
// have a fixed-width encoding.
func (k Kind) Fixed() bool { return k != Bytes }

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	case Bytes:
		return "bytes"
	case Date32:
		return "date32"
	case Timestamp:
		return "timestamp"
	case Decimal128:
		return "decimal128"
	case Decimal256:
		return "decimal256"
	default:
		return fmt.Sprintf("<Kind=%d>", int(k))
	}
}
