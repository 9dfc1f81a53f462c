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
)

var (
	// ErrOverflow is wrapped by aggregate functions whose
	// accumulation exceeds the result type's range or the
	// declared decimal precision.
	ErrOverflow = errors.New("aggregate overflow")

	// ErrInvalidArgument is wrapped when batch lengths,
	// argument column counts, or column types don't match
	// what the table was constructed with.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSnapshot is wrapped by snapshot encoding and
	// decoding failures (unsupported aggregate state,
	// bad framing, fingerprint or checksum mismatch).
	ErrSnapshot = errors.New("bad snapshot")
)
