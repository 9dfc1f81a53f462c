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
	"io"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/crestdb/crest/compr"
	"github.com/crestdb/crest/vector"
)

// Snapshots ship a table's partial aggregates between workers:
// the writer serializes every group (key tuple plus per-aggregate
// state) into one zstd block, and the reader insert-or-merges the
// rows into its own table the same way Merge does. A snapshot is
// a transport encoding, not a durable format.
//
// Layout:
//
//	magic [8] | stream id [16] | schema fingerprint u64 |
//	rows u64 | raw size u64 | compressed size u64 |
//	zstd block | blake2b-256 of the raw body [32]
var snapshotMagic = [8]byte{'C', 'R', 'S', 'T', 'S', 'N', 'P', '1'}

const snapshotHeaderSize = 8 + 16 + 8 + 8 + 8 + 8

// fingerprint hashes the table schema (group kinds and
// aggregate names) so that a snapshot is only merged into
// a table built with the same shape.
func (t *Table) fingerprint() uint64 {
	var buf []byte
	for _, k := range t.payload.groups {
		buf = append(buf, byte(k))
	}
	buf = append(buf, 0xff)
	for _, ag := range t.payload.aggrs {
		buf = append(buf, ag.Name()...)
		buf = append(buf, 0x00)
	}
	return vector.HashBytes(0, buf)
}

// marshaledStateSize returns the encoded size of one state of
// ag, or an error if the state cannot travel in a snapshot.
func marshaledStateSize(ag Function) (int, error) {
	if m, ok := ag.(StateMarshaler); ok {
		return m.MarshaledSize(), nil
	}
	if ag.NeedsDrop() {
		return 0, fmt.Errorf("aggregate %s owns resources and does not implement StateMarshaler: %w",
			ag.Name(), ErrSnapshot)
	}
	return ag.StateSize(), nil
}

// WriteSnapshot serializes the table to w and returns the
// snapshot's stream id. The table is left untouched and
// remains usable.
func WriteSnapshot(w io.Writer, t *Table) (uuid.UUID, error) {
	if t.done {
		return uuid.UUID{}, fmt.Errorf("snapshot of a finalized table: %w", ErrSnapshot)
	}
	p := t.payload
	for _, ag := range p.aggrs {
		if _, err := marshaledStateSize(ag); err != nil {
			return uuid.UUID{}, err
		}
	}

	var body []byte
	for row := 0; row < p.len(); row++ {
		tup := p.tuple(row)
		body = binary.LittleEndian.AppendUint64(body, p.tupleHash(tup))
		body = append(body, tup[:p.validityBytes]...)
		for c, k := range p.groups {
			off := p.groupOffsets[c]
			if k.Fixed() {
				body = append(body, tup[off:off+k.Width()]...)
				continue
			}
			v := readBytesSlot(tup, off)
			body = binary.LittleEndian.AppendUint32(body, uint32(len(v)))
			body = append(body, v...)
		}
		addr := p.stateAddrOf(tup)
		for j, ag := range p.aggrs {
			state := addr.Add(p.stateAddrOffsets[j])
			if m, ok := ag.(StateMarshaler); ok {
				body = m.MarshalState(state, body)
			} else {
				body = append(body, state.Bytes(ag.StateSize())...)
			}
		}
	}

	comp := compr.Compression("zstd").Compress(body, nil)
	sum := blake2b.Sum256(body)
	id := uuid.New()

	hdr := make([]byte, 0, snapshotHeaderSize)
	hdr = append(hdr, snapshotMagic[:]...)
	hdr = append(hdr, id[:]...)
	hdr = binary.LittleEndian.AppendUint64(hdr, t.fingerprint())
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(p.len()))
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(len(body)))
	hdr = binary.LittleEndian.AppendUint64(hdr, uint64(len(comp)))
	if _, err := w.Write(hdr); err != nil {
		return id, err
	}
	if _, err := w.Write(comp); err != nil {
		return id, err
	}
	if _, err := w.Write(sum[:]); err != nil {
		return id, err
	}
	return id, nil
}

// ReadSnapshot merges a snapshot from r into t and returns
// the snapshot's stream id. t must have been built with the
// same group kinds and aggregates as the writer's table.
func ReadSnapshot(r io.Reader, t *Table) (uuid.UUID, error) {
	var hdr [snapshotHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return uuid.UUID{}, fmt.Errorf("snapshot header: %w", err)
	}
	if [8]byte(hdr[:8]) != snapshotMagic {
		return uuid.UUID{}, fmt.Errorf("bad magic: %w", ErrSnapshot)
	}
	id, err := uuid.FromBytes(hdr[8:24])
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("bad stream id: %w", ErrSnapshot)
	}
	fprint := binary.LittleEndian.Uint64(hdr[24:])
	rows := binary.LittleEndian.Uint64(hdr[32:])
	rawSize := binary.LittleEndian.Uint64(hdr[40:])
	compSize := binary.LittleEndian.Uint64(hdr[48:])

	if want := t.fingerprint(); fprint != want {
		errorf("snapshot %s: schema fingerprint %#x, table has %#x", id, fprint, want)
		return id, fmt.Errorf("schema fingerprint mismatch: %w", ErrSnapshot)
	}
	comp := make([]byte, compSize)
	if _, err := io.ReadFull(r, comp); err != nil {
		return id, fmt.Errorf("snapshot body: %w", err)
	}
	var sum [32]byte
	if _, err := io.ReadFull(r, sum[:]); err != nil {
		return id, fmt.Errorf("snapshot checksum: %w", err)
	}

	dec, err := compr.Decompression("zstd")
	if err != nil {
		return id, err
	}
	body, err := dec.Decompress(comp, nil)
	if err != nil {
		return id, fmt.Errorf("decompressing snapshot: %w", err)
	}
	if uint64(len(body)) != rawSize {
		return id, fmt.Errorf("raw size %d, want %d: %w", len(body), rawSize, ErrSnapshot)
	}
	if blake2b.Sum256(body) != sum {
		errorf("snapshot %s: body checksum mismatch over %d bytes", id, len(body))
		return id, fmt.Errorf("checksum mismatch: %w", ErrSnapshot)
	}

	return id, t.mergeSnapshotBody(body, int(rows))
}

func (t *Table) mergeSnapshotBody(body []byte, rows int) error {
	p := t.payload
	if t.done {
		return fmt.Errorf("table already finalized: %w", ErrInvalidArgument)
	}
	// every row carries at least its hash
	if rows < 0 || uint64(rows) > uint64(len(body))/8 {
		return fmt.Errorf("implausible row count %d: %w", rows, ErrSnapshot)
	}
	t.reserve(rows)

	// one reusable scratch block for the decoded states
	var scratch StateAddr
	if p.stateSize > 0 {
		block := t.mem.Alloc(p.stateSize, p.stateAlign)
		scratch = StateAddr(uintptrOf(block))
	}
	tup := make([]byte, p.tupleSize)

	pos := 0
	need := func(n int) error {
		if pos+n > len(body) {
			return fmt.Errorf("truncated snapshot row: %w", ErrSnapshot)
		}
		return nil
	}
	for row := 0; row < rows; row++ {
		for i := range tup {
			tup[i] = 0
		}
		if err := need(8 + p.validityBytes); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(tup[p.hashOffset:], binary.LittleEndian.Uint64(body[pos:]))
		pos += 8
		copy(tup[:p.validityBytes], body[pos:pos+p.validityBytes])
		pos += p.validityBytes

		for c, k := range p.groups {
			off := p.groupOffsets[c]
			if k.Fixed() {
				w := k.Width()
				if err := need(w); err != nil {
					return err
				}
				copy(tup[off:off+w], body[pos:pos+w])
				pos += w
				continue
			}
			if err := need(4); err != nil {
				return err
			}
			n := int(binary.LittleEndian.Uint32(body[pos:]))
			pos += 4
			if err := need(n); err != nil {
				return err
			}
			binary.LittleEndian.PutUint32(tup[off:], uint32(n))
			if n > 0 {
				binary.LittleEndian.PutUint64(tup[off+8:], uint64(uintptrOf(body[pos:pos+n])))
			}
			pos += n
		}

		for j, ag := range p.aggrs {
			sz, err := marshaledStateSize(ag)
			if err != nil {
				return err
			}
			if err := need(sz); err != nil {
				return err
			}
			state := scratch.Add(p.stateAddrOffsets[j])
			if m, ok := ag.(StateMarshaler); ok {
				if err := m.UnmarshalState(state, body[pos:pos+sz]); err != nil {
					return fmt.Errorf("aggregate %s: %w", ag.Name(), err)
				}
			} else {
				copy(state.Bytes(sz), body[pos:pos+sz])
			}
			pos += sz
		}

		err := t.mergeTuple(tup, scratch)
		for j, ag := range p.aggrs {
			if ag.NeedsDrop() {
				ag.DropState(scratch.Add(p.stateAddrOffsets[j]))
			}
		}
		if err != nil {
			return err
		}
	}
	if pos != len(body) {
		return fmt.Errorf("%d trailing snapshot bytes: %w", len(body)-pos, ErrSnapshot)
	}
	return nil
}

func uintptrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
