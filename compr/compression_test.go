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

package compr

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	src := make([]byte, 1<<16)
	rnd := rand.New(rand.NewSource(0))
	// half-compressible input
	for i := range src[:len(src)/2] {
		src[i] = byte(rnd.Intn(4))
	}
	rnd.Read(src[len(src)/2:])

	for _, name := range []string{"zstd", "s2"} {
		comp := Compression(name)
		if comp == nil {
			t.Fatalf("no compressor %q", name)
		}
		dec, err := Decompression(name)
		if err != nil {
			t.Fatal(err)
		}
		enc := comp.Compress(src, nil)
		out, err := dec.Decompress(enc, nil)
		if err != nil {
			t.Fatalf("%s: %s", name, err)
		}
		if !bytes.Equal(src, out) {
			t.Fatalf("%s: round trip mismatch", name)
		}
	}
}

func TestUnknownAlgorithm(t *testing.T) {
	if Compression("lz77") != nil {
		t.Error("expected nil compressor")
	}
	if _, err := Decompression("lz77"); err == nil {
		t.Error("expected error")
	}
}
