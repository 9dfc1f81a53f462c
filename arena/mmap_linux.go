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

//go:build linux

package arena

import (
	"golang.org/x/sys/unix"
)

// linux slabs are anonymous private mappings; this keeps
// slab memory out of the Go heap so the collector never
// scans payload pages or aggregate states.

func mapSlab(size int) []byte {
	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		// allocation failure is fatal to the enclosing query
		panic("arena: couldn't map slab: " + err.Error())
	}
	return buf
}

func unmapSlab(mem []byte) {
	if err := unix.Munmap(mem); err != nil {
		panic("arena: munmap: " + err.Error())
	}
}
