// Copyright (C) 2022 Sneller, Inc.
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

package hash

import (
	"encoding/binary"
	"fmt"
)

// Marshal encodes the index as two byte slices, one per sidecar file a
// committed column's index is written as: bucketBytes (a width/mask
// header followed by the bucket array, the ".hashb" contents) and
// linkBytes (the link array alone, the ".hashl" contents, parallel to
// the column's own row order so it never needs its own length field).
func (idx *Index) Marshal() (bucketBytes, linkBytes []byte) {
	bucketBytes = make([]byte, 16+len(idx.bucket)*8)
	binary.LittleEndian.PutUint64(bucketBytes[0:], uint64(idx.width))
	binary.LittleEndian.PutUint64(bucketBytes[8:], idx.mask)
	for i, b := range idx.bucket {
		binary.LittleEndian.PutUint64(bucketBytes[16+i*8:], b)
	}
	linkBytes = make([]byte, len(idx.link)*8)
	for i, l := range idx.link {
		binary.LittleEndian.PutUint64(linkBytes[i*8:], l)
	}
	return bucketBytes, linkBytes
}

// Unmarshal reconstructs an Index from bytes Marshal previously
// produced. k0/k1 reseed the siphash key, which Marshal does not
// persist since it only needs to stay fixed for the lifetime of one
// process; the caller must rewire HashRow afterward the same way
// EnsureHash does when building a fresh Index.
func Unmarshal(k0, k1 uint64, bucketBytes, linkBytes []byte) (*Index, error) {
	if len(bucketBytes) < 16 {
		return nil, fmt.Errorf("hash: bucket sidecar too short for header")
	}
	width := Width(binary.LittleEndian.Uint64(bucketBytes[0:]))
	mask := binary.LittleEndian.Uint64(bucketBytes[8:])
	nbucket := (len(bucketBytes) - 16) / 8
	idx := &Index{
		k0: k0, k1: k1,
		width:   width,
		nbucket: nbucket,
		mask:    mask,
		bucket:  make([]uint64, nbucket),
	}
	nilv := nilFor(width)
	for i := range idx.bucket {
		idx.bucket[i] = binary.LittleEndian.Uint64(bucketBytes[16+i*8:])
		if idx.bucket[i] != nilv {
			idx.nonEmpty++
		}
	}
	if len(linkBytes)%8 != 0 {
		return nil, fmt.Errorf("hash: link sidecar length %d not a multiple of 8", len(linkBytes))
	}
	n := len(linkBytes) / 8
	idx.link = make([]uint64, n)
	for i := range idx.link {
		idx.link[i] = binary.LittleEndian.Uint64(linkBytes[i*8:])
	}
	idx.rowCount = int64(n)
	idx.persisted = true
	return idx, nil
}
