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

package sortutil

const radixBits = 8
const radixBuckets = 1 << radixBits
const radixMask = radixBuckets - 1

// RadixSort performs an LSD radix sort over keys, byte by byte, up to
// the declared byteWidth (1-8), returning the permutation applied.
// This is the fast path for fixed-width integer keys up to 8 bytes
// when no candidate list constrains the input and the key width is
// small: O(n) per pass instead of O(n log n).
func RadixSort(keys []uint64, byteWidth int) []int {
	n := len(keys)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	if n < 2 {
		return perm
	}
	src := append([]uint64(nil), keys...)
	srcPerm := append([]int(nil), perm...)
	dst := make([]uint64, n)
	dstPerm := make([]int, n)

	var count [radixBuckets]int
	for shift := 0; shift < byteWidth*8; shift += radixBits {
		for i := range count {
			count[i] = 0
		}
		for _, v := range src {
			count[(v>>uint(shift))&radixMask]++
		}
		sum := 0
		for i := range count {
			c := count[i]
			count[i] = sum
			sum += c
		}
		for i, v := range src {
			b := (v >> uint(shift)) & radixMask
			pos := count[b]
			count[b]++
			dst[pos] = v
			dstPerm[pos] = srcPerm[i]
		}
		src, dst = dst, src
		srcPerm, dstPerm = dstPerm, srcPerm
	}
	copy(keys, src)
	copy(perm, srcPerm)
	return perm
}

// ToRadixKey maps a two's-complement signed integer (stored as its
// unsigned bit pattern) to an order-preserving unsigned key by
// flipping the sign bit — the standard transform that lets an
// unsigned radix sort produce the correct signed order.
func ToRadixKey(signed uint64, width int) uint64 {
	signBit := uint64(1) << uint(width*8-1)
	return signed ^ signBit
}
