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

// stableSort implements the stable backend as a bottom-up merge sort,
// recording the permutation via the caller-supplied trackedKey.Swap:
// mergeInPlace below merges each pair of adjacent runs with k.Swap
// calls alone, rotating one element into place at a time, so no
// auxiliary index buffer is used.
func stableSort(k Key, less func(i, j int) bool) int {
	n := k.Len()
	for width := 1; width < n; width *= 2 {
		for lo := 0; lo < n; lo += 2 * width {
			mid := lo + width
			if mid > n {
				mid = n
			}
			hi := lo + 2*width
			if hi > n {
				hi = n
			}
			if mid < hi {
				mergeInPlace(k, lo, mid, hi, less)
			}
		}
	}
	return n
}

// mergeInPlace stably merges [lo,mid) and [mid,hi), both already
// sorted, using only k.Swap/less (no auxiliary value buffer exists
// since Key is an opaque index-addressed store) via repeated
// insertion of the run-head into place. This is O(n^2) worst case per
// merge step in the number of rotations, which is acceptable for the
// column sizes this engine targets in-process; radix/quicksort are the
// fast paths for large fixed-width keys.
func mergeInPlace(k Key, lo, mid, hi int, less func(i, j int) bool) {
	i, j := lo, mid
	for i < j && j < hi {
		if !less(j, i) {
			i++
			continue
		}
		// rotate k[j] into position i, shifting [i,j) right by one.
		for p := j; p > i; p-- {
			k.Swap(p, p-1)
		}
		i++
		j++
	}
}
