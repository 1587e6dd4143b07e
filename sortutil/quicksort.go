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

import "math/bits"

const insertionThreshold = 12

// quicksort is an introspective quicksort over k[lo:hi] (inclusive):
// median-of-three pivoting, insertion sort below insertionThreshold,
// and a switch to heapsort once recursion exceeds 2*log2(n) to bound
// the worst case.
func quicksort(k Key, lo, hi int, less func(i, j int) bool) {
	n := hi - lo + 1
	if n <= 1 {
		return
	}
	depthLimit := 2 * bits.Len(uint(n))
	introsort(k, lo, hi, depthLimit, less)
}

func introsort(k Key, lo, hi, depthLimit int, less func(i, j int) bool) {
	for hi-lo+1 > insertionThreshold {
		if depthLimit == 0 {
			heapsort(k, lo, hi, less)
			return
		}
		depthLimit--
		p := partition(k, lo, hi, less)
		if p-lo < hi-p {
			introsort(k, lo, p-1, depthLimit, less)
			lo = p + 1
		} else {
			introsort(k, p+1, hi, depthLimit, less)
			hi = p - 1
		}
	}
	insertionSort(k, lo, hi, less)
}

func partition(k Key, lo, hi int, less func(i, j int) bool) int {
	mid := lo + (hi-lo)/2
	medianOfThree(k, lo, mid, hi, less)
	k.Swap(mid, hi-1)
	pivot := hi - 1
	i, j := lo, hi-1
	for {
		i++
		for less(i, pivot) {
			i++
		}
		j--
		for less(pivot, j) {
			j--
		}
		if i >= j {
			break
		}
		k.Swap(i, j)
	}
	k.Swap(i, hi-1)
	return i
}

func medianOfThree(k Key, a, b, c int, less func(i, j int) bool) {
	if less(b, a) {
		k.Swap(a, b)
	}
	if less(c, a) {
		k.Swap(a, c)
	}
	if less(c, b) {
		k.Swap(b, c)
	}
}

func insertionSort(k Key, lo, hi int, less func(i, j int) bool) {
	for i := lo + 1; i <= hi; i++ {
		for j := i; j > lo && less(j, j-1); j-- {
			k.Swap(j, j-1)
		}
	}
}

// heapsort is the introsort fallback for pathological pivot sequences.
func heapsort(k Key, lo, hi int, less func(i, j int) bool) {
	n := hi - lo + 1
	greater := func(i, j int) bool { return less(j, i) }
	for start := n/2 - 1; start >= 0; start-- {
		siftDownHeap(k, start, n, lo, greater)
	}
	for end := n - 1; end > 0; end-- {
		k.Swap(lo, lo+end)
		siftDownHeap(k, 0, end, lo, greater)
	}
}

func siftDownHeap(k Key, start, n, lo int, greater func(i, j int) bool) {
	root := start
	for {
		child := 2*root + 1
		if child >= n {
			return
		}
		if child+1 < n && greater(lo+child+1, lo+child) {
			child++
		}
		if !greater(lo+child, lo+root) {
			return
		}
		k.Swap(lo+root, lo+child)
		root = child
	}
}
