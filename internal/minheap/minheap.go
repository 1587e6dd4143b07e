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

// Package minheap implements the small generic binary min-heap used to
// drive k-way merges of already-sorted streams (order index merge, §4.8;
// external merge sort passes, §4.9).
package minheap

// Init arranges x into min-heap order according to less.
// If len(x) > 0, the smallest element is x[0] afterwards.
func Init[T any](x []T, less func(a, b T) bool) {
	for i := len(x) - 1; i >= 0; i-- {
		siftDown(x, i, less)
		siftUp(x, i, less)
	}
}

// Pop removes and returns the smallest element of *x,
// restoring the heap invariant on the remainder.
func Pop[T any](x *[]T, less func(a, b T) bool) T {
	top := (*x)[0]
	(*x)[0], *x = (*x)[len(*x)-1], (*x)[:len(*x)-1]
	if len(*x) > 0 {
		siftDown(*x, 0, less)
	}
	return top
}

// Push adds item to *x, restoring the heap invariant.
func Push[T any](x *[]T, item T, less func(a, b T) bool) {
	*x = append(*x, item)
	siftUp(*x, len(*x)-1, less)
}

// Fix restores the heap invariant after the value at index
// has changed in place (used when a merge stream is advanced
// in place rather than popped and re-pushed).
func Fix[T any](x []T, index int, less func(a, b T) bool) {
	siftDown(x, index, less)
	siftUp(x, index, less)
}

func siftUp[T any](x []T, index int, less func(a, b T) bool) {
	for index > 0 {
		parent := (index - 1) / 2
		if less(x[parent], x[index]) {
			break
		}
		x[parent], x[index] = x[index], x[parent]
		index = parent
	}
}

func siftDown[T any](x []T, index int, less func(a, b T) bool) {
	for {
		left := index*2 + 1
		right := left + 1
		if left >= len(x) {
			break
		}
		c := left
		if right < len(x) && less(x[right], x[left]) {
			c = right
		}
		if less(x[index], x[c]) {
			break
		}
		x[c], x[index] = x[index], x[c]
		index = c
	}
}
