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

import (
	"math/rand"
	"sort"
	"testing"
)

type intKey struct{ v []int }

func (k *intKey) Len() int         { return len(k.v) }
func (k *intKey) Cmp(i, j int) int { return k.v[i] - k.v[j] }
func (k *intKey) Swap(i, j int)    { k.v[i], k.v[j] = k.v[j], k.v[i] }

func TestQuicksortMatchesStdlib(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	vals := make([]int, 500)
	for i := range vals {
		vals[i] = rng.Intn(100)
	}
	want := append([]int(nil), vals...)
	sort.Ints(want)

	k := &intKey{v: append([]int(nil), vals...)}
	Sort(k, Options{})
	for i := range want {
		if k.v[i] != want[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, k.v[i], want[i])
		}
	}
}

func TestStableSortPreservesOrderOfEquals(t *testing.T) {
	type pair struct{ key, orig int }
	pairs := []pair{{1, 0}, {0, 1}, {1, 2}, {0, 3}, {1, 4}}
	k := &intKey{v: make([]int, len(pairs))}
	for i, p := range pairs {
		k.v[i] = p.key
	}
	perm := Sort(k, Options{Stable: true})
	// every original index tagged key=0 must appear before every index tagged key=1
	// in the *relative* order they started in.
	var zeros, ones []int
	for _, orig := range perm {
		if pairs[orig].key == 0 {
			zeros = append(zeros, pairs[orig].orig)
		} else {
			ones = append(ones, pairs[orig].orig)
		}
	}
	if len(zeros) != 2 || zeros[0] != 1 || zeros[1] != 3 {
		t.Fatalf("expected stable relative order [1,3] for zeros, got %v", zeros)
	}
	if len(ones) != 3 || ones[0] != 0 || ones[1] != 2 || ones[2] != 4 {
		t.Fatalf("expected stable relative order [0,2,4] for ones, got %v", ones)
	}
}

func TestRadixSortMatchesStdlib(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	n := 300
	vals := make([]uint64, n)
	for i := range vals {
		vals[i] = uint64(rng.Intn(1 << 16))
	}
	want := append([]uint64(nil), vals...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	RadixSort(vals, 2)
	for i := range want {
		if vals[i] != want[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, vals[i], want[i])
		}
	}
}

func TestGroupSubSort(t *testing.T) {
	group := &intKey{v: []int{1, 1, 1, 2, 2}}
	k := &intKey{v: []int{3, 1, 2, 9, 5}}
	Sort(k, Options{Group: group})
	if k.v[0] != 1 || k.v[1] != 2 || k.v[2] != 3 {
		t.Fatalf("expected first group sorted [1,2,3], got %v", k.v[:3])
	}
	if k.v[3] != 5 || k.v[4] != 9 {
		t.Fatalf("expected second group sorted [5,9], got %v", k.v[3:])
	}
}
