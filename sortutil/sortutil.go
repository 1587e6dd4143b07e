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

// Package sortutil implements the sort drivers used by column.Sort:
// stable merge sort, introspective quicksort, and a radix sort fast
// path for fixed-width integer keys, all producing an order
// permutation alongside (or instead of) a physically sorted copy.
package sortutil

// OID mirrors orderidx.OID / column.OID; kept independent so sortutil
// stays a leaf package with no dependency on column or orderidx.
type OID int64

// Key is the interface sortutil operates over: a fixed-width slot
// array accessed by index, compared via Cmp. Sort never needs to know
// the atom type beyond this.
type Key interface {
	Len() int
	Cmp(i, j int) int
	Swap(i, j int)
}

// Options configures a Sort call.
type Options struct {
	Reverse   bool
	NilsLast  bool
	Stable    bool
	// Group, if non-nil, has the same length as the input; a sub-sort
	// is performed independently within each run of equal consecutive
	// values.
	Group Key
}

// Sort permutes k in place and returns the permutation applied (perm[i]
// is the original index now at position i), honoring Options. Reverse
// flips the comparator; NilsLast changes where nil sorts (callers
// encode "nil-ness" into their Cmp so sortutil stays type-agnostic —
// the column package's adapter flips the sign of nil comparisons based
// on NilsLast and Reverse before calling in).
func Sort(k Key, opt Options) []int {
	n := k.Len()
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	tracked := &trackedKey{Key: k, perm: perm}

	if opt.Group != nil {
		sortGroups(tracked, opt.Group, opt)
		return tracked.perm
	}

	less := lessFunc(tracked, opt.Reverse)
	if opt.Stable {
		stableSort(tracked, less)
	} else {
		quicksort(tracked, 0, n-1, less)
	}
	return tracked.perm
}

// trackedKey wraps a Key and mirrors every Swap into a parallel
// permutation array, so the caller can recover the order without the
// sort algorithms needing to know about permutations directly.
type trackedKey struct {
	Key
	perm []int
}

func (t *trackedKey) Swap(i, j int) {
	t.Key.Swap(i, j)
	t.perm[i], t.perm[j] = t.perm[j], t.perm[i]
}

func lessFunc(k Key, reverse bool) func(i, j int) bool {
	if reverse {
		return func(i, j int) bool { return k.Cmp(i, j) > 0 }
	}
	return func(i, j int) bool { return k.Cmp(i, j) < 0 }
}

// sortGroups sub-sorts each run of consecutive equal values in group
// independently.
func sortGroups(k *trackedKey, group Key, opt Options) {
	n := k.Len()
	i := 0
	for i < n {
		j := i + 1
		for j < n && group.Cmp(j-1, j) == 0 {
			j++
		}
		sub := &subrangeKey{trackedKey: k, lo: i}
		subN := j - i
		if opt.Stable {
			stableSort(&subrangeAdapter{sub, subN}, subLess(sub, opt.Reverse))
		} else {
			quicksort(&subrangeAdapter{sub, subN}, 0, subN-1, subLess(sub, opt.Reverse))
		}
		i = j
	}
}

func subLess(sub *subrangeKey, reverse bool) func(i, j int) bool {
	if reverse {
		return func(i, j int) bool { return sub.Cmp(i, j) > 0 }
	}
	return func(i, j int) bool { return sub.Cmp(i, j) < 0 }
}

// subrangeKey offsets indices by lo into the parent trackedKey, so the
// generic sort routines can operate on [0,n) while actually touching
// [lo,lo+n).
type subrangeKey struct {
	*trackedKey
	lo int
}

func (s *subrangeKey) Cmp(i, j int) int  { return s.trackedKey.Cmp(i+s.lo, j+s.lo) }
func (s *subrangeKey) Swap(i, j int)     { s.trackedKey.Swap(i+s.lo, j+s.lo) }

// subrangeAdapter exposes a fixed Len() for a subrangeKey so it can be
// passed to quicksort/stableSort, which call k.Len() to bound
// recursion; those calls are redirected to the fixed sub-length rather
// than the full underlying key's length.
type subrangeAdapter struct {
	*subrangeKey
	n int
}

func (a *subrangeAdapter) Len() int { return a.n }
