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

package column

import (
	"fmt"

	"github.com/monetkit/gdk/atom"
	"github.com/monetkit/gdk/orderidx"
	"github.com/monetkit/gdk/sortutil"
)

// sortAdapter implements sortutil.Key directly over a fixed-width
// column's slot array: Cmp defers to the atom comparator (with an
// optional nils-last override), Swap exchanges the raw bytes in
// place, so the sort algorithms in sortutil physically rearrange the
// column as they go.
type sortAdapter struct {
	c        *Column
	nilsLast bool
	buf      []byte
}

func (a *sortAdapter) Len() int { return int(a.c.Count) }

func (a *sortAdapter) Cmp(i, j int) int {
	vi, vj := a.c.slotBytes(int64(i)), a.c.slotBytes(int64(j))
	if a.nilsLast {
		ni, nj := a.c.Atom.IsNil(vi), a.c.Atom.IsNil(vj)
		if ni || nj {
			switch {
			case ni && nj:
				return 0
			case ni:
				return 1
			default:
				return -1
			}
		}
	}
	return a.c.Atom.Cmp(vi, vj)
}

func (a *sortAdapter) Swap(i, j int) {
	vi, vj := a.c.slotBytes(int64(i)), a.c.slotBytes(int64(j))
	copy(a.buf, vi)
	copy(vi, vj)
	copy(vj, a.buf)
}

// groupAdapter implements sortutil.Key over a group-by column purely
// for comparison: sortGroups only ever calls Cmp on the group key (it
// detects run boundaries, never reorders the key that defines them),
// so Swap is intentionally a no-op rather than dead code to delete.
type groupAdapter struct{ c *Column }

func (g *groupAdapter) Len() int         { return int(g.c.Count) }
func (g *groupAdapter) Cmp(i, j int) int { return g.c.Atom.Cmp(g.c.slotBytes(int64(i)), g.c.slotBytes(int64(j))) }
func (g *groupAdapter) Swap(i, j int)    {}

// applyPermutation rearranges an n-element sequence in place via swap
// so that, after it returns, logical position i holds what used to be
// at perm[i]. It follows permutation cycles rather than allocating a
// second n-sized buffer, using one visited flag per element.
func applyPermutation(n int, swap func(i, j int), perm []int) {
	visited := make([]bool, n)
	for start := 0; start < n; start++ {
		if visited[start] {
			continue
		}
		j := start
		for !visited[j] {
			visited[j] = true
			next := perm[j]
			if next != start {
				swap(j, next)
			}
			j = next
		}
	}
}

// radixEligible reports whether c's atom is a fixed-width signed
// integer narrow enough for sortutil.RadixSort's sign-flip transform;
// floats and uuid need a different key mapping, so they fall back to
// the comparison-based sort.
func (c *Column) radixEligible() bool {
	switch c.Atom.Storage {
	case atom.StorageInt8, atom.StorageInt16, atom.StorageInt32, atom.StorageInt64:
		return true
	}
	return false
}

func rawUint(v []byte, order byteOrder) uint64 {
	switch len(v) {
	case 1:
		return uint64(v[0])
	case 2:
		return uint64(order.Uint16(v))
	case 4:
		return uint64(order.Uint32(v))
	case 8:
		return order.Uint64(v)
	}
	return 0
}

type byteOrder interface {
	Uint16([]byte) uint16
	Uint32([]byte) uint32
	Uint64([]byte) uint64
}

// radixSort runs the LSD radix fast path over c's current bytes,
// physically applying the resulting permutation, and returns it.
// Reverse order is obtained by bitwise-complementing the transformed
// key before sorting ascending: this reverses numeric order while
// preserving LSD-radix stability among ties, which simply negating
// the comparator (as the generic path does via Options.Reverse) can't
// do for a keys-only algorithm.
func (c *Column) radixSort(reverse bool) []int {
	n := int(c.Count)
	keys := make([]uint64, n)
	for i := 0; i < n; i++ {
		k := sortutil.ToRadixKey(rawUint(c.slotBytes(int64(i)), c.Order), c.Width)
		if reverse {
			k = ^k
		}
		keys[i] = k
	}
	perm := sortutil.RadixSort(keys, c.Width)
	adapter := &sortAdapter{c: c, buf: make([]byte, c.Width)}
	applyPermutation(n, adapter.Swap, perm)
	return perm
}

// Sort orders the column's current rows in place, mirroring GDK's
// BATsort minus the detached "sorted copy" output: building a
// standalone scratch column would need its own farm allocation, which
// this package doesn't otherwise expose, so callers wanting a
// non-destructive sort first copy the column themselves (Pool.Alloc a
// fresh id, Append the source rows, then Sort that copy). The
// returned orderidx.Index records, for each final position, the OID
// the row held before this call — the "order permutation" output —
// so correlated structures (another column, a hash index) can be
// re-synchronized to the new physical order.
//
// orderIn, when non-nil, rearranges the column first (equivalent to
// projecting by that order) so any remaining ties break in that
// existing order rather than arbitrarily. group, when non-nil, must
// have the same row count and is sorted in lockstep with c but
// defines independent runs: c is only sub-sorted within each run of
// consecutive equal group values, never across one. reverse and
// nilsLast control descending order and where nil values land; stable
// requests merge sort over introspective quicksort and requires
// reverse == nilsLast, so the natural-extreme end of the sort and the
// nil placement always agree.
func (c *Column) Sort(orderIn []OID, group *Column, reverse, nilsLast, stable bool) (*orderidx.Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Atom.Variable {
		return nil, fmt.Errorf("column: sort: variable-width atom")
	}
	if stable && reverse != nilsLast {
		return nil, fmt.Errorf("column: sort: stable sort requires reverse == nilslast")
	}
	n := int(c.Count)
	if group != nil && int64(n) != group.Count {
		return nil, fmt.Errorf("column: sort: group length %d != column length %d", group.Count, c.Count)
	}

	before := make([]OID, n)
	for i := range before {
		before[i] = c.HSeqBase + OID(i)
	}

	if orderIn != nil {
		if len(orderIn) != n {
			return nil, fmt.Errorf("column: sort: order_in length %d != column length %d", len(orderIn), n)
		}
		perm := make([]int, n)
		for i, o := range orderIn {
			perm[i] = int(o - c.HSeqBase)
		}
		applyPermutation(n, (&sortAdapter{c: c, buf: make([]byte, c.Width)}).Swap, perm)
		if group != nil {
			applyPermutation(n, (&sortAdapter{c: group, buf: make([]byte, group.Width)}).Swap, perm)
		}
		applyPermutation(n, func(i, j int) { before[i], before[j] = before[j], before[i] }, perm)
	}

	var perm []int
	if group == nil && !stable && reverse == nilsLast && c.radixEligible() {
		perm = c.radixSort(reverse)
	} else {
		opt := sortutil.Options{Reverse: reverse, NilsLast: nilsLast, Stable: stable}
		if group != nil {
			opt.Group = &groupAdapter{c: group}
		}
		// reverse flips every comparison, the nil override included, so
		// the override is on exactly when nilsLast and reverse differ.
		key := &sortAdapter{c: c, nilsLast: nilsLast != reverse, buf: make([]byte, c.Width)}
		perm = sortutil.Sort(key, opt)
		if group != nil {
			applyPermutation(n, (&sortAdapter{c: group, buf: make([]byte, group.Width)}).Swap, perm)
		}
	}
	applyPermutation(n, func(i, j int) { before[i], before[j] = before[j], before[i] }, perm)

	c.rescanFixedProperties()

	return orderidx.New(toOrderOIDs(before), stable), nil
}

func toOrderOIDs(oids []OID) []orderidx.OID {
	out := make([]orderidx.OID, len(oids))
	for i, o := range oids {
		out[i] = orderidx.OID(o)
	}
	return out
}
