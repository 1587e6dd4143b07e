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

	"github.com/monetkit/gdk/heap"
)

// Copy populates dst with src's contents using the cheapest applicable
// strategy:
//  1. dst read-only, same type, src read-only -> view (zero copy).
//  2. both void -> copy only count/seqbase.
//  3. atom has no fix/unfix and widths match -> memcpy of slot array
//     and variable heap.
//  4. otherwise -> BUN-by-BUN append (also used for void -> oid
//     materialization).
//
// Property bits are propagated conservatively: exact type match
// carries every bit over; a storage-only match keeps only the bits
// that survive a bit-identical reinterpretation (for strategies 3-4,
// that means every bit since the atom is literally identical).
func Copy(dst, src *Column) error {
	if dst.Access == AccessRead && dst.Atom.ID == src.Atom.ID && src.Access == AccessRead {
		view := src.View(0, src.Count)
		*dst = *view
		return nil
	}
	if dst.TSeqBase != NilOID && dst.Count == 0 && src.TSeqBase != NilOID {
		dst.Count = src.Count
		dst.TSeqBase = src.TSeqBase
		dst.Sorted, dst.RevSorted, dst.Key, dst.NoNil = true, true, true, true
		return nil
	}
	if dst.Atom.ID != src.Atom.ID {
		return fmt.Errorf("column: copy: atom mismatch (%s vs %s)", dst.Atom.Name, src.Atom.Name)
	}
	if src.Atom.Fix == nil && src.Atom.Unfix == nil && dst.Width == src.Width && src.TSeqBase == NilOID {
		return dst.memcpyFrom(src)
	}
	return dst.copyFullFrom(src, 0, src.Count)
}

// memcpyFrom implements copy strategy 3: a raw copy of the whole slot
// array (and variable heap, if any) plus every property bit.
func (dst *Column) memcpyFrom(src *Column) error {
	n := src.Count
	if err := dst.ensureCapacityUnlocked(n); err != nil {
		return fmtErr("memcpy", err)
	}
	for i := int64(0); i < n; i++ {
		copy(dst.slotBytes(i), src.slotBytes(i))
	}
	dst.Count = n
	dst.HSeqBase = src.HSeqBase
	dst.Sorted, dst.RevSorted, dst.Key = src.Sorted, src.RevSorted, src.Key
	dst.Nil, dst.NoNil = src.Nil, src.NoNil
	dst.NoSorted, dst.NoRevSorted, dst.NoKey = src.NoSorted, src.NoRevSorted, src.NoKey
	dst.MinPos, dst.MaxPos = src.MinPos, src.MaxPos
	if src.VHeap != nil && dst.VHeap != nil {
		return dst.VHeap.copyFrom(src.VHeap)
	}
	return nil
}

// copyFullFrom implements copy strategy 4: append rows [lo,hi) of src
// to dst one at a time, going through the same property-maintenance
// path as a normal Append so the result is correct even when src is
// void (materializing into an oid dst) or atom-fix/unfix must run.
func (dst *Column) copyFullFrom(src *Column, lo, hi int64) error {
	if src.TSeqBase != NilOID && dst.Atom.Name == NameOID {
		vals := make([]OID, 0, hi-lo)
		for i := lo; i < hi; i++ {
			vals = append(vals, src.TSeqBase+OID(i))
		}
		return dst.AppendOID(vals)
	}
	if src.VHeap != nil {
		strs := make([]string, 0, hi-lo)
		for i := lo; i < hi; i++ {
			s, err := src.VHeap.StringAt(src.slotBytes(i), src.Order)
			if err != nil {
				return err
			}
			strs = append(strs, s)
		}
		return dst.AppendStrings(strs)
	}
	vals := make([][]byte, 0, hi-lo)
	for i := lo; i < hi; i++ {
		vals = append(vals, src.slotBytes(i))
	}
	return dst.Append(vals)
}

// copyRangeFiltered implements the BUN-by-BUN fallback used by Slice
// when a candidate list's exceptions rule out a zero-copy view.
func (c *Column) copyRangeFiltered(lo, hi int64, cl *CandidateList) (*Column, error) {
	out := &Column{
		Atom:        c.Atom,
		Order:       c.Order,
		Width:       c.Width,
		TSeqBase:    NilOID,
		Sorted:      true,
		RevSorted:   true,
		Key:         true,
		NoNil:       true,
		MinPos:      -1,
		MaxPos:      -1,
		Access:      AccessWrite,
		Persistence: Transient,
		Data:        heap.New("", "", heap.DefaultConfig()),
	}
	if c.VHeap != nil {
		out.VHeap = newVarHeap("", "", heap.DefaultConfig(), c.Atom)
	}
	for i := lo; i < hi; i++ {
		if cl.Excludes(c.HSeqBase + OID(i)) {
			continue
		}
		if err := out.copyFullFrom(c, i, i+1); err != nil {
			return nil, err
		}
	}
	return out, nil
}
