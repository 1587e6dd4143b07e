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

import "fmt"

// Slice produces a column representing rows [lo, hi) of c. If c is
// read-only and cl is nil or has no exceptions, the result is a
// zero-copy View sharing c's heaps. Otherwise the BUN-by-BUN copy path
// is used via copyRangeFiltered.
func (c *Column) Slice(lo, hi int64, cl *CandidateList) (*Column, error) {
	if lo < 0 || hi > c.Count || lo > hi {
		return nil, fmt.Errorf("column: slice: range [%d,%d) out of [0,%d)", lo, hi, c.Count)
	}
	if c.Access == AccessRead && (cl == nil || len(cl.Exceptions) == 0) {
		return c.View(lo, hi), nil
	}
	return c.copyRangeFiltered(lo, hi, cl)
}

// View creates a read-only column sharing the parent's heap(s): bumps
// the parent's share count; the view is forced to AccessRead.
// Destroying the view (Destroy) decrements the share; Free on a view
// releases nothing, since the heaps belong to the parent.
func (c *Column) View(lo, hi int64) *Column {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shareCount++
	v := &Column{
		Atom:        c.Atom,
		Order:       c.Order,
		Width:       c.Width,
		HSeqBase:    c.HSeqBase + OID(lo),
		Count:       hi - lo,
		Capacity:    hi - lo,
		Inserted:    hi - lo,
		TSeqBase:    NilOID,
		Sorted:      c.Sorted,
		RevSorted:   c.RevSorted,
		Key:         c.Key,
		Nil:         c.Nil,
		NoNil:       c.NoNil,
		Access:      AccessRead,
		Persistence: Transient,
		Data:        c.Data,
		VHeap:       c.VHeap,
		parent:      c,
	}
	if c.TSeqBase != NilOID {
		v.TSeqBase = c.TSeqBase + OID(lo)
	}
	if c.MinPos >= lo && c.MinPos < hi {
		v.MinPos = c.MinPos - lo
	} else {
		v.MinPos = -1
	}
	if c.MaxPos >= lo && c.MaxPos < hi {
		v.MaxPos = c.MaxPos - lo
	} else {
		v.MaxPos = -1
	}
	// a sub-range view can't generally inherit its parent's disproof
	// positions since they may fall outside [lo,hi); conservatively
	// drop sortedness claims that depended on them unless the range
	// covers the whole column.
	if lo != 0 || hi != c.Count {
		v.Sorted = v.Sorted && c.offsetWithinRange(c.NoSorted, lo, hi)
		v.RevSorted = v.RevSorted && c.offsetWithinRange(c.NoRevSorted, lo, hi)
	}
	// view's own slot bytes still live at the parent's absolute
	// offsets; slotBytes adds viewOffset to a view-relative slot
	// index to reach them (views are read-only, so ordinary Column
	// methods that mutate will fail their access-mode checks upstream).
	v.viewOffset = lo
	return v
}

// offsetWithinRange reports whether a zero-valued "no evidence of a
// violation yet" disproof position remains trivially true after
// slicing, i.e. there simply is no recorded violation.
func (c *Column) offsetWithinRange(pos, lo, hi int64) bool {
	return pos == 0
}

// ResetView materialises a view into an independent column: allocates
// new heaps and copies data.
func (c *Column) ResetView(farmDir, basename string, cfgHeap func() (*Column, error)) error {
	if !c.IsView() {
		return fmt.Errorf("column: resetview: not a view")
	}
	fresh, err := cfgHeap()
	if err != nil {
		return err
	}
	if err := fresh.copyFullFrom(c.parent, c.viewOffset, c.viewOffset+c.Count); err != nil {
		return err
	}
	c.parent.mu.Lock()
	c.parent.shareCount--
	c.parent.mu.Unlock()
	*c = *fresh
	return nil
}
