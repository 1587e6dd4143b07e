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

// Delete removes the row with the given OID by moving the last row
// into its slot and shrinking Count, so positions above the deleted
// slot can shift. unfix, if non-nil, is called with the deleted value's bytes
// (used for atoms whose Ops.Unfix decrements a named column's logical
// refcount). hashDelete/hashMove let a caller-maintained hash index
// stay consistent with the move-last-into-hole compaction.
func (c *Column) Delete(o OID, unfix func(v []byte), hashDelete func(v []byte), hashMove func(from, to int64)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o < c.HSeqBase || o >= c.HSeqBase+OID(c.Count) {
		return nil
	}
	p := int64(o - c.HSeqBase)
	if p < c.Inserted {
		return fmt.Errorf("column: delete: %w", ErrCommitted)
	}
	old := c.slotBytes(p)
	if unfix != nil {
		unfix(old)
	}
	if hashDelete != nil {
		hashDelete(old)
	}

	last := c.Count - 1
	if p != last {
		copy(c.slotBytes(p), c.slotBytes(last))
		if hashMove != nil {
			hashMove(last, p)
		}
		if c.MinPos == last {
			c.MinPos = p
		}
		if c.MaxPos == last {
			c.MaxPos = p
		}
		// moving a slot breaks any established sort order.
		c.Sorted = false
		c.RevSorted = false
	}
	if c.MinPos == p && p == last {
		c.MinPos = -1
	}
	if c.MaxPos == p && p == last {
		c.MaxPos = -1
	}
	c.Count--
	if c.MinPos >= c.Count {
		c.recomputeExtrema()
	}
	if c.MaxPos >= c.Count {
		c.recomputeExtrema()
	}
	return c.Data.SetUsed(c.Count * int64(c.Width))
}
