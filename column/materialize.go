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
	"encoding/binary"
	"fmt"
)

// Materialize converts a void column (TSeqBase set, zero-byte storage)
// into a fully populated oid column by generating
// tseqbase, tseqbase+1, .... c must not be a view.
func (c *Column) Materialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.IsView() {
		return fmt.Errorf("column: materialize: view columns cannot be materialized in place")
	}
	if c.TSeqBase == NilOID {
		return fmt.Errorf("column: materialize: column is not void")
	}
	if c.Width == 0 {
		c.Width = 8
	}
	if err := c.ensureCapacityUnlocked(c.Count); err != nil {
		return fmtErr("materialize", err)
	}
	for i := int64(0); i < c.Count; i++ {
		binary.LittleEndian.PutUint64(c.slotBytes(i), uint64(c.TSeqBase)+uint64(i))
	}
	c.Sorted, c.RevSorted, c.Key, c.NoNil = true, true, true, true
	c.Nil = false
	if c.Count > 0 {
		c.MinPos, c.MaxPos = 0, c.Count-1
	}
	return nil
}

// ensureCapacityUnlocked is ensureCapacity against an already-zero
// Count (materialize needs slots for the existing logical Count,
// which ensureCapacity's "c.Count + extra" math would double-count).
func (c *Column) ensureCapacityUnlocked(total int64) error {
	need := total * int64(c.Width)
	if c.Data.Size() >= need {
		return c.Data.SetUsed(need)
	}
	if c.Data.Size() == 0 {
		if err := c.Data.Alloc(need, 1, c.Persistence == Persistent); err != nil {
			return err
		}
		return c.Data.SetUsed(need)
	}
	if err := c.Data.Extend(need, true); err != nil {
		return err
	}
	return c.Data.SetUsed(need)
}
