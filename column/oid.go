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

import "encoding/binary"

// NameOID mirrors atom.NameOID without importing the builtin package
// (which would create an import cycle); column only needs to compare
// against it for the dense-sequence fast path.
const NameOID = "oid"

// AppendOID is Append specialized for oid-typed columns: in addition
// to the generic property bookkeeping, it maintains TSeqBase, the
// "this column materializes as a dense OID sequence" flag. For an oid
// column starting from empty, TSeqBase is initialised to the first
// value if all appended values are consecutive ascending; otherwise it
// is left nil.
func (c *Column) AppendOID(vals []OID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(vals) == 0 {
		return nil
	}
	if err := c.ensureCapacity(int64(len(vals))); err != nil {
		return fmtErr("appendoid", err)
	}
	start := c.Count
	wasEmpty := c.Count == 0
	for i, v := range vals {
		pos := start + int64(i)
		buf := c.slotBytes(pos)
		binary.LittleEndian.PutUint64(buf, uint64(v))
		c.updatePropertiesOnAppend(pos, buf)
		c.Count++
	}
	if wasEmpty && len(vals) > 0 {
		base := vals[0]
		dense := vals[0] != NilOID
		for i := 1; i < len(vals) && dense; i++ {
			if vals[i] != base+OID(i) || vals[i] == NilOID {
				dense = false
			}
		}
		if dense {
			c.TSeqBase = base
		} else {
			c.TSeqBase = NilOID
		}
	} else if c.TSeqBase != NilOID {
		// appending to an already-dense column: only stays dense if
		// the new run continues the sequence.
		expect := c.TSeqBase + OID(start)
		for i, v := range vals {
			if v != expect+OID(i) {
				c.TSeqBase = NilOID
				break
			}
		}
	}
	return nil
}
