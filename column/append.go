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

// Append adds the fixed-width values in vals (each a Width-byte slot
// encoding) to the end of the column, incrementally maintaining
// sorted/revsorted/key/nil/nonil/minpos/maxpos rather than
// recomputing them from scratch. Appending a nil clears tseqbase;
// Append never sets it (AppendOID does that for oid columns). For
// variable-width atoms use AppendStrings instead.
func (c *Column) Append(vals [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(vals) == 0 {
		return nil
	}
	if err := c.ensureCapacity(int64(len(vals))); err != nil {
		return fmtErr("append", err)
	}
	start := c.Count
	for i, v := range vals {
		pos := start + int64(i)
		copy(c.slotBytes(pos), v)
		c.updatePropertiesOnAppend(pos, v)
		c.Count++
	}
	return nil
}

func (c *Column) updatePropertiesOnAppend(pos int64, v []byte) {
	isNil := c.Atom.IsNil(v)
	if pos == 0 {
		c.Sorted, c.RevSorted, c.Key = true, true, true
		if isNil {
			c.Nil, c.NoNil = true, false
		} else {
			c.NoNil = true
		}
	} else {
		prev := c.slotBytes(pos - 1)
		switch cmp := c.cmp(prev, v); {
		case cmp > 0:
			if c.Sorted {
				c.Sorted = false
				c.NoSorted = pos
			}
		case cmp < 0:
			if c.RevSorted {
				c.RevSorted = false
				c.NoRevSorted = pos
			}
		default:
			if c.Key {
				c.Key = false
				c.NoKey = [2]int64{pos - 1, pos}
			}
		}
		if isNil {
			c.Nil = true
			c.NoNil = false
			c.TSeqBase = NilOID
		}
	}
	if !isNil {
		c.updateExtrema(pos, v)
	} else if c.MinPos == -1 && pos == 0 {
		// an all-nil column has no extremum; leave MinPos/MaxPos at -1.
	}
}

// rescanFixedProperties recomputes every incremental property from
// the slot bytes already in place, by replaying updatePropertiesOnAppend
// over [0,Count). Load uses this after reading a fixed-width column's
// data heap back from disk, since the saved bytes carry no properties
// of their own.
func (c *Column) rescanFixedProperties() {
	n := c.Count
	c.Count = 0
	c.Sorted, c.RevSorted, c.Key = true, true, true
	c.NoNil = true
	c.MinPos, c.MaxPos = -1, -1
	for i := int64(0); i < n; i++ {
		c.updatePropertiesOnAppend(i, c.slotBytes(i))
		c.Count++
	}
}

func (c *Column) updateExtrema(pos int64, v []byte) {
	if c.MinPos == -1 {
		c.MinPos = pos
		c.MaxPos = pos
		return
	}
	if c.cmp(v, c.slotBytes(c.MinPos)) < 0 {
		c.MinPos = pos
	}
	if c.cmp(v, c.slotBytes(c.MaxPos)) > 0 {
		c.MaxPos = pos
	}
}
