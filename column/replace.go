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

// ErrCommitted is returned by Replace/Delete on a slot below Inserted
// without force=true: positions already folded into a committed
// directory can't be overwritten in place without an explicit
// override.
var ErrCommitted = fmt.Errorf("column: cannot update committed slot")

// Replace overwrites the value at slot p with v. force bypasses the
// committed-slot guard; hashUpdate, when non-nil, is invoked with the
// old and new bytes so callers maintaining a hash index (package
// hash) can delete the old entry and insert the new one.
func (c *Column) Replace(p int64, v []byte, force bool, hashUpdate func(old, new []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p < 0 || p >= c.Count {
		return fmt.Errorf("column: replace: slot %d out of range", p)
	}
	if p < c.Inserted && !force {
		return ErrCommitted
	}
	old := append([]byte(nil), c.slotBytes(p)...)
	if c.cmp(old, v) == 0 {
		return nil
	}
	if hashUpdate != nil {
		hashUpdate(old, v)
	}
	copy(c.slotBytes(p), v)

	if c.Sorted && p > 0 && c.cmp(v, c.slotBytes(p-1)) < 0 {
		c.Sorted = false
		c.NoSorted = p
	}
	if c.Sorted && p+1 < c.Count && c.cmp(v, c.slotBytes(p+1)) > 0 {
		c.Sorted = false
		c.NoSorted = p + 1
	}
	if c.RevSorted && p > 0 && c.cmp(v, c.slotBytes(p-1)) > 0 {
		c.RevSorted = false
		c.NoRevSorted = p
	}
	if c.RevSorted && p+1 < c.Count && c.cmp(v, c.slotBytes(p+1)) < 0 {
		c.RevSorted = false
		c.NoRevSorted = p + 1
	}
	if c.Key {
		if p > 0 && c.cmp(v, c.slotBytes(p-1)) == 0 {
			c.Key = false
			c.NoKey = [2]int64{p - 1, p}
		} else if p+1 < c.Count && c.cmp(v, c.slotBytes(p+1)) == 0 {
			c.Key = false
			c.NoKey = [2]int64{p, p + 1}
		}
	}

	isNil := c.Atom.IsNil(v)
	wasNil := c.Atom.IsNil(old)
	if isNil && !wasNil {
		c.Nil = true
		c.NoNil = false
	}

	if c.MinPos == p {
		if c.cmp(v, old) != 0 {
			c.recomputeExtrema()
		}
	} else if !isNil && c.MinPos >= 0 && c.cmp(v, c.slotBytes(c.MinPos)) < 0 {
		c.MinPos = p
	}
	if c.MaxPos == p {
		if c.cmp(v, old) != 0 {
			c.recomputeExtrema()
		}
	} else if !isNil && c.MaxPos >= 0 && c.cmp(v, c.slotBytes(c.MaxPos)) > 0 {
		c.MaxPos = p
	}
	return nil
}

// recomputeExtrema does a full rescan; used when the previous
// min/max-holding slot was overwritten and the new value might no
// longer be extremal.
func (c *Column) recomputeExtrema() {
	c.MinPos, c.MaxPos = -1, -1
	for i := int64(0); i < c.Count; i++ {
		v := c.slotBytes(i)
		if c.Atom.IsNil(v) {
			continue
		}
		c.updateExtrema(i, v)
	}
}
