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

package pool

import (
	"fmt"

	"github.com/monetkit/gdk/column"
	"github.com/monetkit/gdk/hash"
)

// hashWidth picks the narrowest bucket/link width that can address n
// rows; Index.growBucket widens further on its own as a column grows
// past what New was sized for.
func hashWidth(n int64) hash.Width {
	switch {
	case n < 1<<16:
		return hash.Width2
	case n < 1<<32:
		return hash.Width4
	default:
		return hash.Width8
	}
}

// EnsureHash returns id's point-lookup index, building it from the
// column's current contents the first time it's requested. The index
// is cached on the slot and kept consistent by the pool-level Append/
// Replace/Delete/Sort wrappers below, which are the only supported
// way to mutate a column once EnsureHash has been called for it.
// Variable-width atoms aren't supported (column.RawAt isn't either).
func (p *Pool) EnsureHash(id int64) (*hash.Index, error) {
	col, err := p.Fix(id)
	if err != nil {
		return nil, err
	}
	defer p.Unfix(id)
	if col.Atom.Variable {
		return nil, fmt.Errorf("pool: ensurehash: column %d: variable-width atom", id)
	}

	s := p.slotFor(id)
	s.mu.Lock()
	if s.hashIdx != nil {
		idx := s.hashIdx
		s.mu.Unlock()
		return idx, nil
	}
	s.mu.Unlock()

	idx := hash.New(p.hashK0, p.hashK1, col.Count, hashWidth(col.Count), nil)
	idx.HashRow = func(row int64) uint64 {
		v, _ := col.RawAt(row)
		return idx.Hash(v)
	}
	for i := int64(0); i < col.Count; i++ {
		v, err := col.RawAt(i)
		if err != nil {
			return nil, fmt.Errorf("pool: ensurehash: column %d: %w", id, err)
		}
		if err := idx.Insert(i, idx.Hash(v)); err != nil {
			return nil, fmt.Errorf("pool: ensurehash: column %d: %w", id, err)
		}
	}

	s.mu.Lock()
	if s.hashIdx == nil {
		s.hashIdx = idx
		s.hashDirty = true
	}
	built := s.hashIdx
	s.mu.Unlock()
	return built, nil
}

// Append adds vals as new fixed-width rows to id's column, inserting
// each into the slot's hash index (if EnsureHash has built one) at
// the same time so the index never drifts out of sync with the data.
func (p *Pool) Append(id int64, vals [][]byte) error {
	col, err := p.Fix(id)
	if err != nil {
		return err
	}
	defer p.Unfix(id)

	s := p.slotFor(id)
	s.mu.Lock()
	idx := s.hashIdx
	s.mu.Unlock()

	start := col.Count
	if err := col.Append(vals); err != nil {
		return err
	}
	if idx != nil {
		for i, v := range vals {
			if err := idx.Insert(start+int64(i), idx.Hash(v)); err != nil {
				return fmt.Errorf("pool: append: column %d: hash insert: %w", id, err)
			}
		}
		s.mu.Lock()
		s.hashDirty = true
		s.mu.Unlock()
	}
	p.MarkDirty(id)
	return nil
}

// Replace overwrites the value at slot pos, relinking it within the
// hash index (if any) from its old bucket to its new one.
func (p *Pool) Replace(id int64, pos int64, v []byte, force bool) error {
	col, err := p.Fix(id)
	if err != nil {
		return err
	}
	defer p.Unfix(id)

	s := p.slotFor(id)
	s.mu.Lock()
	idx := s.hashIdx
	s.mu.Unlock()

	var hashUpdate func(old, new []byte)
	if idx != nil {
		hashUpdate = func(old, new []byte) {
			idx.Relink(idx.Hash(old), idx.Hash(new), pos)
		}
	}
	if err := col.Replace(pos, v, force, hashUpdate); err != nil {
		return err
	}
	if idx != nil {
		s.mu.Lock()
		s.hashDirty = true
		s.mu.Unlock()
	}
	p.MarkDirty(id)
	return nil
}

// Delete removes the row named by o, following the hash index's
// move-last-into-hole compaction: the row being removed is unlinked
// from its chain, and the row physically moved into its place (if
// any) has its chain membership relinked to its new row index without
// being rehashed, since its value never changed.
func (p *Pool) Delete(id int64, o column.OID) error {
	col, err := p.Fix(id)
	if err != nil {
		return err
	}
	defer p.Unfix(id)

	s := p.slotFor(id)
	s.mu.Lock()
	idx := s.hashIdx
	s.mu.Unlock()

	var hashDelete func(v []byte)
	var hashMove func(from, to int64)
	if idx != nil && col.Count > 0 {
		pos := int64(o - col.HSeqBase)
		last := col.Count - 1
		var movedVal []byte
		if pos >= 0 && pos < col.Count && pos != last {
			movedVal, err = col.RawAt(last)
			if err != nil {
				return fmt.Errorf("pool: delete: column %d: %w", id, err)
			}
		}
		hashDelete = func(v []byte) { idx.Delete(idx.Hash(v), pos) }
		hashMove = func(from, to int64) { idx.Move(idx.Hash(movedVal), from, to) }
	}

	before := col.Count
	if err := col.Delete(o, nil, hashDelete, hashMove); err != nil {
		return err
	}
	if idx != nil && col.Count < before {
		idx.Truncate()
		s.mu.Lock()
		s.hashDirty = true
		s.mu.Unlock()
	}
	p.MarkDirty(id)
	return nil
}
