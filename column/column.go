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

// Package column implements the column descriptor and the
// append/replace/delete/materialize/slice/copy primitives every query
// operator composes.
package column

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/monetkit/gdk/atom"
	"github.com/monetkit/gdk/heap"
)

// OID identifies a row. hseqbase + i is the OID of slot i.
type OID int64

// NilOID is the sentinel meaning "not dense" for TSeqBase and the oid
// atom's own nil value. MinPos/MaxPos use -1, not NilOID, for "not set".
const NilOID OID = -1 << 63

// AccessMode is a column's current mutability.
type AccessMode int

const (
	AccessRead AccessMode = iota
	AccessAppend
	AccessWrite
)

// Persistence names whether a column's heaps are durable across a
// commit.
type Persistence int

const (
	Transient Persistence = iota
	Persistent
)

// Column is the in-memory descriptor for one column. Exported fields
// are read under the caller's own synchronization discipline: the
// caller owns synchronization against other writers; Column itself
// only serializes its own heap mutations with mu.
type Column struct {
	mu sync.Mutex

	ID ID // pool-assigned id; 0 until Register'd with a pool

	Atom    *atom.Ops
	Order   binary.ByteOrder
	Width   int // bytes per slot; 0 for void
	HSeqBase OID

	Count    int64
	Capacity int64
	Inserted int64 // count at last commit

	TSeqBase OID // NilOID => not dense

	Sorted, RevSorted bool
	Key               bool
	Nil, NoNil        bool
	NoSorted          int64
	NoRevSorted       int64
	NoKey             [2]int64
	MinPos, MaxPos    int64 // -1 => NONE

	Access      AccessMode
	Persistence Persistence
	Role        uint32

	Data  *heap.Heap
	VHeap *VarHeap // nil unless Atom.Variable

	parent     *Column // nil unless a view
	shareCount int
	viewOffset int64 // slot index into parent.Data where this view begins
}

// ID is a column identifier as seen by the object pool. Zero is
// reserved.
type ID int64

// New creates an empty column of the given atom type: trivial
// properties are set (sorted/revsorted/key all true, nonil true) and
// the heap is allocated lazily (first Append triggers heap.Alloc).
func New(a *atom.Ops, farmDir, basename string, cfg heap.Config, persist Persistence) *Column {
	c := &Column{
		Atom:        a,
		Order:       binary.LittleEndian,
		Width:       a.Size,
		TSeqBase:    NilOID,
		Sorted:      true,
		RevSorted:   true,
		Key:         true,
		NoNil:       true,
		MinPos:      -1,
		MaxPos:      -1,
		Access:      AccessWrite,
		Persistence: persist,
	}
	if !a.Variable {
		c.Data = heap.New(farmDir, basename+".tail", cfg)
	} else {
		c.Width = 4
		c.Data = heap.New(farmDir, basename+".tail4", cfg)
		c.VHeap = newVarHeap(farmDir, basename+".theap", cfg, a)
	}
	return c
}

// IsView reports whether c shares its heaps with a parent column.
func (c *Column) IsView() bool { return c.parent != nil }

// Heaps returns every heap backing this column: the slot array, plus
// the variable heap when the atom is variable-sized. The object pool
// uses this to discover what a commit needs to back up and save
// without reaching into column-package internals.
func (c *Column) Heaps() []*heap.Heap {
	hs := make([]*heap.Heap, 0, 2)
	if c.Data != nil {
		hs = append(hs, c.Data)
	}
	if c.VHeap != nil {
		hs = append(hs, c.VHeap.heap)
	}
	return hs
}

// Clear truncates the column in place: releases the variable heap to
// its initial state and resets every property except the atom type.
func (c *Column) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Count = 0
	c.Inserted = 0
	c.TSeqBase = c.HSeqBase
	c.Sorted, c.RevSorted, c.Key = true, true, true
	c.Nil, c.NoNil = false, true
	c.NoSorted, c.NoRevSorted = 0, 0
	c.NoKey = [2]int64{0, 0}
	c.MinPos, c.MaxPos = -1, -1
	var err error
	if c.Data != nil {
		err = c.Data.SetUsed(0)
	}
	if c.VHeap != nil {
		c.VHeap.reset()
	}
	return err
}

// Free releases memory without destroying the descriptor: drops the
// in-memory heap mapping but leaves the descriptor (and, if
// persistent, the on-disk files) intact.
func (c *Column) Free() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.parent != nil {
		// a view's heaps belong to its parent; there is nothing to drop.
		return nil
	}
	if c.Data != nil {
		if _, err := c.Data.Decref(false); err != nil {
			return err
		}
	}
	if c.VHeap != nil {
		if _, err := c.VHeap.heap.Decref(false); err != nil {
			return err
		}
	}
	return nil
}

// Destroy additionally unlinks the files.
func (c *Column) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.parent != nil {
		// a view only gives back its share of the parent's heaps.
		c.parent.mu.Lock()
		c.parent.shareCount--
		c.parent.mu.Unlock()
		return nil
	}
	var firstErr error
	if c.Data != nil {
		if _, err := c.Data.Decref(true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.VHeap != nil {
		if _, err := c.VHeap.heap.Decref(true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// slotBytes returns the raw bytes backing slot i. For a view, i is
// relative to the view's own [0,Count) range; viewOffset translates it
// to the parent heap's absolute slot index.
func (c *Column) slotBytes(i int64) []byte {
	off := (i + c.viewOffset) * int64(c.Width)
	return c.Data.Bytes()[off : off+int64(c.Width)]
}

// cmp compares two fixed-width slot values using the column's atom
// comparator.
func (c *Column) cmp(a, b []byte) int {
	return c.Atom.Cmp(a, b)
}

// RawAt returns a copy of the raw bytes backing fixed-width slot p,
// for callers maintaining side structures (a hash.Index, a sort key)
// that need to read a value without going through the atom's decoded
// representation. Variable-width atoms aren't supported here since
// their slot bytes are an offset, not a value; decode those via
// VHeap.StringAt instead.
func (c *Column) RawAt(p int64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Atom.Variable {
		return nil, fmt.Errorf("column: rawat: variable-width atom")
	}
	if p < 0 || p >= c.Count {
		return nil, fmt.Errorf("column: rawat: slot %d out of range", p)
	}
	return append([]byte(nil), c.slotBytes(p)...), nil
}

func (c *Column) ensureCapacity(extra int64) error {
	need := (c.Count + extra) * int64(c.Width)
	if c.Data.Size() >= need {
		return nil
	}
	if c.Data.Size() == 0 {
		// first allocation: round up generously so repeated small
		// appends don't thrash extend.
		alloc := need * 2
		if alloc < 64 {
			alloc = 64
		}
		if err := c.Data.Alloc(alloc, 1, c.Persistence == Persistent); err != nil {
			return err
		}
	} else if err := c.Data.Extend(need*2, true); err != nil {
		return err
	}
	return c.Data.SetUsed(need)
}

func fmtErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("column: %s: %w", op, err)
}
