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
	"math/rand"

	"github.com/monetkit/gdk/atom"
	"github.com/monetkit/gdk/heap"
)

// ElimLimit is the variable-heap size below which double-elimination
// string interning stays active; beyond it, new strings are appended
// without a dedup lookup.
const ElimLimit = 64 * 1024

// varOffset is the constant that 1- and 2-byte offsets are encoded
// relative to.
const varOffset = 0

// nilOffset is the sentinel slot value meaning "no string" (distinct
// from an empty string, which has a valid offset to a zero-length
// entry).
const nilOffset = ^uint64(0)

// VarHeap is a column's variable-length side heap: the string/blob
// bytes referenced by the slot array's offsets, with an optional
// double-elimination intern table.
type VarHeap struct {
	heap   *heap.Heap
	atom   *atom.Ops
	offset int // current slot offset width in bytes: 1, 2, 4, or 8
	intern map[string]int64
}

func newVarHeap(farmDir, filename string, cfg heap.Config, a *atom.Ops) *VarHeap {
	return &VarHeap{
		heap:   heap.New(farmDir, filename, cfg),
		atom:   a,
		offset: 4,
		intern: make(map[string]int64),
	}
}

func (v *VarHeap) reset() {
	v.heap.SetUsed(0)
	v.intern = make(map[string]int64)
}

// Append implements atom.VarHeap: it copies data onto the heap
// (without interning — callers doing string interning go through Put)
// and returns its offset.
func (v *VarHeap) Append(data []byte) (int64, error) {
	return v.rawAppend(data)
}

// At implements atom.VarHeap.
func (v *VarHeap) At(offset int64) ([]byte, error) {
	b := v.heap.Bytes()
	if offset < 0 || offset >= int64(len(b)) {
		return nil, fmt.Errorf("varheap: offset %d out of range", offset)
	}
	n := binary.LittleEndian.Uint32(b[offset:])
	start := offset + 4
	return b[start : start+int64(n)], nil
}

func (v *VarHeap) rawAppend(data []byte) (int64, error) {
	cur := v.heap.Free()
	need := cur + 4 + int64(len(data))
	if v.heap.Size() < need {
		if v.heap.Size() == 0 {
			if err := v.heap.Alloc(need*2, 1, false); err != nil {
				return 0, err
			}
		} else if err := v.heap.Extend(need*2, true); err != nil {
			return 0, err
		}
	}
	b := v.heap.Cap()
	binary.LittleEndian.PutUint32(b[cur:], uint32(len(data)))
	copy(b[cur+4:], data)
	if err := v.heap.SetUsed(need); err != nil {
		return 0, err
	}
	return cur, nil
}

// Put interns decoded: while the heap is smaller than ElimLimit, an
// exact duplicate string reuses its existing offset instead of
// appending a second copy.
func (v *VarHeap) Put(decoded string) (int64, error) {
	if v.heap.Free() < ElimLimit {
		if off, ok := v.intern[decoded]; ok {
			return off, nil
		}
		off, err := v.rawAppend([]byte(decoded))
		if err != nil {
			return 0, err
		}
		v.intern[decoded] = off
		return off, nil
	}
	return v.rawAppend([]byte(decoded))
}

// StringAt decodes the string referenced by a slot's offset bytes.
func (v *VarHeap) StringAt(slot []byte, order binary.ByteOrder) (string, error) {
	off := decodeOffset(slot, order, len(slot))
	if off == nilOffset {
		return "", nil
	}
	b, err := v.At(int64(off))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeOffset(slot []byte, order binary.ByteOrder, width int) uint64 {
	switch width {
	case 1:
		return uint64(slot[0]) + varOffset
	case 2:
		return uint64(order.Uint16(slot)) + varOffset
	case 4:
		return uint64(order.Uint32(slot))
	case 8:
		return order.Uint64(slot)
	}
	return nilOffset
}

func encodeOffset(slot []byte, order binary.ByteOrder, width int, off uint64) {
	switch width {
	case 1:
		slot[0] = byte(off - varOffset)
	case 2:
		order.PutUint16(slot, uint16(off-varOffset))
	case 4:
		order.PutUint32(slot, uint32(off))
	case 8:
		order.PutUint64(slot, off)
	}
}

// copyFrom does a raw byte copy of another VarHeap's contents,
// including the intern table, used by the memcpy copy strategy.
func (v *VarHeap) copyFrom(src *VarHeap) error {
	n := src.heap.Free()
	if err := v.heap.Alloc(n, 1, false); err != nil {
		return err
	}
	copy(v.heap.Cap(), src.heap.Bytes()[:n])
	if err := v.heap.SetUsed(n); err != nil {
		return err
	}
	v.intern = make(map[string]int64, len(src.intern))
	for k, off := range src.intern {
		v.intern[k] = off
	}
	return nil
}

// AppendStrings implements append of a string batch. The
// pool/column-ops layer decides whether two columns already share a
// heap and picks among several merge strategies; AppendStrings is the
// per-value path used for plain single-column appends and by the
// strategies that fall back to per-value copying.
func (c *Column) AppendStrings(vals []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.VHeap == nil {
		return fmt.Errorf("column: appendstrings: not a variable-width column")
	}
	if err := c.ensureCapacity(int64(len(vals))); err != nil {
		return fmtErr("appendstrings", err)
	}
	start := c.Count
	for i, s := range vals {
		pos := start + int64(i)
		off, err := c.VHeap.Put(s)
		if err != nil {
			return err
		}
		buf := c.slotBytes(pos)
		encodeOffset(buf, c.Order, c.VHeap.offset, uint64(off))
		c.Count++
		v := []byte(s)
		c.updateStringProperties(pos, v, false)
	}
	c.maybeWidenOffsets()
	return nil
}

func (c *Column) updateStringProperties(pos int64, v []byte, isNil bool) {
	if pos == 0 {
		c.Sorted, c.RevSorted, c.Key = true, true, true
		c.NoNil = !isNil
		c.Nil = isNil
		return
	}
	prevStr, _ := c.VHeap.StringAt(c.slotBytes(pos-1), c.Order)
	cur := string(v)
	switch {
	case prevStr > cur:
		if c.Sorted {
			c.Sorted = false
			c.NoSorted = pos
		}
	case prevStr < cur:
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
	}
}

// rescanStringProperties recomputes every incremental property from
// the offset array and variable heap already in place, by replaying
// updateStringProperties over [0,Count). Load uses this after reading
// a variable-width column's heaps back from disk.
func (c *Column) rescanStringProperties() {
	n := c.Count
	c.Count = 0
	c.Sorted, c.RevSorted, c.Key = true, true, true
	c.NoNil = true
	for i := int64(0); i < n; i++ {
		off := decodeOffset(c.slotBytes(i), c.Order, c.VHeap.offset)
		isNil := off == nilOffset
		var v []byte
		if !isNil {
			s, err := c.VHeap.StringAt(c.slotBytes(i), c.Order)
			if err == nil {
				v = []byte(s)
			}
		}
		c.updateStringProperties(i, v, isNil)
		c.Count++
	}
}

// maybeWidenOffsets grows the slot offset width when the variable
// heap has outgrown the current width's addressable range. Offset
// width only ever grows monotonically: once widened, a column never
// narrows its offsets back down.
func (c *Column) maybeWidenOffsets() {
	size := c.VHeap.heap.Free()
	want := c.VHeap.offset
	switch {
	case size >= 1<<32:
		want = 8
	case size >= 1<<16:
		want = 4
	case size >= 1<<8:
		if c.VHeap.offset < 2 {
			want = 2
		}
	}
	if want <= c.VHeap.offset {
		return
	}
	c.widenOffsets(want)
}

// widenOffsets rewrites the entire offset slot array at a new width.
// Nil offsets remain nil; narrow offsets for inlined double-eliminated
// strings remain valid after widening since they name the same
// absolute heap offset, just encoded wider.
func (c *Column) widenOffsets(newWidth int) {
	old := c.VHeap.offset
	oldBytes := c.Data.Bytes()
	widened := make([]byte, c.Count*int64(newWidth))
	for i := int64(0); i < c.Count; i++ {
		slot := oldBytes[i*int64(old) : i*int64(old)+int64(old)]
		off := decodeOffset(slot, c.Order, old)
		dst := widened[i*int64(newWidth) : i*int64(newWidth)+int64(newWidth)]
		if off == nilOffset {
			for b := range dst {
				dst[b] = 0xff
			}
			continue
		}
		encodeOffset(dst, c.Order, newWidth, off)
	}
	c.VHeap.offset = newWidth
	c.Width = newWidth
	c.Data.Alloc(int64(len(widened)), 1, c.Persistence == Persistent)
	copy(c.Data.Cap(), widened)
	c.Data.SetUsed(int64(len(widened)))
}

// sampleSizeEstimate samples up to 1024 values from src (every value
// when src has at most 1024 rows, random ones otherwise) and returns
// the estimated total bytes of src's strings, at 4 bytes of overhead
// each, scaled from the sample's average to src.Count.
func sampleSizeEstimate(src *Column, rng *rand.Rand) int64 {
	n := int(src.Count)
	if n == 0 {
		return 0
	}
	samples := n
	if samples > 1024 {
		samples = 1024
	}
	var total int64
	for i := 0; i < samples; i++ {
		idx := int64(i)
		if n > 1024 {
			idx = int64(rng.Intn(n))
		}
		s, _ := src.VHeap.StringAt(src.slotBytes(idx), src.Order)
		total += int64(len(s)) + 4
	}
	avg := total / int64(samples)
	return avg * int64(n)
}
