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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/monetkit/gdk/atom"
	"github.com/monetkit/gdk/heap"
)

// properties is the subset of Column's exported property bits that
// must match a fresh scan of the data after a save/load round trip;
// go-cmp gives a readable diff when a property drifts
// between the original append sequence and a replay of the same
// values, instead of a wall of individual field assertions.
type properties struct {
	Count                  int64
	Sorted, RevSorted, Key bool
	Nil, NoNil             bool
	MinPos, MaxPos         int64
}

func snapshot(c *Column) properties {
	return properties{
		Count: c.Count, Sorted: c.Sorted, RevSorted: c.RevSorted, Key: c.Key,
		Nil: c.Nil, NoNil: c.NoNil, MinPos: c.MinPos, MaxPos: c.MaxPos,
	}
}

func int32Col(t *testing.T) *Column {
	t.Helper()
	reg := atom.Builtins()
	ops := reg.Lookup(reg.ByName(atom.NameInt32))
	return New(ops, t.TempDir(), "t", heap.DefaultConfig(), Transient)
}

func enc32(v int32) []byte {
	b := make([]byte, 4)
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func TestAppendSortedProperty(t *testing.T) {
	c := int32Col(t)
	if err := c.Append([][]byte{enc32(1), enc32(2), enc32(3)}); err != nil {
		t.Fatal(err)
	}
	if !c.Sorted || !c.Key {
		t.Fatalf("expected sorted+key, got sorted=%v key=%v", c.Sorted, c.Key)
	}
	if err := c.Append([][]byte{enc32(2)}); err != nil {
		t.Fatal(err)
	}
	if c.Sorted {
		t.Fatal("expected sorted to be cleared by descending append")
	}
	if c.NoSorted != 3 {
		t.Fatalf("expected nosorted=3, got %d", c.NoSorted)
	}
}

func TestAppendDuplicateClearsKey(t *testing.T) {
	c := int32Col(t)
	if err := c.Append([][]byte{enc32(5), enc32(5)}); err != nil {
		t.Fatal(err)
	}
	if c.Key {
		t.Fatal("expected key to be cleared by duplicate")
	}
	if c.NoKey != [2]int64{0, 1} {
		t.Fatalf("unexpected nokey: %v", c.NoKey)
	}
}

func TestMinMaxPos(t *testing.T) {
	c := int32Col(t)
	if err := c.Append([][]byte{enc32(5), enc32(1), enc32(9), enc32(3)}); err != nil {
		t.Fatal(err)
	}
	if c.MinPos != 1 || c.MaxPos != 2 {
		t.Fatalf("expected minpos=1 maxpos=2, got minpos=%d maxpos=%d", c.MinPos, c.MaxPos)
	}
}

func TestReplaceNoop(t *testing.T) {
	c := int32Col(t)
	if err := c.Append([][]byte{enc32(1), enc32(2), enc32(3)}); err != nil {
		t.Fatal(err)
	}
	if err := c.Replace(1, enc32(2), true, nil); err != nil {
		t.Fatal(err)
	}
	if !c.Sorted {
		t.Fatal("no-op replace should not disturb sortedness")
	}
}

func TestReplaceRejectsCommitted(t *testing.T) {
	c := int32Col(t)
	if err := c.Append([][]byte{enc32(1), enc32(2)}); err != nil {
		t.Fatal(err)
	}
	c.Inserted = 2
	if err := c.Replace(0, enc32(9), false, nil); err != ErrCommitted {
		t.Fatalf("expected ErrCommitted, got %v", err)
	}
}

func TestDeleteMovesLastIntoHole(t *testing.T) {
	c := int32Col(t)
	if err := c.Append([][]byte{enc32(1), enc32(2), enc32(3)}); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(c.HSeqBase, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if c.Count != 2 {
		t.Fatalf("expected count=2, got %d", c.Count)
	}
	got := c.slotBytes(0)
	if got[0] != 3 {
		t.Fatalf("expected last value moved into hole, got %v", got)
	}
	if c.Sorted {
		t.Fatal("delete-with-move should clear sorted")
	}
}

func TestMaterializeVoid(t *testing.T) {
	c := int32Col(t)
	c.Width = 8
	c.TSeqBase = 100
	c.Count = 3
	if err := c.Materialize(); err != nil {
		t.Fatal(err)
	}
	if c.MinPos != 0 || c.MaxPos != 2 {
		t.Fatalf("expected minpos=0 maxpos=2, got %d %d", c.MinPos, c.MaxPos)
	}
}

func TestViewIsZeroCopy(t *testing.T) {
	c := int32Col(t)
	if err := c.Append([][]byte{enc32(1), enc32(2), enc32(3), enc32(4)}); err != nil {
		t.Fatal(err)
	}
	c.Access = AccessRead
	v, err := c.Slice(1, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v.Data != c.Data {
		t.Fatal("expected slice to share the parent's heap")
	}
	if v.Count != 2 {
		t.Fatalf("expected count=2, got %d", v.Count)
	}
}

func TestStringAppendAndIntern(t *testing.T) {
	reg := atom.Builtins()
	ops := reg.Lookup(reg.ByName(atom.NameStr))
	c := New(ops, t.TempDir(), "s", heap.DefaultConfig(), Transient)
	if err := c.AppendStrings([]string{"a", "bb", "a"}); err != nil {
		t.Fatal(err)
	}
	off0 := c.VHeap.intern["a"]
	s, err := c.VHeap.StringAt(c.slotBytes(2), c.Order)
	if err != nil {
		t.Fatal(err)
	}
	if s != "a" {
		t.Fatalf("expected 'a', got %q", s)
	}
	if decodeOffset(c.slotBytes(0), c.Order, c.VHeap.offset) != decodeOffset(c.slotBytes(2), c.Order, c.VHeap.offset) {
		t.Fatal("expected interned duplicate to reuse offset")
	}
	_ = off0
}

// TestRoundTripPropertiesMatchFreshScan checks the save/load round
// trip two ways: (1) saving a heap and loading it back into a fresh
// heap instance must reproduce the exact bytes, and (2) the property
// bits a column ends up with after incremental appends must equal
// what a fresh column derives when given the same slot-by-slot values
// in one shot (a stand-in "fresh scan").
func TestRoundTripPropertiesMatchFreshScan(t *testing.T) {
	dir := t.TempDir()
	c := New(atom.Builtins().Lookup(atom.Builtins().ByName(atom.NameInt32)), dir, "t", heap.DefaultConfig(), Transient)
	vals := [][]byte{enc32(3), enc32(1), enc32(4), enc32(1), enc32(5)}
	if err := c.Append(vals); err != nil {
		t.Fatal(err)
	}
	want := snapshot(c)

	if err := c.Data.Save(""); err != nil {
		t.Fatal(err)
	}
	reloaded := heap.New(dir, "t.tail", heap.DefaultConfig())
	if err := reloaded.Load(c.Data.Free(), ""); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c.Data.Bytes(), reloaded.Bytes()); diff != "" {
		t.Fatalf("heap save/load round trip changed bytes (-saved +loaded):\n%s", diff)
	}

	fresh := int32Col(t)
	if err := fresh.Append(vals); err != nil {
		t.Fatal(err)
	}
	got := snapshot(fresh)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("fresh column's properties diverged from the incrementally-built one (-want +got):\n%s", diff)
	}
}
