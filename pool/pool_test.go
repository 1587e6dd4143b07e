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
	"testing"
	"time"

	"github.com/monetkit/gdk/atom"
	"github.com/monetkit/gdk/farm"
	"github.com/monetkit/gdk/heap"
)

func testPool(t *testing.T) (*Pool, *farm.Farm) {
	t.Helper()
	f, err := farm.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	reg := atom.Builtins()
	p := New(map[string]*farm.Farm{"main": f}, reg, heap.DefaultConfig, 0x1234567890abcdef, 0xfedcba0987654321)
	return p, f
}

func TestAllocFixUnfixRelease(t *testing.T) {
	p, f := testPool(t)
	reg := atom.Builtins()
	aid := reg.ByName(atom.NameInt32)

	id, err := p.Alloc("main", f.Basename(0), aid, false)
	if err != nil {
		t.Fatal(err)
	}
	col, err := p.Fix(id)
	if err != nil {
		t.Fatal(err)
	}
	if col == nil {
		t.Fatal("expected non-nil column")
	}
	if err := col.Append([][]byte{{1, 0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	p.MarkDirty(id)
	if err := p.Unfix(id); err != nil {
		t.Fatal(err)
	}
	if err := p.Release(id); err != nil {
		t.Fatal(err)
	}
}

func TestNameRegistryRoundTrip(t *testing.T) {
	p, f := testPool(t)
	reg := atom.Builtins()
	aid := reg.ByName(atom.NameInt32)

	id, err := p.Alloc("main", f.Basename(1), aid, false)
	if err != nil {
		t.Fatal(err)
	}
	p.Register("mytable.col", id)
	got, ok := p.Lookup("mytable.col")
	if !ok || got != id {
		t.Fatalf("expected lookup to find %d, got %d ok=%v", id, got, ok)
	}
	names := p.Names()
	if len(names) != 1 || names[0] != "mytable.col" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestFixWithoutRetainFails(t *testing.T) {
	p, f := testPool(t)
	reg := atom.Builtins()
	aid := reg.ByName(atom.NameInt32)

	id, err := p.Alloc("main", f.Basename(2), aid, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Release(id); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Fix(id); err == nil {
		t.Fatal("expected fix of released column to fail")
	}
}

func TestPoolCommitPersistsDirtyColumns(t *testing.T) {
	p, f := testPool(t)
	reg := atom.Builtins()
	aid := reg.ByName(atom.NameInt32)

	id, err := p.Alloc("main", f.Basename(4), aid, true)
	if err != nil {
		t.Fatal(err)
	}
	p.Register("commit.col", id)
	col, err := p.Fix(id)
	if err != nil {
		t.Fatal(err)
	}
	if err := col.Append([][]byte{{1, 0, 0, 0}, {2, 0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	p.MarkDirty(id)
	if err := p.Unfix(id); err != nil {
		t.Fatal(err)
	}

	cm := &Commit{Farm: f, MACKey: []byte("k")}
	if err := p.Commit(cm); err != nil {
		t.Fatal(err)
	}

	records, err := LoadDirectory(f.Dir+"/BBP.dir", []byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Name != "commit.col" || records[0].Count != 2 {
		t.Fatalf("unexpected directory contents: %+v", records)
	}

	if col.Inserted != col.Count {
		t.Fatalf("expected Inserted to advance to Count, got %d/%d", col.Inserted, col.Count)
	}

	// a second commit with nothing dirty still succeeds: it rewrites
	// BBP.dir with every record but writes no heap file.
	if err := p.Commit(cm); err != nil {
		t.Fatal(err)
	}
}

func TestTrimmerUnloadsIdleColumn(t *testing.T) {
	p, f := testPool(t)
	reg := atom.Builtins()
	aid := reg.ByName(atom.NameInt32)

	id, err := p.Alloc("main", f.Basename(3), aid, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Fix(id); err != nil {
		t.Fatal(err)
	}
	if err := p.Unfix(id); err != nil {
		t.Fatal(err)
	}

	tr := NewTrimmer(p, TrimConfig{MinimumAge: time.Nanosecond, Likelihood: 100})
	tr.Run() // first pass only records the idle timestamp
	n := tr.Run()
	if n != 1 {
		t.Fatalf("expected trimmer to unload 1 column, got %d", n)
	}
}
