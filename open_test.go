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

package gdk

import (
	"testing"

	"github.com/monetkit/gdk/atom"
)

func TestNewPoolAllocFixAppendRelease(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	db, err := NewPool(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	aid := db.Atoms.ByName(atom.NameInt32)
	id, err := db.Alloc(db.TransientFarm(), "t", aid, false)
	if err != nil {
		t.Fatal(err)
	}
	col, err := db.Fix(id)
	if err != nil {
		t.Fatal(err)
	}
	if err := col.Append([][]byte{{1, 0, 0, 0}, {2, 0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	if col.Count != 2 {
		t.Fatalf("expected count 2, got %d", col.Count)
	}
	if err := db.Unfix(id); err != nil {
		t.Fatal(err)
	}
	if err := db.Release(id); err != nil {
		t.Fatal(err)
	}
}

func TestDBCommitPersistsColumn(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	db, err := NewPool(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	aid := db.Atoms.ByName(atom.NameInt32)
	id, err := db.Alloc(db.PersistentFarm(), "p", aid, true)
	if err != nil {
		t.Fatal(err)
	}
	col, err := db.Fix(id)
	if err != nil {
		t.Fatal(err)
	}
	if err := col.Append([][]byte{{7, 0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	db.MarkDirty(id)
	if err := db.Unfix(id); err != nil {
		t.Fatal(err)
	}

	if err := db.Commit(db.PersistentFarm()); err != nil {
		t.Fatal(err)
	}

	records, err := ReadDirectory(db.PersistentFarm())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Count != 1 {
		t.Fatalf("unexpected committed directory: %+v", records)
	}
}

func TestNewPoolRequiresTransientFarm(t *testing.T) {
	cfg := Config{Farms: []Farm{{Dir: t.TempDir(), Roles: RolePersistent}}}
	if _, err := NewPool(cfg); err == nil {
		t.Fatal("expected NewPool to reject a config with no transient farm")
	}
}

func TestFixAfterReleaseRecordsError(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	db, err := NewPool(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	aid := db.Atoms.ByName(atom.NameInt32)
	id, err := db.Alloc(db.TransientFarm(), "t2", aid, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Release(id); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Fix(id); err == nil {
		t.Fatal("expected fix of released column to fail")
	}
	if len(db.LastErrors()) == 0 {
		t.Fatal("expected the failed Fix to be recorded")
	}
}
