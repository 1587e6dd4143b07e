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
	"os"
	"path/filepath"
	"testing"

	"github.com/monetkit/gdk/farm"
)

func TestCommitWritesDirectoryAndSwitches(t *testing.T) {
	f, err := farm.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := &Commit{Farm: f, MACKey: []byte("k")}
	records := []Record{{ID: 0, Name: "x.col", Farm: "main", Basename: "bat/00/0"}}
	writes := []writeFile{{RelPath: "bat/00/0.tail", Data: []byte("hello")}}

	if err := c.Run(records, writes); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(f.Dir, "BBP.dir")); err != nil {
		t.Fatalf("expected BBP.dir to exist: %v", err)
	}
	got, err := LoadDirectory(filepath.Join(f.Dir, "BBP.dir"), []byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "x.col" {
		t.Fatalf("unexpected directory contents: %+v", got)
	}
	data, err := os.ReadFile(filepath.Join(f.Dir, "bat/00/0.tail"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", data)
	}
	for _, stale := range []string{farm.BAKDIR, farm.DELDIR} {
		if _, err := os.Stat(filepath.Join(f.Dir, stale)); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be cleaned up", stale)
		}
	}
}

func TestCommitUpdateBacksUpPreviousFile(t *testing.T) {
	f, err := farm.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(f.Dir, "bat/00/0.tail")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := &Commit{Farm: f, MACKey: []byte("k")}
	writes := []writeFile{{RelPath: "bat/00/0.tail", Data: []byte("new")}}
	if err := c.Run(nil, writes); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new" {
		t.Fatalf("expected new contents, got %q", data)
	}
}

func TestRecoverRollsBackInterruptedCommit(t *testing.T) {
	f, err := farm.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(f.Dir, "bat/00/0.tail")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("committed"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash midway through a second commit: the backup was
	// taken and the new (bad) data was written over the live file, but
	// the atomic BAKDIR -> DELDIR switch never happened.
	bak, err := f.BeginBackup()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(filepath.Join(bak, "bat/00/0.tail")), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bak, "bat/00/0.tail"), []byte("committed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bak, "BBP.dir"), []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("half-written"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := &Commit{Farm: f, MACKey: []byte("k")}
	if err := c.Recover(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "committed" {
		t.Fatalf("expected rollback to restore prior contents, got %q", data)
	}
	if _, err := os.Stat(filepath.Join(f.Dir, farm.BAKDIR)); !os.IsNotExist(err) {
		t.Fatal("expected BAKDIR to be cleaned up after rollback")
	}
}
