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
	"path/filepath"
	"testing"
)

func TestDirectorySaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "BBP.dir")
	key := []byte("test-mac-key-0123456789abcdef")
	records := []Record{
		{ID: 0, Name: "a.col", Farm: "main", Basename: "bat/00/0", AtomID: 3, Width: 4, Count: 10, Sorted: true, Key: true},
		{ID: 1, Name: "b.col", Farm: "main", Basename: "bat/00/1", AtomID: 9, Width: 4, Count: 0},
	}
	if err := SaveDirectory(path, key, records); err != nil {
		t.Fatal(err)
	}
	got, err := LoadDirectory(path, key)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Name != "a.col" || !got[0].Sorted || !got[0].Key {
		t.Fatalf("record 0 mismatch: %+v", got[0])
	}
	if got[1].Name != "b.col" || got[1].Count != 0 {
		t.Fatalf("record 1 mismatch: %+v", got[1])
	}
}

func TestDirectoryBadMACRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "BBP.dir")
	if err := SaveDirectory(path, []byte("key-one"), []Record{{ID: 0, Name: "x"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDirectory(path, []byte("key-two")); err == nil {
		t.Fatal("expected MAC mismatch error with wrong key")
	}
}
