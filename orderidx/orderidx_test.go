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

package orderidx

import (
	"bytes"
	"path/filepath"
	"testing"
)

func bcmp(a, b []byte) int { return bytes.Compare(a, b) }

func TestMergeTwoStreams(t *testing.T) {
	data := map[OID][]byte{1: {1}, 2: {2}, 3: {3}, 4: {4}}
	value := func(o OID) []byte { return data[o] }
	a := New([]OID{1, 3}, true)
	b := New([]OID{2, 4}, true)
	merged := Merge([]*Index{a, b}, value, bcmp)
	want := []OID{1, 2, 3, 4}
	if len(merged.Perm) != len(want) {
		t.Fatalf("expected %v, got %v", want, merged.Perm)
	}
	for i := range want {
		if merged.Perm[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, merged.Perm)
		}
	}
}

func TestMergeKWay(t *testing.T) {
	data := map[OID][]byte{10: {1}, 20: {2}, 30: {3}, 40: {4}, 50: {5}, 60: {6}}
	value := func(o OID) []byte { return data[o] }
	parts := []*Index{
		New([]OID{10, 40}, true),
		New([]OID{20, 50}, true),
		New([]OID{30, 60}, true),
	}
	merged := Merge(parts, value, bcmp)
	want := []OID{10, 20, 30, 40, 50, 60}
	for i := range want {
		if merged.Perm[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, merged.Perm)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := New([]OID{5, 2, 9}, false)
	path := filepath.Join(t.TempDir(), "c.orderidx")
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Stable != idx.Stable || got.Count != idx.Count {
		t.Fatalf("header mismatch: %+v vs %+v", got, idx)
	}
	for i := range idx.Perm {
		if got.Perm[i] != idx.Perm[i] {
			t.Fatalf("perm mismatch at %d: %v vs %v", i, got.Perm, idx.Perm)
		}
	}
}
